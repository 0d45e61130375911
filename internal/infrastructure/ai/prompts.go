/**
 * Package ai AI 服务基础设施层
 *
 * 提示词模板
 */

package ai

import "fmt"

// 各增强模式的系统提示词
var systemPrompts = map[EnhanceMode]string{
	ModePolish: "你是一个听写后处理助手。用户提供语音转写的原始文本，" +
		"你负责清理停顿词（嗯、呃、那个）、修正标点和断句、保留原意。" +
		"只返回处理后的文本，不要任何解释或前缀。",
	ModeFormal: "你是一个文字改写助手。把用户口述的内容改写为书面、正式的表达，" +
		"保持原意和语言不变。只返回改写后的文本，不要任何解释或前缀。",
	ModeSummarize: "你是一个摘要助手。把用户口述的内容压缩为简洁的要点，" +
		"保留全部关键信息。只返回摘要，不要任何解释或前缀。",
	ModeTranslate: "你是一个翻译助手。把用户口述的内容翻译为地道的英文。" +
		"只返回译文，不要任何解释或前缀。",
}

/**
 * SystemPrompt 返回增强模式对应的系统提示词
 *
 * 未知模式回落到听写润色。
 *
 * Parameters:
 *   - mode: 增强模式
 *
 * Returns: string - 系统提示词
 */
func SystemPrompt(mode EnhanceMode) string {
	if prompt, ok := systemPrompts[mode]; ok {
		return prompt
	}
	return systemPrompts[ModePolish]
}

/**
 * BuildEnhancePrompt 构建增强请求的用户提示词
 *
 * Parameters:
 *   - transcript: 原始转写文本
 *
 * Returns: string - 用户提示词
 */
func BuildEnhancePrompt(transcript string) string {
	return fmt.Sprintf("原始转写文本：\n\n%s", transcript)
}

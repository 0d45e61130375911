/**
 * Package ai AI 服务基础设施层
 *
 * 负责听写文本的 AI 增强：清理口语转写中的停顿词、
 * 修正标点，并按触发模式做改写、摘要或翻译。
 */

package ai

import (
	"context"
	"errors"
)

/**
 * ModelType 模型类型
 */
type ModelType string

const (
	// ModelTypeClaude Claude 模型
	ModelTypeClaude ModelType = "claude"

	// ModelTypeNoop 空实现（AI 增强关闭时使用）
	ModelTypeNoop ModelType = "noop"
)

// ErrEmptyTranscript 转写文本为空
var ErrEmptyTranscript = errors.New("转写文本为空")

/**
 * EnhanceMode 文本增强模式
 *
 * 每个调度动作对应一种增强方式。
 */
type EnhanceMode string

const (
	// ModePolish 听写润色：清理停顿词、修正标点和大小写（主模式）
	ModePolish EnhanceMode = "polish"

	// ModeFormal 正式改写：改写为书面、正式的表达（模式 A）
	ModeFormal EnhanceMode = "formal"

	// ModeSummarize 摘要：压缩为要点（模式 B）
	ModeSummarize EnhanceMode = "summarize"

	// ModeTranslate 翻译：翻译为英文（模式 C）
	ModeTranslate EnhanceMode = "translate"
)

/**
 * EnhanceRequest 文本增强请求
 */
type EnhanceRequest struct {
	// Transcript 原始转写文本
	Transcript string

	// Mode 增强模式
	Mode EnhanceMode
}

/**
 * EnhanceResult 文本增强结果
 */
type EnhanceResult struct {
	// Text 增强后的文本
	Text string

	// Model 使用的模型名称
	Model string

	// Cached 结果是否来自缓存
	Cached bool
}

/**
 * Enhancer 文本增强接口
 *
 * 定义 AI 文本增强的通用能力
 */
type Enhancer interface {
	// Enhance 增强一段转写文本
	Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResult, error)

	// GetType 获取模型类型
	GetType() ModelType

	// Close 关闭连接
	Close() error
}

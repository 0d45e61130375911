/**
 * Package ai AI 服务基础设施层
 *
 * 负责与 Claude API 的集成，使用 Eino 框架实现文本增强
 */

package ai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// 确保 ClaudeClient 实现了 Enhancer 接口
var _ Enhancer = (*ClaudeClient)(nil)

/**
 * ClaudeClient Claude AI 客户端
 *
 * 基于 Eino 框架的 Claude API 客户端封装
 */
type ClaudeClient struct {
	// chatModel Eino ChatModel 实例
	chatModel model.ChatModel

	// config Claude 配置
	config *ClaudeConfig
}

/**
 * ClaudeConfig Claude 配置
 */
type ClaudeConfig struct {
	// APIKey Claude API 密钥（从环境变量读取）
	APIKey string

	// Model 模型名称
	Model string

	// BaseURL API 基础 URL（可选，用于自定义端点）
	BaseURL *string

	// MaxTokens 最大生成 token 数
	MaxTokens int

	// Temperature 温度参数（0.0-1.0）
	Temperature *float32

	// Timeout 请求超时时间
	Timeout time.Duration
}

/**
 * Validate 验证配置
 *
 * Returns: error - 验证错误
 */
func (c *ClaudeConfig) Validate() error {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		if c.APIKey == "" {
			return fmt.Errorf("未找到 ANTHROPIC_API_KEY 环境变量")
		}
	}

	if c.Model == "" {
		c.Model = "claude-sonnet-4-20250514"
	}

	if c.MaxTokens <= 0 {
		c.MaxTokens = 2048
	}

	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 1) {
		return fmt.Errorf("temperature 必须在 0.0-1.0 之间")
	}

	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}

	return nil
}

/**
 * NewClaudeClient 创建 Claude 客户端
 *
 * Parameters:
 *   - config: Claude 配置
 *
 * Returns: *ClaudeClient - Claude 客户端实例, error - 错误信息
 */
func NewClaudeClient(config *ClaudeConfig) (*ClaudeClient, error) {
	if config == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	chatModel, err := claude.NewChatModel(ctx, &claude.Config{
		APIKey:      config.APIKey,
		Model:       config.Model,
		BaseURL:     config.BaseURL,
		MaxTokens:   config.MaxTokens,
		Temperature: config.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Claude ChatModel 失败: %w", err)
	}

	logger.Info("创建 Claude 客户端成功",
		zap.String("model", config.Model),
		zap.Int("maxTokens", config.MaxTokens))

	return &ClaudeClient{
		chatModel: chatModel,
		config:    config,
	}, nil
}

/**
 * Enhance 增强一段转写文本
 *
 * 根据增强模式选择系统提示词，调用 Claude API 并清理响应。
 *
 * Parameters:
 *   - ctx: 上下文
 *   - req: 增强请求
 *
 * Returns: *EnhanceResult - 增强结果, error - 错误信息
 */
func (c *ClaudeClient) Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResult, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return nil, ErrEmptyTranscript
	}

	messages := []*schema.Message{
		{
			Role:    schema.System,
			Content: SystemPrompt(req.Mode),
		},
		{
			Role:    schema.User,
			Content: BuildEnhancePrompt(req.Transcript),
		},
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	startTime := time.Now()
	response, err := c.chatModel.Generate(ctx, messages)
	duration := time.Since(startTime)

	if err != nil {
		logger.Error("调用 Claude API 失败",
			zap.String("mode", string(req.Mode)),
			zap.Error(err),
			zap.Duration("duration", duration))
		return nil, fmt.Errorf("调用 Claude API 失败: %w", err)
	}

	logger.Info("调用 Claude API 成功",
		zap.String("mode", string(req.Mode)),
		zap.Duration("duration", duration),
		zap.Int("promptTokens", response.ResponseMeta.Usage.PromptTokens),
		zap.Int("completionTokens", response.ResponseMeta.Usage.CompletionTokens))

	return &EnhanceResult{
		Text:  strings.TrimSpace(response.Content),
		Model: c.config.Model,
	}, nil
}

/**
 * GetType 获取模型类型
 *
 * Returns: ModelType - 返回 ModelTypeClaude
 */
func (c *ClaudeClient) GetType() ModelType {
	return ModelTypeClaude
}

/**
 * Close 关闭连接
 *
 * Returns: error - 关闭错误
 */
func (c *ClaudeClient) Close() error {
	// Eino ChatModel 不需要显式关闭
	logger.Info("Claude 客户端已关闭")
	return nil
}

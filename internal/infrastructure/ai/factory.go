/**
 * Package ai AI 服务基础设施层
 *
 * 增强器工厂
 */

package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
)

/**
 * FactoryConfig 增强器工厂配置
 */
type FactoryConfig struct {
	// Enabled 是否启用 AI 增强
	Enabled bool

	// APIKey API 密钥
	APIKey string

	// Model 模型名称
	Model string

	// MaxTokens 最大生成 token 数
	MaxTokens int

	// Temperature 温度参数
	Temperature float64

	// CacheEnabled 是否启用响应缓存
	CacheEnabled bool

	// CacheTTL 缓存过期时间
	CacheTTL time.Duration

	// CacheMaxSize 缓存最大条目数
	CacheMaxSize int
}

/**
 * NewEnhancer 创建文本增强器（工厂方法）
 *
 * 增强关闭或缺少 API 密钥时回落到空实现：
 * 听写功能不依赖 AI，增强只是锦上添花。
 * 启用缓存时外层包一个缓存装饰器。
 *
 * Parameters:
 *   - config: 工厂配置
 *
 * Returns: Enhancer - 增强器实例, error - 错误信息
 */
func NewEnhancer(config FactoryConfig) (Enhancer, error) {
	if !config.Enabled {
		logger.Info("AI 增强已关闭，使用空实现")
		return NewNoopEnhancer(), nil
	}

	claudeConfig := &ClaudeConfig{
		APIKey:    config.APIKey,
		Model:     config.Model,
		MaxTokens: config.MaxTokens,
	}
	if config.Temperature > 0 {
		temperature := float32(config.Temperature)
		claudeConfig.Temperature = &temperature
	}

	client, err := NewClaudeClient(claudeConfig)
	if err != nil {
		return nil, fmt.Errorf("创建增强器失败: %w", err)
	}

	if config.CacheEnabled {
		return NewCachedEnhancer(client, config.CacheTTL, config.CacheMaxSize), nil
	}
	return client, nil
}

/**
 * NoopEnhancer 空实现
 *
 * 原样返回转写文本，用于 AI 增强关闭的场景。
 */
type NoopEnhancer struct{}

// NewNoopEnhancer 创建空实现增强器
func NewNoopEnhancer() *NoopEnhancer {
	return &NoopEnhancer{}
}

func (n *NoopEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResult, error) {
	if req.Transcript == "" {
		return nil, ErrEmptyTranscript
	}
	return &EnhanceResult{Text: req.Transcript, Model: string(ModelTypeNoop)}, nil
}

func (n *NoopEnhancer) GetType() ModelType {
	return ModelTypeNoop
}

func (n *NoopEnhancer) Close() error {
	return nil
}

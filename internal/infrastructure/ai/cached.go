/**
 * Package ai AI 服务基础设施层
 *
 * 缓存装饰器
 */

package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/chenyang-zz/voxflow/internal/infrastructure/cache"
	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// cacheCleanupInterval 过期缓存清理间隔
const cacheCleanupInterval = 5 * time.Minute

/**
 * CachedEnhancer 带缓存的增强器装饰器
 *
 * 相同的转写文本和增强模式直接返回缓存结果，
 * 避免重复调用模型接口。
 */
type CachedEnhancer struct {
	inner Enhancer
	cache cache.Cache
	ttl   time.Duration
}

/**
 * NewCachedEnhancer 创建带缓存的增强器
 *
 * Parameters:
 *   - inner: 底层增强器
 *   - ttl: 缓存过期时间
 *   - maxSize: 缓存最大条目数
 *
 * Returns: *CachedEnhancer - 缓存装饰器实例
 */
func NewCachedEnhancer(inner Enhancer, ttl time.Duration, maxSize int) *CachedEnhancer {
	return &CachedEnhancer{
		inner: inner,
		cache: cache.NewMemoryCache(maxSize, cacheCleanupInterval),
		ttl:   ttl,
	}
}

/**
 * Enhance 增强转写文本
 *
 * 先查缓存，未命中时调用底层增强器并写入缓存。
 *
 * Parameters:
 *   - ctx: 上下文
 *   - req: 增强请求
 *
 * Returns: *EnhanceResult - 增强结果, error - 错误信息
 */
func (e *CachedEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResult, error) {
	if req.Transcript == "" {
		return nil, ErrEmptyTranscript
	}

	key := cacheKey(req)
	if value, ok := e.cache.Get(key); ok {
		result := value.(EnhanceResult)
		result.Cached = true
		logger.Debug("增强结果命中缓存", zap.String("mode", string(req.Mode)))
		return &result, nil
	}

	result, err := e.inner.Enhance(ctx, req)
	if err != nil {
		return nil, err
	}

	e.cache.Set(key, *result, e.ttl)
	return result, nil
}

/**
 * GetType 获取底层模型类型
 *
 * Returns: ModelType - 模型类型
 */
func (e *CachedEnhancer) GetType() ModelType {
	return e.inner.GetType()
}

/**
 * Close 关闭增强器并释放缓存
 *
 * Returns: error - 错误信息
 */
func (e *CachedEnhancer) Close() error {
	e.cache.Stop()
	return e.inner.Close()
}

// cacheKey 根据增强模式和转写文本生成缓存键
func cacheKey(req EnhanceRequest) string {
	sum := sha256.Sum256([]byte(string(req.Mode) + "\x00" + req.Transcript))
	return hex.EncodeToString(sum[:])
}

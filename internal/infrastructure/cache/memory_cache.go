/**
 * Package cache 缓存实现
 *
 * 提供基于内存的缓存实现，支持 TTL 和 LRU 淘汰策略
 */

package cache

import (
	"sync"
	"time"

	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"go.uber.org/zap"
)

/**
 * entry 缓存项
 */
type entry struct {
	// value 缓存值
	value interface{}

	// expiresAt 过期时间（零值表示永不过期）
	expiresAt time.Time

	// accessedAt 最后访问时间，用于 LRU 淘汰
	accessedAt time.Time
}

// expired 检查缓存项是否过期
func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

/**
 * MemoryCache 内存缓存实现
 *
 * 特性：
 * - 并发安全
 * - TTL 支持
 * - LRU 淘汰策略
 * - 定期清理过期项
 * - 缓存统计
 */
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*entry

	// maxSize 最大缓存项数（0 表示无限制）
	maxSize int

	stats Stats

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

/**
 * NewMemoryCache 创建内存缓存
 *
 * Parameters:
 *   - maxSize: 最大缓存项数（0 表示无限制）
 *   - cleanupInterval: 清理间隔（0 表示不定期清理）
 *
 * Returns: *MemoryCache - 内存缓存实例
 */
func NewMemoryCache(maxSize int, cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]*entry),
		maxSize: maxSize,
		stopCh:  make(chan struct{}),
	}

	if cleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop(cleanupInterval)
	}

	logger.Debug("内存缓存已创建",
		zap.Int("max_size", maxSize),
		zap.Duration("cleanup_interval", cleanupInterval))

	return c
}

/**
 * Get 获取缓存值
 *
 * Parameters:
 *   - key: 缓存键
 *
 * Returns: interface{} - 缓存值, bool - 是否找到
 */
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.recordMiss()
		return nil, false
	}

	now := time.Now()
	if e.expired(now) {
		delete(c.entries, key)
		c.stats.recordMiss()
		c.stats.recordEviction()
		return nil, false
	}

	e.accessedAt = now
	c.stats.recordHit()
	return e.value, true
}

/**
 * Set 设置缓存值
 *
 * 超出容量上限时淘汰最久未访问的缓存项。
 *
 * Parameters:
 *   - key: 缓存键
 *   - value: 缓存值
 *   - ttl: 过期时间（0表示永不过期）
 */
func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	now := time.Now()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.entries[key] = &entry{
		value:      value,
		expiresAt:  expiresAt,
		accessedAt: now,
	}
	c.stats.recordSet()
}

/**
 * Delete 删除缓存
 *
 * Parameters:
 *   - key: 缓存键
 */
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

/**
 * Clear 清空所有缓存
 */
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

/**
 * Len 获取缓存项数量
 *
 * Returns: int - 缓存项数量
 */
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

/**
 * GetStats 获取缓存统计信息
 *
 * Returns: *Stats - 统计信息
 */
func (c *MemoryCache) GetStats() *Stats {
	return &c.stats
}

// evictOldestLocked 淘汰最久未访问的缓存项，调用方需持有锁
func (c *MemoryCache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, e := range c.entries {
		if first || e.accessedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.accessedAt
			first = false
		}
	}

	if !first {
		delete(c.entries, oldestKey)
		c.stats.recordEviction()
	}
}

/**
 * cleanupLoop 定期清理过期缓存
 */
func (c *MemoryCache) cleanupLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

// removeExpired 删除所有已过期的缓存项
func (c *MemoryCache) removeExpired() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			c.stats.recordEviction()
			removed++
		}
	}

	if removed > 0 {
		logger.Debug("清理过期缓存",
			zap.Int("count", removed),
			zap.Int("remaining", len(c.entries)))
	}
}

/**
 * Stop 停止缓存
 */
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()

		c.mu.Lock()
		c.entries = make(map[string]*entry)
		c.mu.Unlock()

		logger.Debug("内存缓存已停止", zap.Float64("hit_rate", c.stats.HitRate()))
	})
}

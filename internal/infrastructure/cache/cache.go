/**
 * Package cache 提供缓存抽象和实现
 *
 * 用于缓存 AI 增强结果等可重复计算的数据
 */

package cache

import (
	"sync/atomic"
	"time"
)

/**
 * Cache 缓存接口
 *
 * 定义缓存的基本操作，便于替换不同实现
 */
type Cache interface {
	// Get 获取缓存值
	// Parameters:
	//   - key: 缓存键
	// Returns: interface{} - 缓存值, bool - 是否找到
	Get(key string) (interface{}, bool)

	// Set 设置缓存值
	// Parameters:
	//   - key: 缓存键
	//   - value: 缓存值
	//   - ttl: 过期时间（0表示永不过期）
	Set(key string, value interface{}, ttl time.Duration)

	// Delete 删除缓存
	// Parameters:
	//   - key: 缓存键
	Delete(key string)

	// Clear 清空所有缓存
	Clear()

	// Len 获取缓存项数量
	// Returns: int - 缓存项数量
	Len() int

	// Stop 停止缓存（清理资源）
	Stop()
}

/**
 * Stats 缓存统计信息
 *
 * 所有计数器使用原子操作，读取时得到的是近似一致的快照。
 */
type Stats struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

// Snapshot 统计信息快照
type Snapshot struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
}

func (s *Stats) recordHit()      { s.hits.Add(1) }
func (s *Stats) recordMiss()     { s.misses.Add(1) }
func (s *Stats) recordSet()      { s.sets.Add(1) }
func (s *Stats) recordEviction() { s.evictions.Add(1) }

/**
 * Snapshot 获取统计信息快照
 *
 * Returns: Snapshot - 统计快照
 */
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Sets:      s.sets.Load(),
		Evictions: s.evictions.Load(),
	}
}

/**
 * HitRate 计算缓存命中率
 *
 * Returns: float64 - 命中率（0-1之间）
 */
func (s *Stats) HitRate() float64 {
	hits := s.hits.Load()
	total := hits + s.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"github.com/chenyang-zz/voxflow/pkg/events"
	"go.uber.org/zap"
)

/**
 * BatchWriterConfig 批量写入器配置
 */
type BatchWriterConfig struct {
	// BatchSize 批量大小（达到此数量时自动刷新）
	BatchSize int

	// FlushInterval 刷新间隔（定时刷新）
	FlushInterval time.Duration

	// EventBuffer 缓冲区大小（channel 容量）
	EventBuffer int
}

/**
 * DefaultBatchWriterConfig 默认配置
 *
 * 听写场景的事件量远低于键盘监控，批量和缓冲都不需要很大。
 */
func DefaultBatchWriterConfig() BatchWriterConfig {
	return BatchWriterConfig{
		BatchSize:     50,
		FlushInterval: 5 * time.Second,
		EventBuffer:   500,
	}
}

/**
 * BatchWriter 批量写入器
 *
 * 缓冲模式生命周期事件并批量写入数据库，
 * 让持久化完全脱离调度热路径。
 */
type BatchWriter struct {
	repo   EventRepository
	config BatchWriterConfig

	// 事件通道
	eventChan chan events.Event

	// 批量缓冲区
	buffer []events.Event

	// persisted 成功持久化的事件数
	persisted atomic.Int64

	// dropped 因通道满而丢弃的事件数
	dropped atomic.Int64

	// 并发控制
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 状态
	started bool
}

/**
 * NewBatchWriter 创建批量写入器
 *
 * Parameters:
 *   - repo: 事件仓储
 *   - config: 配置（使用 DefaultBatchWriterConfig() 获取默认配置）
 *
 * Returns: *BatchWriter - 批量写入器实例
 */
func NewBatchWriter(repo EventRepository, config BatchWriterConfig) *BatchWriter {
	ctx, cancel := context.WithCancel(context.Background())

	return &BatchWriter{
		repo:      repo,
		config:    config,
		eventChan: make(chan events.Event, config.EventBuffer),
		buffer:    make([]events.Event, 0, config.BatchSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

/**
 * Start 启动批量写入器
 *
 * 开始处理事件通道和定时刷新
 */
func (bw *BatchWriter) Start() {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.started {
		logger.Warn("批量写入器已经启动")
		return
	}
	bw.started = true

	bw.wg.Add(1)
	go bw.processEvents()

	bw.wg.Add(1)
	go bw.flushLoop()

	logger.Info("批量写入器已启动",
		zap.Int("batch_size", bw.config.BatchSize),
		zap.Duration("flush_interval", bw.config.FlushInterval),
		zap.Int("event_buffer", bw.config.EventBuffer),
	)
}

/**
 * Stop 停止批量写入器
 *
 * 停止接收新事件，刷新缓冲区，等待所有写入完成
 */
func (bw *BatchWriter) Stop() {
	bw.mu.Lock()
	if !bw.started {
		bw.mu.Unlock()
		return
	}
	bw.started = false
	bw.mu.Unlock()

	logger.Info("正在停止批量写入器...")

	close(bw.eventChan)
	bw.cancel()
	bw.wg.Wait()

	// goroutine 都退出后刷掉缓冲区里的尾巴
	bw.mu.Lock()
	bw.flush()
	bw.mu.Unlock()

	logger.Info("批量写入器已停止")
}

/**
 * Write 写入单个事件
 *
 * 非阻塞方法，将事件放入通道
 *
 * Parameters:
 *   - event: 事件对象
 *
 * Returns: bool - 是否成功写入（通道满时返回 false）
 */
func (bw *BatchWriter) Write(event events.Event) bool {
	select {
	case bw.eventChan <- event:
		return true
	default:
		bw.dropped.Add(1)
		logger.Warn("批量写入器通道已满，事件丢弃",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
		)
		return false
	}
}

/**
 * ForceFlush 强制刷新缓冲区
 *
 * 立即将缓冲区中的所有事件写入数据库
 */
func (bw *BatchWriter) ForceFlush() {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	bw.flush()
}

/**
 * processEvents 事件处理循环
 *
 * 从通道接收事件并放入缓冲区
 */
func (bw *BatchWriter) processEvents() {
	defer bw.wg.Done()

	for event := range bw.eventChan {
		bw.mu.Lock()
		bw.buffer = append(bw.buffer, event)

		// 达到批量大小，立即刷新
		if len(bw.buffer) >= bw.config.BatchSize {
			bw.flush()
		}
		bw.mu.Unlock()
	}
}

/**
 * flushLoop 定时刷新循环
 */
func (bw *BatchWriter) flushLoop() {
	defer bw.wg.Done()

	ticker := time.NewTicker(bw.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-bw.ctx.Done():
			return
		case <-ticker.C:
			bw.mu.Lock()
			bw.flush()
			bw.mu.Unlock()
		}
	}
}

/**
 * flush 刷新缓冲区到数据库
 *
 * 必须在持有锁的情况下调用
 */
func (bw *BatchWriter) flush() {
	if len(bw.buffer) == 0 {
		return
	}

	startTime := time.Now()
	eventCount := len(bw.buffer)

	if err := bw.repo.SaveBatch(bw.buffer); err != nil {
		logger.Error("批量写入失败",
			zap.Int("count", eventCount),
			zap.Error(err),
		)
		return
	}

	bw.buffer = bw.buffer[:0]
	bw.persisted.Add(int64(eventCount))

	logger.Debug("批量刷新完成",
		zap.Int("count", eventCount),
		zap.Duration("duration", time.Since(startTime)),
	)
}

/**
 * BufferSize 获取当前缓冲区大小
 *
 * Returns: int - 缓冲区中的事件数量
 */
func (bw *BatchWriter) BufferSize() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

/**
 * IsStarted 检查批量写入器是否已启动
 *
 * Returns: bool - 是否已启动
 */
func (bw *BatchWriter) IsStarted() bool {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.started
}

/**
 * Persisted 返回已成功持久化的事件数
 */
func (bw *BatchWriter) Persisted() int64 {
	return bw.persisted.Load()
}

/**
 * Dropped 返回因通道满而丢弃的事件数
 */
func (bw *BatchWriter) Dropped() int64 {
	return bw.dropped.Load()
}

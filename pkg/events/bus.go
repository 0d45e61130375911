/**
 * Package events 提供事件总线实现
 *
 * EventBus 是发布-订阅模式的核心实现，支持：
 * - 按类型订阅和发布
 * - 通配符订阅
 * - 异步事件处理
 * - 中间件链
 * - 优雅关闭
 */

package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// EventHandler 事件处理函数类型
type EventHandler func(event Event) error

// Middleware 中间件类型
//
// 中间件可以包装事件处理函数，添加日志、恢复等功能。
type Middleware func(EventHandler) EventHandler

// Subscriber 订阅者信息
type Subscriber struct {
	// ID 订阅者唯一标识
	ID string

	// Handler 事件处理函数
	Handler EventHandler

	// Chan 订阅者专用通道（用于异步交付）
	Chan chan Event

	// mu 保护 Chan 的发送和关闭
	mu sync.RWMutex
}

// EventBus 事件总线
//
// 核心的发布-订阅系统实现。
type EventBus struct {
	// subscribers 订阅者映射：事件类型 -> 订阅者列表
	subscribers map[string][]*Subscriber

	// mutex 保护 subscribers 的读写锁
	mutex sync.RWMutex

	// wg 等待组，用于优雅关闭
	wg sync.WaitGroup

	// stopChan 停止信号通道
	stopChan chan struct{}

	// middleware 中间件链
	middleware []Middleware

	// stopped 原子标志，标记总线是否已停止
	stopped atomic.Bool

	// bufferSize 订阅者通道的缓冲区大小
	bufferSize int

	// seq 订阅者 ID 序号
	seq atomic.Int64
}

// Option 配置选项类型
type Option func(*EventBus)

// WithBufferSize 设置订阅者通道缓冲区大小
func WithBufferSize(size int) Option {
	return func(bus *EventBus) {
		bus.bufferSize = size
	}
}

// NewEventBus 创建新的事件总线
//
// Parameters:
//   - opts: 配置选项（可选）
//
// Returns: *EventBus - 新创建的事件总线
func NewEventBus(opts ...Option) *EventBus {
	bus := &EventBus{
		subscribers: make(map[string][]*Subscriber),
		stopChan:    make(chan struct{}),
		middleware:  make([]Middleware, 0),
		bufferSize:  256,
	}

	for _, opt := range opts {
		opt(bus)
	}

	return bus
}

// Subscribe 订阅事件
//
// Parameters:
//   - eventType: 事件类型，使用 "*" 订阅所有事件
//   - handler: 事件处理函数
//
// Returns: string - 订阅者 ID，用于取消订阅
func (bus *EventBus) Subscribe(eventType string, handler EventHandler) string {
	subscriber := &Subscriber{
		ID:      fmt.Sprintf("sub-%d", bus.seq.Add(1)),
		Handler: handler,
		Chan:    make(chan Event, bus.bufferSize),
	}

	bus.mutex.Lock()
	defer bus.mutex.Unlock()

	bus.subscribers[eventType] = append(bus.subscribers[eventType], subscriber)

	logger.Debug("订阅事件",
		zap.String("event_type", eventType),
		zap.String("subscriber_id", subscriber.ID),
	)

	// 启动订阅者的异步处理循环
	bus.wg.Add(1)
	go bus.processSubscriber(subscriber)

	return subscriber.ID
}

// Unsubscribe 取消订阅
//
// Parameters: subscriberID - 订阅者 ID
func (bus *EventBus) Unsubscribe(subscriberID string) {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()

	for eventType, subscribers := range bus.subscribers {
		for i, sub := range subscribers {
			if sub.ID == subscriberID {
				bus.subscribers[eventType] = append(subscribers[:i], subscribers[i+1:]...)

				// 关闭通道（加锁保护，避免与 Publish 竞争）
				sub.mu.Lock()
				close(sub.Chan)
				sub.mu.Unlock()

				return
			}
		}
	}

	logger.Debug("订阅者不存在，无法取消订阅", zap.String("subscriber_id", subscriberID))
}

// Publish 发布事件
//
// 将事件放入每个匹配订阅者的通道，由订阅者 goroutine 异步处理。
// 订阅者缓冲区满时丢弃该订阅者的此条事件。
//
// Parameters:
//   - event: 事件对象
//
// Returns: error - 总线已停止时返回错误
func (bus *EventBus) Publish(event Event) error {
	if bus.stopped.Load() {
		return fmt.Errorf("event bus is stopped")
	}

	bus.mutex.RLock()
	subscribers := bus.getSubscribers(string(event.Type))
	bus.mutex.RUnlock()

	for _, subscriber := range subscribers {
		subscriber.mu.RLock()
		select {
		case subscriber.Chan <- event:
		default:
			logger.Warn("事件缓冲区满，丢弃事件",
				zap.String("subscriber_id", subscriber.ID),
				zap.String("event_type", string(event.Type)),
			)
		}
		subscriber.mu.RUnlock()
	}

	return nil
}

// Use 添加中间件
//
// 中间件按添加顺序执行。
func (bus *EventBus) Use(middleware Middleware) {
	bus.middleware = append(bus.middleware, middleware)
}

// Stop 优雅停止事件总线
//
// 会等待所有正在处理的事件完成。
//
// Parameters: timeout - 超时时间
// Returns: error - 超时时返回错误
func (bus *EventBus) Stop(timeout time.Duration) error {
	if bus.stopped.Swap(true) {
		return nil // 已经停止
	}

	close(bus.stopChan)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		bus.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for event bus to stop")
	}
}

// processSubscriber 处理订阅者事件
//
// 在独立的 goroutine 中运行，从通道读取事件并处理。
func (bus *EventBus) processSubscriber(subscriber *Subscriber) {
	defer bus.wg.Done()

	for {
		select {
		case event, ok := <-subscriber.Chan:
			if !ok {
				return
			}

			handler := bus.applyMiddleware(subscriber.Handler)
			if err := handler(event); err != nil {
				logger.Error("事件处理错误",
					zap.String("subscriber_id", subscriber.ID),
					zap.String("event_type", string(event.Type)),
					zap.Error(err),
				)
			}

		case <-bus.stopChan:
			return
		}
	}
}

// getSubscribers 获取事件类型的所有订阅者（包括通配符订阅者）
//
// 必须在持有读锁的情况下调用。
func (bus *EventBus) getSubscribers(eventType string) []*Subscriber {
	subscribers := make([]*Subscriber, 0)

	if subs, ok := bus.subscribers[eventType]; ok {
		subscribers = append(subscribers, subs...)
	}

	if wildcardSubs, ok := bus.subscribers["*"]; ok {
		subscribers = append(subscribers, wildcardSubs...)
	}

	return subscribers
}

// applyMiddleware 应用中间件链（洋葱模型）
func (bus *EventBus) applyMiddleware(handler EventHandler) EventHandler {
	for i := len(bus.middleware) - 1; i >= 0; i-- {
		handler = bus.middleware[i](handler)
	}
	return handler
}

// RecoveryMiddleware 恢复中间件
//
// 防止事件处理函数中的 panic 导致程序崩溃。
func RecoveryMiddleware() Middleware {
	return func(next EventHandler) EventHandler {
		return func(event Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()
			return next(event)
		}
	}
}

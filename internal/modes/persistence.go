/**
 * Package modes 模式控制器
 *
 * 事件持久化订阅者，把总线上的调度事件写入存储
 */

package modes

import (
	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"github.com/chenyang-zz/voxflow/internal/infrastructure/storage"
	"github.com/chenyang-zz/voxflow/pkg/events"
	"go.uber.org/zap"
)

/**
 * PersistenceConfig 持久化配置
 */
type PersistenceConfig struct {
	// EnabledEventTypes 需要持久化的事件类型
	EnabledEventTypes map[events.EventType]bool
}

/**
 * DefaultPersistenceConfig 默认持久化配置
 *
 * 持久化全部模式生命周期事件和钩子状态变更。
 */
func DefaultPersistenceConfig() PersistenceConfig {
	return PersistenceConfig{
		EnabledEventTypes: map[events.EventType]bool{
			events.EventTypeModeStarted:   true,
			events.EventTypeModeCommitted: true,
			events.EventTypeModeCancelled: true,
			events.EventTypeModeTriggered: true,
			events.EventTypeHookStatus:    true,
		},
	}
}

/**
 * EventPersister 事件持久化订阅者
 *
 * 以通配符订阅者的身份挂在事件总线上，把感兴趣的事件
 * 交给批量写入器。订阅者模式保证每个事件只持久化一次，
 * 与订阅者数量无关。
 */
type EventPersister struct {
	batchWriter *storage.BatchWriter
	config      PersistenceConfig

	subscriberID string
	bus          *events.EventBus
}

/**
 * NewEventPersister 创建事件持久化订阅者
 *
 * Parameters:
 *   - batchWriter: 批量写入器
 *   - config: 持久化配置
 *
 * Returns: *EventPersister - 持久化订阅者实例
 */
func NewEventPersister(batchWriter *storage.BatchWriter, config PersistenceConfig) *EventPersister {
	return &EventPersister{
		batchWriter: batchWriter,
		config:      config,
	}
}

/**
 * Attach 挂载到事件总线
 *
 * Parameters:
 *   - bus: 事件总线
 */
func (p *EventPersister) Attach(bus *events.EventBus) {
	p.bus = bus
	p.subscriberID = bus.Subscribe("*", p.handle)

	logger.Info("事件持久化已挂载",
		zap.Int("enabled_types", len(p.config.EnabledEventTypes)))
}

// Detach 从事件总线取消订阅
func (p *EventPersister) Detach() {
	if p.bus != nil && p.subscriberID != "" {
		p.bus.Unsubscribe(p.subscriberID)
		p.subscriberID = ""
	}
}

// handle 处理单个事件
func (p *EventPersister) handle(event events.Event) error {
	if !p.config.EnabledEventTypes[event.Type] {
		return nil
	}

	if !p.batchWriter.Write(event) {
		// 批量写入器自带缓冲和计数，满了只记录不重试
		logger.Warn("事件写入失败，已丢弃",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)))
	}
	return nil
}

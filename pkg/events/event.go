/**
 * Package events 提供事件系统的核心类型定义
 *
 * 事件系统是 VoxFlow 的内部通信机制，用于：
 * - 调度引擎发布模式生命周期事件
 * - 事件 tap 发布健康状态变更
 * - 持久化层和前端订阅实时更新
 *
 * 事件总线严格位于热路径之外：路由器在 OS 回调中只修改自身状态，
 * 事件发布发生在异步派发的后续任务里。
 */

package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型枚举
type EventType string

// 所有事件类型常量
const (
	// 模式生命周期事件
	EventTypeModeStarted   EventType = "mode_started"   // 主模式开始（录音开始）
	EventTypeModeCommitted EventType = "mode_committed" // 主模式正常结束并提交
	EventTypeModeCancelled EventType = "mode_cancelled" // 主模式被取消（未提交）
	EventTypeModeTriggered EventType = "mode_triggered" // 辅助模式触发

	// 系统事件
	EventTypeHookStatus EventType = "hook_status" // 事件 tap 健康状态变更
	EventTypePermission EventType = "permission"  // 辅助功能权限状态变更
	EventTypeError      EventType = "error"       // 错误事件
)

// Event 统一事件结构
//
// 所有模式和系统事件都使用此结构。
type Event struct {
	// ID 事件唯一标识符
	ID string `json:"id"`

	// Type 事件类型
	Type EventType `json:"type"`

	// Timestamp 事件发生时间
	Timestamp time.Time `json:"timestamp"`

	// Data 事件数据（类型特定的数据）
	Data map[string]interface{} `json:"data"`

	// Metadata 事件元数据（可选的额外信息）
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewEvent 创建新事件
//
// Parameters:
//   - eventType: 事件类型
//   - data: 事件数据
//
// Returns: *Event - 新创建的事件
func NewEvent(eventType EventType, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Metadata:  make(map[string]string),
	}
}

// WithMetadata 添加元数据
//
// Returns: *Event - 返回自身，支持链式调用
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// ModeEventData 模式生命周期事件数据
type ModeEventData struct {
	Action    string `json:"action"`     // 动作标识（primary/mode_a/mode_b/mode_c）
	SessionID string `json:"session_id"` // 关联的会话 ID（如适用）
}

// HookStatusEventData 事件 tap 状态数据
type HookStatusEventData struct {
	State   string `json:"state"`   // 当前生命周期状态
	Healthy bool   `json:"healthy"` // 是否健康
}

package platform

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"github.com/chenyang-zz/voxflow/pkg/clock"
	"go.uber.org/zap"
)

// HookState 事件钩子的生命周期状态
type HookState string

const (
	// StateUninitialized 钩子尚未创建
	StateUninitialized HookState = "uninitialized"

	// StateInitializing 钩子正在创建中（含启动延迟和重试）
	StateInitializing HookState = "initializing"

	// StateEnabled 钩子已启用，事件正常送达
	StateEnabled HookState = "enabled"

	// StateDisabledByOS 钩子被操作系统停用，等待恢复
	StateDisabledByOS HookState = "disabled_by_os"

	// StateRecreating 重新启用失败，正在销毁并重建钩子
	StateRecreating HookState = "recreating"

	// StatePermissionDenied 缺少辅助功能权限，无法创建钩子
	StatePermissionDenied HookState = "permission_denied"

	// StateFailed 创建重试次数耗尽，进入终态
	StateFailed HookState = "failed"

	// StateClosed 钩子已主动关闭
	StateClosed HookState = "closed"
)

// 事件钩子相关的哨兵错误
var (
	// ErrPermissionDenied 辅助功能权限未授予
	ErrPermissionDenied = errors.New("accessibility permission denied")

	// ErrHookCreationFailed 钩子创建重试耗尽
	ErrHookCreationFailed = errors.New("event hook creation failed")

	// ErrHookRevoked 钩子被操作系统吊销且无法恢复
	ErrHookRevoked = errors.New("event hook revoked by OS")

	// ErrTapClosed 钩子已关闭
	ErrTapClosed = errors.New("event tap closed")
)

// EventTapConfig 事件钩子管理器配置
type EventTapConfig struct {
	// StartupDelay 启动后延迟多久再创建钩子
	//
	// 应用启动初期系统可能尚未完成权限注册，
	// 立即创建会出现误判为无权限的竞态。
	StartupDelay time.Duration

	// HealthCheckInterval 健康检查周期
	HealthCheckInterval time.Duration

	// MaxCreateAttempts 创建钩子的最大尝试次数
	MaxCreateAttempts int

	// RetryDelay 两次创建尝试之间的间隔
	RetryDelay time.Duration
}

// DefaultEventTapConfig 返回默认的管理器配置
func DefaultEventTapConfig() EventTapConfig {
	return EventTapConfig{
		StartupDelay:        1500 * time.Millisecond,
		HealthCheckInterval: 30 * time.Second,
		MaxCreateAttempts:   5,
		RetryDelay:          500 * time.Millisecond,
	}
}

// EventTap 事件钩子资源管理器
//
// 负责钩子的完整生命周期：延迟创建、权限校验、有限重试、
// 周期健康检查，以及被 OS 停用后的自愈恢复（先尝试重新启用，
// 失败则销毁重建）。上层只注册一次回调，钩子的重建对上层透明。
type EventTap struct {
	// clk 时钟，测试中注入假时钟
	clk clock.Clock

	// source 底层钩子实现
	source HookSource

	// perm 权限检查器
	perm PermissionChecker

	// cfg 生命周期配置
	cfg EventTapConfig

	// handler 上层注册的事件回调
	handler EventHandler

	// onState 状态变化通知（可选）
	onState func(HookState)

	// mu 保护以下可变状态
	mu sync.Mutex

	// state 当前生命周期状态
	state HookState

	// opened 底层钩子当前是否处于打开状态
	opened bool

	// attempts 当前创建周期已消耗的尝试次数
	attempts int

	// recovery 当前创建周期是否属于恢复路径
	//
	// 初始创建的重试有限，耗尽进入 Failed 终态；恢复路径的
	// 重试不设上限，以健康检查周期限速继续尝试。
	recovery bool

	// startTask 延迟启动任务
	startTask clock.TaskHandle

	// healthTask 下一次健康检查任务
	healthTask clock.TaskHandle

	// closed 管理器是否已关闭
	closed bool
}

// EventTapOption EventTap 的可选配置
type EventTapOption func(*EventTap)

// WithEventTapClock 注入自定义时钟（测试用）
func WithEventTapClock(clk clock.Clock) EventTapOption {
	return func(t *EventTap) {
		t.clk = clk
	}
}

// WithStateListener 注册状态变化回调
//
// 回调在管理器内部锁之外同步调用，不能阻塞。
func WithStateListener(fn func(HookState)) EventTapOption {
	return func(t *EventTap) {
		t.onState = fn
	}
}

// NewEventTap 创建事件钩子资源管理器
//
// Parameters:
//   - source: 底层钩子实现
//   - perm: 权限检查器
//   - cfg: 生命周期配置
//   - handler: 键盘事件回调
//
// Returns: *EventTap - 管理器实例（尚未启动）
func NewEventTap(source HookSource, perm PermissionChecker, cfg EventTapConfig, handler EventHandler, opts ...EventTapOption) *EventTap {
	t := &EventTap{
		clk:     clock.New(),
		source:  source,
		perm:    perm,
		cfg:     cfg,
		handler: handler,
		state:   StateUninitialized,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start 启动管理器
//
// 创建动作延迟 StartupDelay 之后执行，Start 本身立即返回。
// 重复调用返回错误。
func (t *EventTap) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTapClosed
	}
	if t.state != StateUninitialized {
		return fmt.Errorf("event tap already started (state: %s)", t.state)
	}

	t.setStateLocked(StateInitializing)
	t.attempts = 0
	t.recovery = false
	t.startTask = t.clk.AfterFunc(t.cfg.StartupDelay, t.attemptCreate)

	logger.Info("事件钩子延迟启动已排定",
		zap.Duration("delay", t.cfg.StartupDelay),
		zap.String("component", "eventtap"))
	return nil
}

// attemptCreate 执行一次创建尝试
//
// 创建失败时按 RetryDelay 自排程下一次尝试。初始创建的
// 重试次数耗尽后进入 Failed 终态；恢复路径耗尽后改按
// 健康检查周期继续尝试。
func (t *EventTap) attemptCreate() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	if !t.perm.CheckAccessibility() {
		t.setStateLocked(StatePermissionDenied)
		t.mu.Unlock()
		logger.Error("辅助功能权限未授予，无法创建事件钩子",
			zap.String("component", "eventtap"))
		t.perm.RequestAccessibility()
		return
	}

	t.attempts++
	attempt := t.attempts
	t.mu.Unlock()

	err := t.source.Open(t.dispatch)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		if err == nil {
			t.opened = true
		}
		return
	}

	if err == nil {
		t.opened = true
		t.attempts = 0
		t.setStateLocked(StateEnabled)
		t.scheduleHealthCheckLocked()
		logger.Info("事件钩子创建成功",
			zap.Int("attempt", attempt),
			zap.String("component", "eventtap"))
		return
	}

	logger.Warn("事件钩子创建失败",
		zap.Int("attempt", attempt),
		zap.Int("maxAttempts", t.cfg.MaxCreateAttempts),
		zap.Error(err),
		zap.String("component", "eventtap"))

	if attempt >= t.cfg.MaxCreateAttempts {
		// 恢复路径不进入终态：退避到健康检查周期继续尝试
		if t.recovery {
			t.attempts = 0
			t.startTask = t.clk.AfterFunc(t.cfg.HealthCheckInterval, t.attemptCreate)
			logger.Warn("事件钩子重建重试耗尽，按健康检查周期继续尝试",
				zap.Duration("interval", t.cfg.HealthCheckInterval),
				zap.String("component", "eventtap"))
			return
		}
		t.setStateLocked(StateFailed)
		logger.Error("事件钩子创建重试耗尽",
			zap.Int("attempts", attempt),
			zap.String("component", "eventtap"))
		return
	}

	t.startTask = t.clk.AfterFunc(t.cfg.RetryDelay, t.attemptCreate)
}

// dispatch 底层事件入口
//
// 停用通知在这里截获并触发恢复，其余事件转交上层回调。
func (t *EventTap) dispatch(ev KeyEvent) bool {
	if ev.Kind == KindTapDisabled {
		// 恢复涉及销毁重建，不能在钩子回调线程上同步执行
		go t.recover()
		return false
	}

	t.mu.Lock()
	handler := t.handler
	enabled := t.state == StateEnabled
	t.mu.Unlock()

	if !enabled || handler == nil {
		return false
	}
	return handler(ev)
}

// recover 处理被 OS 停用的钩子
//
// 先尝试原地重新启用，失败则销毁并重建。
func (t *EventTap) recover() {
	t.mu.Lock()
	if t.closed || t.state != StateEnabled {
		t.mu.Unlock()
		return
	}
	t.setStateLocked(StateDisabledByOS)
	t.mu.Unlock()

	logger.Warn("事件钩子被操作系统停用，尝试恢复",
		zap.String("component", "eventtap"))

	if t.source.Reenable() {
		t.mu.Lock()
		if !t.closed && t.state == StateDisabledByOS {
			t.setStateLocked(StateEnabled)
			// 恢复期间健康检查可能已空转退出，重新排定
			t.scheduleHealthCheckLocked()
		}
		t.mu.Unlock()
		logger.Info("事件钩子重新启用成功", zap.String("component", "eventtap"))
		return
	}

	t.recreate()
}

// recreate 销毁当前钩子并重新走创建流程
func (t *EventTap) recreate() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.setStateLocked(StateRecreating)
	opened := t.opened
	t.opened = false
	t.mu.Unlock()

	if opened {
		if err := t.source.Close(); err != nil {
			logger.Warn("销毁旧事件钩子失败",
				zap.Error(err),
				zap.String("component", "eventtap"))
		}
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.attempts = 0
	t.recovery = true
	t.setStateLocked(StateInitializing)
	t.mu.Unlock()

	t.attemptCreate()
}

// scheduleHealthCheckLocked 排定下一次健康检查
//
// 调用方必须持有 t.mu。
func (t *EventTap) scheduleHealthCheckLocked() {
	if t.healthTask != nil {
		t.healthTask.Cancel()
	}
	t.healthTask = t.clk.AfterFunc(t.cfg.HealthCheckInterval, t.healthCheck)
}

// healthCheck 周期性探测钩子状态
//
// OS 可能吊销钩子而不送达停用通知（例如权限被撤回），
// 健康检查兜底发现这种情况并触发重建。
func (t *EventTap) healthCheck() {
	t.mu.Lock()
	if t.closed || t.state != StateEnabled {
		t.mu.Unlock()
		return
	}
	t.scheduleHealthCheckLocked()
	t.mu.Unlock()

	if t.source.IsEnabled() {
		return
	}

	logger.Warn("健康检查发现事件钩子已失效",
		zap.String("component", "eventtap"))

	if t.source.Reenable() {
		logger.Info("事件钩子重新启用成功", zap.String("component", "eventtap"))
		return
	}

	t.recreate()
}

// Reinitialize 手动触发钩子重建
//
// 供上层在用户授予权限后主动调用。Failed 和 PermissionDenied
// 终态也可以通过它重新进入创建流程。
func (t *EventTap) Reinitialize() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTapClosed
	}
	if t.state == StateUninitialized {
		t.mu.Unlock()
		return fmt.Errorf("event tap not started")
	}
	t.mu.Unlock()

	logger.Info("手动触发事件钩子重建", zap.String("component", "eventtap"))
	t.recreate()
	return nil
}

// State 返回当前生命周期状态
func (t *EventTap) State() HookState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsHealthy 返回钩子是否处于可用状态
func (t *EventTap) IsHealthy() bool {
	t.mu.Lock()
	enabled := t.state == StateEnabled
	t.mu.Unlock()

	return enabled && t.source.IsEnabled()
}

// Close 关闭管理器并销毁钩子（幂等）
func (t *EventTap) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.startTask != nil {
		t.startTask.Cancel()
	}
	if t.healthTask != nil {
		t.healthTask.Cancel()
	}
	opened := t.opened
	t.opened = false
	t.setStateLocked(StateClosed)
	t.mu.Unlock()

	if opened {
		return t.source.Close()
	}
	return nil
}

// setStateLocked 更新状态并触发通知
//
// 调用方必须持有 t.mu。通知回调在独立 goroutine 中执行，
// 避免监听方回调管理器方法时死锁。
func (t *EventTap) setStateLocked(state HookState) {
	if t.state == state {
		return
	}
	t.state = state
	if t.onState != nil {
		fn := t.onState
		go fn(state)
	}
}

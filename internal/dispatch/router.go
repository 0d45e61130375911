package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"github.com/chenyang-zz/voxflow/internal/platform"
	"github.com/chenyang-zz/voxflow/pkg/clock"
	"go.uber.org/zap"
)

// Callbacks 调度器的回调集合
//
// 除 OnCancelRequested 外，所有回调都在独立 goroutine 中异步执行，
// 回调内部的阻塞或 panic 不会影响调度器和 OS 回调路径。
// 未设置的回调按空操作处理。
type Callbacks struct {
	// StartPrimary 开始主录音会话
	StartPrimary func()

	// StopAndCommitPrimary 结束主录音会话并提交结果
	StopAndCommitPrimary func()

	// StopPrimaryDiscard 结束主录音会话并丢弃结果
	StopPrimaryDiscard func()

	// TriggerModeA 触发辅助模式 A
	TriggerModeA func()

	// TriggerModeB 触发辅助模式 B
	TriggerModeB func()

	// TriggerModeC 触发辅助模式 C
	TriggerModeC func()

	// OnCancelRequested 取消键按下时的同步回调
	//
	// 主会话未运行时，取消键给上层一个关闭弹层、撤销确认框
	// 之类的机会。返回 true 表示取消被处理，事件会被消费。
	// 这是唯一的同步回调，必须轻量。
	OnCancelRequested func() bool
}

// RouterConfig 调度器配置
type RouterConfig struct {
	// Bindings 各动作的绑定
	Bindings map[Action]Binding

	// Priority 绑定的检查顺序，空时使用 DefaultPriority
	Priority []Action

	// DoubleTapAlternate 主绑定双击时触发的备选动作，空表示禁用双击协议
	DoubleTapAlternate Action

	// MinActivationInterval 防抖最小激活间隔，<=0 使用默认值
	MinActivationInterval time.Duration

	// SwitchingWindow 防抖切换窗口，<=0 使用默认值
	SwitchingWindow time.Duration

	// DoubleTapThreshold 双击判定阈值，<=0 使用默认值
	DoubleTapThreshold time.Duration

	// SingleTapDelay 切换风格下单击动作的延迟窗口，<=0 使用默认值
	SingleTapDelay time.Duration
}

// Router 快捷键事件调度器
//
// 接收事件 tap 送来的每个原始键盘事件，按显式配置的优先级
// 顺序检查所有启用的绑定，第一个匹配的绑定获胜。
// HandleEvent 返回 true 表示事件被消费，不再传递给前台应用。
//
// 并发契约：HandleEvent 在 OS 回调路径上同步执行，只做内存
// 状态更新和任务调度，从不阻塞；状态更新和回调派发在同一把
// 锁下决定，同一个事件不会产生两个矛盾的动作。
type Router struct {
	// clk 注入的时钟
	clk clock.Clock

	// cb 回调集合
	cb Callbacks

	// debounce 激活防抖守卫
	debounce *DebounceGuard

	// doubleTap 主绑定的双击消歧器
	doubleTap *DoubleTapDisambiguator

	// alternate 双击备选动作，空表示禁用
	alternate Action

	mu sync.Mutex

	// bindings 各动作的当前绑定
	bindings map[Action]Binding

	// priority 绑定检查顺序
	priority []Action

	// held 各动作的物理按住状态（组合键当前是否被按住）
	held map[Action]bool

	// runningPrimary 主会话的逻辑运行状态
	//
	// 与物理按住状态独立：切换风格下按键早已松开而会话仍在运行。
	runningPrimary bool
}

// RouterOption Router 的可选配置
type RouterOption func(*Router)

// WithRouterClock 注入自定义时钟（测试用）
func WithRouterClock(clk clock.Clock) RouterOption {
	return func(r *Router) {
		r.clk = clk
	}
}

// NewRouter 创建调度器
//
// Parameters:
//   - cfg: 绑定、优先级和时间参数
//   - cb: 回调集合
//
// Returns: *Router - 调度器实例
func NewRouter(cfg RouterConfig, cb Callbacks, opts ...RouterOption) *Router {
	r := &Router{
		clk:       clock.New(),
		cb:        cb,
		alternate: cfg.DoubleTapAlternate,
		bindings:  make(map[Action]Binding),
		held:      make(map[Action]bool),
	}
	for _, opt := range opts {
		opt(r)
	}

	for action, b := range cfg.Bindings {
		r.bindings[action] = b
	}

	if len(cfg.Priority) > 0 {
		r.priority = append([]Action(nil), cfg.Priority...)
	} else {
		r.priority = DefaultPriority()
	}

	r.debounce = NewDebounceGuard(r.clk, cfg.MinActivationInterval, cfg.SwitchingWindow)
	r.doubleTap = NewDoubleTapDisambiguator(r.clk, cfg.DoubleTapThreshold, cfg.SingleTapDelay)

	return r
}

// HandleEvent 处理一个原始键盘事件
//
// Parameters: ev - 事件 tap 送来的原始事件
// Returns: bool - true 表示事件被消费（不传递给前台应用）
func (r *Router) HandleEvent(ev platform.KeyEvent) bool {
	if ev.Kind == platform.KindTapDisabled {
		return false
	}

	// 取消键优先于所有绑定检查
	if ev.Kind == platform.KindKeyDown &&
		ev.KeyCode == KeyCodeEscape &&
		ev.Modifiers&RelevantModifierMask == 0 {
		return r.handleCancel()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, action := range r.priority {
		binding, ok := r.bindings[action]
		if !ok || !binding.Enabled {
			continue
		}

		// 与主绑定共享组合键的备选动作由双击协议触发
		if r.alternate != "" && action == r.alternate {
			if primary, ok := r.bindings[ActionPrimary]; ok &&
				primary.Shortcut.KeyCode == binding.Shortcut.KeyCode &&
				primary.Shortcut.Modifiers == binding.Shortcut.Modifiers {
				continue
			}
		}

		if r.isPressLocked(binding, ev) {
			return r.handlePressLocked(action, binding)
		}
		if r.isReleaseLocked(binding, ev) {
			return r.handleReleaseLocked(action, binding)
		}
		// 已按住的带键绑定会收到 OS 的按键重复事件，吞掉
		if r.held[action] && !binding.Shortcut.IsModifierOnly() &&
			ev.Kind == platform.KindKeyDown &&
			binding.Shortcut.MatchesChord(ev.KeyCode, ev.Modifiers) {
			return true
		}
	}

	return false
}

// isPressLocked 判断事件是否构成绑定的按下
//
// 纯修饰键绑定只在修饰键变化事件上按下，带键绑定只在
// 键按下事件上按下。已处于按住状态的绑定不会重复按下。
func (r *Router) isPressLocked(b Binding, ev platform.KeyEvent) bool {
	if r.held[b.Action] {
		return false
	}
	if b.Shortcut.IsModifierOnly() {
		return ev.Kind == platform.KindFlagsChanged &&
			b.Shortcut.MatchesModifiers(ev.Modifiers)
	}
	return ev.Kind == platform.KindKeyDown &&
		b.Shortcut.MatchesChord(ev.KeyCode, ev.Modifiers)
}

// isReleaseLocked 判断事件是否构成绑定的松开
//
// 带键绑定在主键松开、或修饰键状态被破坏时都算松开
// （用户可能先松修饰键再松主键）。纯修饰键绑定在
// 修饰键集合偏离目标组合时松开。
func (r *Router) isReleaseLocked(b Binding, ev platform.KeyEvent) bool {
	if !r.held[b.Action] {
		return false
	}
	if b.Shortcut.IsModifierOnly() {
		return ev.Kind == platform.KindFlagsChanged &&
			!b.Shortcut.MatchesModifiers(ev.Modifiers)
	}
	if ev.Kind == platform.KindKeyUp && ev.KeyCode == b.Shortcut.KeyCode {
		return true
	}
	return ev.Kind == platform.KindFlagsChanged &&
		!b.Shortcut.MatchesModifiers(ev.Modifiers)
}

// handlePressLocked 处理绑定的按下
//
// 调用方持有 r.mu。
func (r *Router) handlePressLocked(action Action, binding Binding) bool {
	r.held[action] = true

	if action != ActionPrimary {
		r.fireTriggerLocked(action)
		return true
	}

	// 主绑定：备选动作可用时先过双击消歧，
	// 备选被禁用则整个双击协议旁路，单击动作立即生效
	alternateEnabled := r.alternateEnabledLocked()
	if alternateEnabled && r.doubleTap.Observe() == TapDouble {
		r.handleDoubleTapLocked()
		return true
	}

	if binding.Style == StyleToggle {
		if !alternateEnabled {
			r.togglePrimaryLocked()
			return true
		}
		// 切换风格下单击动作延迟执行，给双击留出抢占窗口
		if r.runningPrimary {
			r.doubleTap.SchedulePending(r.pendingStopCommit)
		} else {
			r.doubleTap.SchedulePending(r.pendingStart)
		}
		return true
	}

	// 按住风格：按下立即开始
	if !r.runningPrimary && r.debounce.CanActivate() {
		r.runningPrimary = true
		r.debounce.RecordActivation()
		r.dispatchAsync("start_primary", r.cb.StartPrimary)
	}
	return true
}

// handleReleaseLocked 处理绑定的松开
//
// 松开驱动的结束不过防抖：快速的按下-松开序列必须总能
// 结束它自己开始的会话，否则录音会卡在开启状态。
func (r *Router) handleReleaseLocked(action Action, binding Binding) bool {
	r.held[action] = false

	if action != ActionPrimary {
		return true
	}

	if binding.Style == StylePressAndHold && r.runningPrimary {
		// 双击窗口内的松开先挂起提交：紧随的第二次按下会
		// 改判为双击，本次会话要丢弃而不是提交
		if r.alternateEnabledLocked() && r.doubleTap.DeferUntilWindowClose(r.pendingHoldCommit) {
			return true
		}
		r.runningPrimary = false
		r.dispatchAsync("stop_commit_primary", r.cb.StopAndCommitPrimary)
	}
	return true
}

// alternateEnabledLocked 返回双击备选动作当前是否可用
//
// 备选动作被禁用时双击协议整体旁路：单击动作不再延迟，
// 双击也不会触发已禁用的动作。
func (r *Router) alternateEnabledLocked() bool {
	if r.alternate == "" {
		return false
	}
	b, ok := r.bindings[r.alternate]
	return ok && b.Enabled
}

// togglePrimaryLocked 立即翻转主会话状态（过防抖）
//
// 双击协议不可用时切换风格没有消歧需求，单击无需延迟。
func (r *Router) togglePrimaryLocked() {
	if !r.debounce.CanActivate() {
		return
	}
	r.debounce.RecordActivation()
	if r.runningPrimary {
		r.runningPrimary = false
		r.dispatchAsync("stop_commit_primary", r.cb.StopAndCommitPrimary)
	} else {
		r.runningPrimary = true
		r.dispatchAsync("start_primary", r.cb.StartPrimary)
	}
}

// handleDoubleTapLocked 处理主绑定的双击
//
// 运行中的主会话被丢弃（挂起的单击/提交任务已被消歧器取消），
// 然后触发备选动作。双击与首次按下属于同一个手势，备选触发
// 不再过防抖判定，只刷新激活时间戳。
func (r *Router) handleDoubleTapLocked() {
	if r.runningPrimary {
		r.runningPrimary = false
		r.dispatchAsync("stop_discard_primary", r.cb.StopPrimaryDiscard)
	}
	r.fireModeLocked(r.alternate)
}

// fireTriggerLocked 触发一个辅助模式（过防抖）
func (r *Router) fireTriggerLocked(action Action) {
	if !r.debounce.CanActivate() {
		logger.Debug("模式触发被防抖拦截",
			zap.String("action", string(action)),
			zap.String("component", "router"))
		return
	}
	r.fireModeLocked(action)
}

// fireModeLocked 记录激活并派发模式触发
func (r *Router) fireModeLocked(action Action) {
	r.debounce.RecordActivation()

	switch action {
	case ActionModeA:
		r.dispatchAsync("trigger_mode_a", r.cb.TriggerModeA)
	case ActionModeB:
		r.dispatchAsync("trigger_mode_b", r.cb.TriggerModeB)
	case ActionModeC:
		r.dispatchAsync("trigger_mode_c", r.cb.TriggerModeC)
	}
}

// pendingStart 切换风格下延迟执行的开始动作
//
// 延迟窗口结束时才做防抖判定和状态翻转：
// 调度时刻的判定到执行时刻可能已经失效。
func (r *Router) pendingStart() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runningPrimary || !r.debounce.CanActivate() {
		return
	}
	r.runningPrimary = true
	r.debounce.RecordActivation()
	r.dispatchAsync("start_primary", r.cb.StartPrimary)
}

// pendingStopCommit 切换风格下延迟执行的结束提交动作
func (r *Router) pendingStopCommit() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.runningPrimary || !r.debounce.CanActivate() {
		return
	}
	r.runningPrimary = false
	r.debounce.RecordActivation()
	r.dispatchAsync("stop_commit_primary", r.cb.StopAndCommitPrimary)
}

// pendingHoldCommit 按住风格下被双击窗口挂起的提交动作
//
// 与其它松开驱动的结束一样不过防抖（见 handleReleaseLocked）。
func (r *Router) pendingHoldCommit() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.runningPrimary {
		return
	}
	r.runningPrimary = false
	r.dispatchAsync("stop_commit_primary", r.cb.StopAndCommitPrimary)
}

// handleCancel 处理取消键
//
// 运行中的主会话被丢弃；随后给上层同步的取消机会。
// 任一方处理了取消，事件即被消费。
func (r *Router) handleCancel() bool {
	r.mu.Lock()
	handled := false
	r.doubleTap.CancelPending()
	if r.runningPrimary {
		r.runningPrimary = false
		handled = true
		r.dispatchAsync("stop_discard_primary", r.cb.StopPrimaryDiscard)
	}
	cancelCb := r.cb.OnCancelRequested
	r.mu.Unlock()

	if cancelCb != nil {
		if cancelCb() {
			handled = true
		}
	}
	return handled
}

// UpdateBinding 运行期更新一个动作的绑定
//
// 替换绑定会清除该动作的按住状态：旧组合键的松开事件
// 不应该再驱动任何动作。主绑定更新时，运行中的会话被
// 丢弃，挂起的单击任务被取消。
//
// Parameters: b - 新绑定（按 b.Action 替换）
// Returns: error - 动作标识为空时返回错误
func (r *Router) UpdateBinding(b Binding) error {
	if b.Action == "" {
		return fmt.Errorf("binding action must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.bindings[b.Action] = b
	r.held[b.Action] = false

	if b.Action == ActionPrimary {
		r.doubleTap.CancelPending()
		if r.runningPrimary {
			r.runningPrimary = false
			r.dispatchAsync("stop_discard_primary", r.cb.StopPrimaryDiscard)
		}
	}

	logger.Info("绑定已更新",
		zap.String("action", string(b.Action)),
		zap.String("shortcut", b.Shortcut.String()),
		zap.Bool("enabled", b.Enabled),
		zap.String("component", "router"))
	return nil
}

// Binding 返回一个动作的当前绑定
func (r *Router) Binding(action Action) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[action]
	return b, ok
}

// IsPrimaryRunning 返回主会话的逻辑运行状态
func (r *Router) IsPrimaryRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runningPrimary
}

// NotifyPrimaryFinished 通知调度器主会话已在外部结束
//
// 会话可能因为录音错误、上层超时等调度器之外的原因结束，
// 不同步这个状态会导致下一次按下被误判为 "停止"。
func (r *Router) NotifyPrimaryFinished() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runningPrimary = false
}

// Reset 清除调度器的全部瞬时状态
//
// 事件 tap 重建后按住/松开事件可能已经丢失，
// 以全新状态开始比带着半截状态猜更安全。
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.held = make(map[Action]bool)
	r.runningPrimary = false
	r.doubleTap.CancelPending()
	r.debounce.Reset()
}

// dispatchAsync 异步派发一个回调
//
// 回调在独立 goroutine 中执行，panic 被捕获并记录，
// 不会波及调度器或 OS 回调路径。
func (r *Router) dispatchAsync(name string, fn func()) {
	if fn == nil {
		return
	}
	go func() {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("回调执行时发生 panic",
					zap.String("callback", name),
					zap.Any("panic", err),
					zap.String("component", "router"))
			}
		}()
		fn()
	}()
}

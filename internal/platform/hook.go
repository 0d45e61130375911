/**
 * Package platform 提供操作系统输入钩子的抽象和生命周期管理
 *
 * 平台层分三部分：
 * - HookSource：OS 级事件 tap 的薄封装（macOS 上是 CGEventTap），
 *   负责创建、启用、销毁底层句柄，并把每个原始键盘事件
 *   同步送进注册的回调
 * - EventTap：资源管理器，负责延迟初始化、权限前置检查、
 *   有界重试、周期健康检查，以及 OS 静默吊销后的自愈恢复
 * - PermissionChecker：辅助功能权限的检查与引导
 *
 * 钩子回调执行在 OS 提供的低延迟上下文中，任何阻塞或异常
 * 都会拖慢系统级的键盘响应，甚至导致钩子被 OS 强制停用，
 * 所以回调内只做同步的轻量状态处理。
 */

package platform

// EventKind 原始键盘事件的类别
type EventKind int

const (
	// KindKeyDown 按键按下
	KindKeyDown EventKind = iota

	// KindKeyUp 按键松开
	KindKeyUp

	// KindFlagsChanged 修饰键状态变化
	KindFlagsChanged

	// KindTapDisabled 钩子被 OS 停用的内联通知
	// （超时保护或用户输入保护触发），不携带按键信息
	KindTapDisabled
)

// String 返回事件类别的字符串表示
func (k EventKind) String() string {
	switch k {
	case KindKeyDown:
		return "key_down"
	case KindKeyUp:
		return "key_up"
	case KindFlagsChanged:
		return "flags_changed"
	case KindTapDisabled:
		return "tap_disabled"
	default:
		return "unknown"
	}
}

// KeyEvent 一个原始键盘事件
type KeyEvent struct {
	// Kind 事件类别
	Kind EventKind

	// KeyCode 按键代码（KindFlagsChanged / KindTapDisabled 时无意义）
	KeyCode int

	// Modifiers 事件发生时的修饰键标志位（未过滤的 CGEventFlags）
	Modifiers uint64
}

// EventHandler 键盘事件处理函数
//
// 返回 true 表示事件被消费，OS 不再把它传递给前台应用。
// 此函数在 OS 的低延迟回调上下文中同步执行，必须无阻塞。
type EventHandler func(event KeyEvent) bool

// HookSource OS 输入钩子的抽象
//
// 调度核心不直接接触任何原始回调指针：钩子被建模为一个
// 在构造时注入的监听对象，darwin 构建使用 CGEventTap 实现，
// 其他平台和测试使用替身实现。
type HookSource interface {
	// Open 创建并启用底层钩子，注册事件回调
	// Returns: error - 创建失败时返回错误（最常见原因是缺少辅助功能权限）
	Open(handler EventHandler) error

	// Close 停用并销毁底层钩子
	// 可以安全地重复调用，也可以在从未 Open 成功时调用。
	Close() error

	// IsEnabled 探测底层钩子当前是否处于启用状态
	// 健康检查用它发现 OS 的静默吊销。
	IsEnabled() bool

	// Reenable 尝试轻量地重新启用已被停用的钩子
	// Returns: bool - true 表示重新启用成功
	Reenable() bool
}

package dispatch

// Action 可调度的动作标识
type Action string

// 所有动作常量
const (
	// ActionPrimary 主动作：开始/结束录音会话
	ActionPrimary Action = "primary"

	// ActionModeA 辅助模式 A（默认作为主绑定的双击备选）
	ActionModeA Action = "mode_a"

	// ActionModeB 辅助模式 B
	ActionModeB Action = "mode_b"

	// ActionModeC 辅助模式 C
	ActionModeC Action = "mode_c"
)

// ActivationStyle 激活风格
type ActivationStyle string

const (
	// StylePressAndHold 按住激活：按下开始，松开结束
	StylePressAndHold ActivationStyle = "press_and_hold"

	// StyleToggle 切换激活：按一次开始，再按一次结束
	StyleToggle ActivationStyle = "toggle"
)

// Binding 一个可调度的快捷键绑定
//
// 绑定把一个快捷键组合关联到一个动作。绑定本身是不可变的值，
// 运行期更新绑定会整体替换（见 Router.UpdateBinding）。
type Binding struct {
	// Action 绑定的动作标识
	Action Action

	// Shortcut 快捷键组合
	Shortcut Shortcut

	// Enabled 绑定是否启用
	Enabled bool

	// Style 激活风格（只对主动作有意义，辅助模式按下即触发）
	Style ActivationStyle
}

// DefaultPriority 默认的绑定检查优先级
//
// 每个事件按此顺序检查绑定，第一个匹配的绑定获胜，
// 之后不再检查其余绑定。顺序是显式配置而非隐式的代码顺序。
func DefaultPriority() []Action {
	return []Action{ActionModeA, ActionModeB, ActionModeC, ActionPrimary}
}

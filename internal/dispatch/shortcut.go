/**
 * Package dispatch 实现全局快捷键的模式调度引擎
 *
 * 调度引擎接收事件 tap 送来的每一个原始键盘事件，
 * 根据已配置的绑定（按键 + 修饰键组合）决定激活哪个应用模式：
 * - 主模式（录音）支持按住激活和切换激活两种风格
 * - 三个辅助模式按一次触发一次
 * - 双击消歧协议允许主绑定和一个辅助模式共享同一物理按键
 * - 防抖保护防止高开销的模式切换被快速重复触发
 *
 * 引擎在 OS 回调路径上只做同步、无阻塞的状态更新，
 * 所有对外部协作者的调用都异步派发。
 */

package dispatch

import (
	"fmt"
	"strings"
)

// 修饰键标志位常量（macOS CGEventFlags）
//
// 这些标志位用于标识键盘事件中的修饰键状态。
// macOS 的 CGEventFlags 使用位掩码表示多个修饰键的组合。
const (
	// ModifierCommand Command 键（⌘）标志位，对应 CGEventFlagMaskCommand
	ModifierCommand uint64 = 0x100000

	// ModifierShift Shift 键（⇧）标志位，对应 CGEventFlagMaskShift
	ModifierShift uint64 = 0x20000

	// ModifierControl Control 键（⌃）标志位，对应 CGEventFlagMaskControl
	ModifierControl uint64 = 0x10000

	// ModifierOption Option 键（⌥）标志位，对应 CGEventFlagMaskAlternate
	ModifierOption uint64 = 0x80000

	// ModifierFn Fn 键标志位，对应 CGEventFlagMaskSecondaryFn
	ModifierFn uint64 = 0x800000
)

// RelevantModifierMask 参与匹配的修饰键掩码
//
// 匹配时只比较五个已识别修饰键（Fn/Cmd/Opt/Ctrl/Shift）的交集，
// OS 事件中出现的其他标志位（如 Caps Lock、非坐标标志）一律忽略，
// 既不会造成误匹配，也不会造成漏匹配。
const RelevantModifierMask = ModifierFn | ModifierCommand | ModifierOption | ModifierControl | ModifierShift

// KeyCodeNone 表示纯修饰键快捷键没有常规按键
const KeyCodeNone = -1

// KeyCodeEscape Esc 键的虚拟键码，调度器的取消键
const KeyCodeEscape = 53

// keyNameToKeyCode 按键名称到 macOS 虚拟键码的映射表
var keyNameToKeyCode = map[string]int{
	// 字母键
	"a": 0, "b": 11, "c": 8, "d": 2, "e": 14, "f": 3, "g": 5, "h": 4,
	"i": 34, "j": 38, "k": 40, "l": 37, "m": 46, "n": 45, "o": 31, "p": 35,
	"q": 12, "r": 15, "s": 1, "t": 17, "u": 32, "v": 9, "w": 13, "x": 7,
	"y": 16, "z": 6,

	// 数字键
	"0": 29, "1": 18, "2": 19, "3": 20, "4": 21, "5": 23, "6": 22,
	"7": 26, "8": 25, "9": 28,

	// 功能键
	"f1": 122, "f2": 120, "f3": 99, "f4": 118, "f5": 96, "f6": 97,
	"f7": 98, "f8": 100, "f9": 101, "f10": 109, "f11": 103, "f12": 111,
	"f13": 105, "f14": 107, "f15": 113, "f16": 106, "f17": 64, "f18": 79,
	"f19": 80, "f20": 90,

	// 方向键
	"up":    126,
	"down":  125,
	"left":  123,
	"right": 124,

	// 特殊键
	"space":     49,
	"enter":     36,
	"return":    36,
	"tab":       48,
	"escape":    53,
	"esc":       53,
	"delete":    51,
	"backspace": 51,
	"home":      115,
	"end":       119,
	"pageup":    116,
	"pagedown":  117,
}

// modifierNameToFlag 修饰键名称到标志位的映射表
//
// 支持的名称（不区分大小写）：Fn / Cmd / Command / Shift /
// Ctrl / Control / Opt / Option / Alt。
var modifierNameToFlag = map[string]uint64{
	"fn":      ModifierFn,
	"cmd":     ModifierCommand,
	"command": ModifierCommand,
	"shift":   ModifierShift,
	"ctrl":    ModifierControl,
	"control": ModifierControl,
	"opt":     ModifierOption,
	"option":  ModifierOption,
	"alt":     ModifierOption,
}

// Shortcut 快捷键定义
//
// Shortcut 表示一个按键组合：一个常规按键加若干修饰键，
// 或者一个纯修饰键组合（KeyCode 为 KeyCodeNone）。
// 纯修饰键快捷键只在修饰键变化事件上匹配，
// 不会被普通的字符输入意外触发。
type Shortcut struct {
	// KeyCode macOS 虚拟键码，KeyCodeNone 表示纯修饰键快捷键
	KeyCode int

	// Modifiers 修饰键标志位组合，已限制在 RelevantModifierMask 内
	Modifiers uint64

	// repr 快捷键的字符串表示，用于日志
	repr string
}

// ParseShortcut 从字符串解析快捷键
//
// 支持的格式：
//   - "Cmd+Shift+A"：修饰键 + 常规按键
//   - "F5"：单个常规按键
//   - "Option"、"Fn+Cmd"：纯修饰键组合（按住/松开修饰键触发）
//
// Parameters: s - 快捷键字符串
// Returns:
//   - Shortcut: 解析出的快捷键
//   - error: 字符串为空、包含未知按键或未知修饰键时返回错误
func ParseShortcut(s string) (Shortcut, error) {
	if strings.TrimSpace(s) == "" {
		return Shortcut{}, fmt.Errorf("快捷键字符串不能为空")
	}

	parts := strings.Split(s, "+")

	var modifiers uint64
	keyCode := KeyCodeNone

	for i, part := range parts {
		name := strings.TrimSpace(strings.ToLower(part))
		last := i == len(parts)-1

		if flag, ok := modifierNameToFlag[name]; ok {
			modifiers |= flag
			continue
		}

		// 非修饰键名称只允许出现在最后一个位置
		if !last {
			return Shortcut{}, fmt.Errorf("未知的修饰键：%s", part)
		}

		code, ok := keyNameToKeyCode[name]
		if !ok {
			return Shortcut{}, fmt.Errorf("未知的按键：%s", part)
		}
		keyCode = code
	}

	return Shortcut{
		KeyCode:   keyCode,
		Modifiers: modifiers & RelevantModifierMask,
		repr:      s,
	}, nil
}

// NewShortcut 从键码和修饰键直接创建快捷键
//
// 修饰键会被限制在五个已识别修饰键的掩码内。
func NewShortcut(keyCode int, modifiers uint64) Shortcut {
	return Shortcut{
		KeyCode:   keyCode,
		Modifiers: modifiers & RelevantModifierMask,
	}
}

// IsModifierOnly 检查是否为纯修饰键快捷键
func (s Shortcut) IsModifierOnly() bool {
	return s.KeyCode == KeyCodeNone
}

// MatchesChord 检查观察到的按键状态是否与快捷键完全一致
//
// 两侧的修饰键集合都先与 RelevantModifierMask 取交集再比较相等，
// 键码直接比较相等。没有副作用，也没有失败路径。
//
// Parameters:
//   - keyCode: 观察到的按键代码（纯修饰键事件传 KeyCodeNone）
//   - modifiers: 观察到的修饰键标志位（未过滤）
//
// Returns: bool - true 表示匹配
func (s Shortcut) MatchesChord(keyCode int, modifiers uint64) bool {
	return s.KeyCode == keyCode && s.Modifiers == (modifiers&RelevantModifierMask)
}

// MatchesModifiers 检查观察到的修饰键状态是否与快捷键的修饰键一致
//
// 用于纯修饰键快捷键的按下/松开判定，以及带键快捷键的
// "修饰键状态丢失" 判定。
func (s Shortcut) MatchesModifiers(modifiers uint64) bool {
	return s.Modifiers == (modifiers & RelevantModifierMask)
}

// String 返回快捷键的字符串表示
func (s Shortcut) String() string {
	if s.repr != "" {
		return s.repr
	}
	return fmt.Sprintf("KeyCode:%d,Modifiers:0x%x", s.KeyCode, s.Modifiers)
}

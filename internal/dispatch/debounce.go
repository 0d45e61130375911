package dispatch

import (
	"sync"
	"time"

	"github.com/chenyang-zz/voxflow/pkg/clock"
)

// 防抖默认参数
const (
	// DefaultMinActivationInterval 两次模式激活之间的最小间隔
	DefaultMinActivationInterval = 500 * time.Millisecond

	// DefaultSwitchingWindow isSwitching 标志的自动清除延迟
	DefaultSwitchingWindow = 300 * time.Millisecond
)

// DebounceGuard 模式激活的防抖守卫
//
// 连续的 OS 事件（按键重复、快速的松开-按下序列）不能重复触发
// 带昂贵副作用的模式切换（启动音频采集、发起 AI 调用等），
// 所以这是一个基于时间的守卫，而不是计数守卫：
//   - 距上次激活不足最小间隔时拒绝激活
//   - 激活后的一小段 "切换中" 窗口内拒绝任何激活，
//     窗口无条件在固定延迟后自动清除，与其他事件无关
type DebounceGuard struct {
	// clk 注入的时钟，测试时用 FakeClock
	clk clock.Clock

	// minInterval 两次激活之间的最小间隔
	minInterval time.Duration

	// switchingWindow 切换标志的自动清除延迟
	switchingWindow time.Duration

	mu sync.Mutex

	// lastActivation 上一次激活的时间，hasActivation 为 false 时无效
	lastActivation time.Time
	hasActivation  bool

	// switching 切换中标志
	switching bool

	// clearTask 挂起的切换标志清除任务
	clearTask clock.TaskHandle
}

// NewDebounceGuard 创建防抖守卫
//
// Parameters:
//   - clk: 时钟
//   - minInterval: 最小激活间隔，<=0 时使用默认值 500ms
//   - switchingWindow: 切换窗口时长，<=0 时使用默认值 300ms
func NewDebounceGuard(clk clock.Clock, minInterval, switchingWindow time.Duration) *DebounceGuard {
	if minInterval <= 0 {
		minInterval = DefaultMinActivationInterval
	}
	if switchingWindow <= 0 {
		switchingWindow = DefaultSwitchingWindow
	}
	return &DebounceGuard{
		clk:             clk,
		minInterval:     minInterval,
		switchingWindow: switchingWindow,
	}
}

// CanActivate 检查当前是否允许激活
//
// Returns: bool - false 表示正处于切换窗口内，
// 或距上次激活不足最小间隔
func (g *DebounceGuard) CanActivate() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.switching {
		return false
	}
	if g.hasActivation && g.clk.Now().Sub(g.lastActivation) < g.minInterval {
		return false
	}
	return true
}

// RecordActivation 记录一次激活
//
// 设置上次激活时间为当前时间，置位切换标志，
// 并调度一个固定延迟后的无条件清除任务。
// 已有挂起的清除任务会先被取消（窗口从最近一次激活重新计时）。
func (g *DebounceGuard) RecordActivation() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastActivation = g.clk.Now()
	g.hasActivation = true
	g.switching = true

	if g.clearTask != nil {
		g.clearTask.Cancel()
	}
	g.clearTask = g.clk.AfterFunc(g.switchingWindow, func() {
		g.mu.Lock()
		g.switching = false
		g.mu.Unlock()
	})
}

// IsSwitching 返回切换标志的当前值
func (g *DebounceGuard) IsSwitching() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.switching
}

// Reset 清除全部防抖状态
//
// 用于事件 tap 重建等需要从头开始的场景。
func (g *DebounceGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.clearTask != nil {
		g.clearTask.Cancel()
		g.clearTask = nil
	}
	g.hasActivation = false
	g.switching = false
}

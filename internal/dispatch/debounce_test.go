package dispatch

import (
	"testing"
	"time"

	"github.com/chenyang-zz/voxflow/pkg/clock"
	"github.com/stretchr/testify/assert"
)

func TestDebounceAllowsFirstActivation(t *testing.T) {
	clk := clock.NewFake()
	g := NewDebounceGuard(clk, 500*time.Millisecond, 300*time.Millisecond)

	assert.True(t, g.CanActivate())
	assert.False(t, g.IsSwitching())
}

func TestDebounceBlocksWithinMinInterval(t *testing.T) {
	clk := clock.NewFake()
	g := NewDebounceGuard(clk, 500*time.Millisecond, 300*time.Millisecond)

	g.RecordActivation()
	assert.False(t, g.CanActivate())

	clk.Advance(499 * time.Millisecond)
	assert.False(t, g.CanActivate())

	clk.Advance(1 * time.Millisecond)
	assert.True(t, g.CanActivate())
}

func TestDebounceSwitchingWindowClearsUnconditionally(t *testing.T) {
	clk := clock.NewFake()
	g := NewDebounceGuard(clk, 500*time.Millisecond, 300*time.Millisecond)

	g.RecordActivation()
	assert.True(t, g.IsSwitching())

	// 窗口在固定延迟后自动清除，与其他事件无关
	clk.Advance(299 * time.Millisecond)
	assert.True(t, g.IsSwitching())
	clk.Advance(1 * time.Millisecond)
	assert.False(t, g.IsSwitching())
}

func TestDebounceSwitchingWindowRestartsOnActivation(t *testing.T) {
	// 切换窗口比最小间隔短，单独验证窗口重新计时需要
	// 一个窗口长于间隔的配置
	clk := clock.NewFake()
	g := NewDebounceGuard(clk, 100*time.Millisecond, 300*time.Millisecond)

	g.RecordActivation()
	clk.Advance(200 * time.Millisecond)
	g.RecordActivation()

	// 第二次激活让窗口从头计时，旧的清除任务被取消
	clk.Advance(200 * time.Millisecond)
	assert.True(t, g.IsSwitching())
	clk.Advance(100 * time.Millisecond)
	assert.False(t, g.IsSwitching())
}

func TestDebounceSwitchingBlocksEvenAfterInterval(t *testing.T) {
	// 最小间隔短于切换窗口时，窗口内仍然拒绝激活
	clk := clock.NewFake()
	g := NewDebounceGuard(clk, 100*time.Millisecond, 300*time.Millisecond)

	g.RecordActivation()
	clk.Advance(200 * time.Millisecond)
	assert.False(t, g.CanActivate())

	clk.Advance(100 * time.Millisecond)
	assert.True(t, g.CanActivate())
}

func TestDebounceReset(t *testing.T) {
	clk := clock.NewFake()
	g := NewDebounceGuard(clk, 500*time.Millisecond, 300*time.Millisecond)

	g.RecordActivation()
	g.Reset()

	assert.True(t, g.CanActivate())
	assert.False(t, g.IsSwitching())

	// 旧的清除任务已被取消，不会干扰 Reset 之后的状态
	g.RecordActivation()
	clk.Advance(300 * time.Millisecond)
	assert.False(t, g.IsSwitching())
}

func TestDebounceDefaultsApplied(t *testing.T) {
	clk := clock.NewFake()
	g := NewDebounceGuard(clk, 0, 0)

	g.RecordActivation()
	clk.Advance(DefaultMinActivationInterval - time.Millisecond)
	assert.False(t, g.CanActivate())
	clk.Advance(time.Millisecond)
	assert.True(t, g.CanActivate())
}

package dispatch

import (
	"sync"
	"time"

	"github.com/chenyang-zz/voxflow/pkg/clock"
)

// 双击消歧默认参数
const (
	// DefaultDoubleTapThreshold 两次触发被视为双击的最大间隔
	DefaultDoubleTapThreshold = 350 * time.Millisecond

	// DefaultSingleTapDelay 切换风格下单击动作的延迟窗口
	DefaultSingleTapDelay = 250 * time.Millisecond
)

// TapKind 一次触发的分类结果
type TapKind int

const (
	// TapSingle 单击：开启新的双击窗口
	TapSingle TapKind = iota

	// TapDouble 双击：第二次触发落在窗口内
	TapDouble
)

// DoubleTapDisambiguator 双击消歧器
//
// 允许两个绑定共享同一个物理按键：基础绑定的第二次触发
// 如果落在阈值窗口内，则取消基础绑定挂起的单击动作，
// 改为触发备选绑定。窗口在触发或取消后重置为空。
type DoubleTapDisambiguator struct {
	// clk 注入的时钟
	clk clock.Clock

	// threshold 双击判定阈值
	threshold time.Duration

	// singleTapDelay 切换风格下单击动作的延迟
	singleTapDelay time.Duration

	mu sync.Mutex

	// lastTap 窗口起点，hasTap 为 false 时窗口为空
	lastTap time.Time
	hasTap  bool

	// pending 挂起的单击延迟任务
	pending clock.TaskHandle
}

// NewDoubleTapDisambiguator 创建双击消歧器
//
// Parameters:
//   - clk: 时钟
//   - threshold: 双击阈值，<=0 时使用默认值 350ms
//   - singleTapDelay: 单击延迟，<=0 时使用默认值 250ms
func NewDoubleTapDisambiguator(clk clock.Clock, threshold, singleTapDelay time.Duration) *DoubleTapDisambiguator {
	if threshold <= 0 {
		threshold = DefaultDoubleTapThreshold
	}
	if singleTapDelay <= 0 {
		singleTapDelay = DefaultSingleTapDelay
	}
	return &DoubleTapDisambiguator{
		clk:            clk,
		threshold:      threshold,
		singleTapDelay: singleTapDelay,
	}
}

// Observe 记录一次基础绑定触发并给出分类
//
// 如果距上一次触发不足阈值，判定为双击：取消挂起的单击任务，
// 清空窗口，返回 TapDouble。否则以本次触发为起点开启新窗口，
// 返回 TapSingle。
//
// Returns: TapKind - 本次触发的分类
func (d *DoubleTapDisambiguator) Observe() TapKind {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clk.Now()

	if d.hasTap && now.Sub(d.lastTap) <= d.threshold {
		d.cancelPendingLocked()
		d.hasTap = false
		return TapDouble
	}

	d.lastTap = now
	d.hasTap = true
	return TapSingle
}

// SchedulePending 调度单击延迟任务
//
// 切换风格下，基础动作延迟 singleTapDelay 执行，
// 给后续双击留出抢占的机会。任务执行前窗口会先清空，
// 之后不会再被双击取消。已有挂起任务时先取消旧任务。
//
// Parameters: fn - 延迟结束后执行的单击动作
func (d *DoubleTapDisambiguator) SchedulePending(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelPendingLocked()
	d.pending = d.clk.AfterFunc(d.singleTapDelay, func() {
		d.mu.Lock()
		d.pending = nil
		d.hasTap = false
		d.mu.Unlock()
		fn()
	})
}

// DeferUntilWindowClose 把动作挂起到双击窗口关闭后执行
//
// 按住风格下，松开驱动的提交在窗口仍开启时不能立即落地：
// 窗口内的第二次按下会改判为双击并取消这次提交。
// 窗口为空或已经关闭时返回 false，由调用方立即执行。
//
// Parameters: fn - 窗口关闭后执行的动作
// Returns: bool - true 表示动作已挂起
func (d *DoubleTapDisambiguator) DeferUntilWindowClose(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.hasTap {
		return false
	}
	remaining := d.threshold - d.clk.Now().Sub(d.lastTap)
	if remaining <= 0 {
		return false
	}

	d.cancelPendingLocked()
	d.pending = d.clk.AfterFunc(remaining, func() {
		d.mu.Lock()
		d.pending = nil
		d.hasTap = false
		d.mu.Unlock()
		fn()
	})
	return true
}

// CancelPending 取消挂起的单击任务并清空窗口（幂等）
func (d *DoubleTapDisambiguator) CancelPending() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelPendingLocked()
	d.hasTap = false
}

// HasPending 返回是否有挂起的单击任务
func (d *DoubleTapDisambiguator) HasPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// cancelPendingLocked 取消挂起任务
//
// 必须在持有锁的情况下调用。取消已完成的任务是空操作。
func (d *DoubleTapDisambiguator) cancelPendingLocked() {
	if d.pending != nil {
		d.pending.Cancel()
		d.pending = nil
	}
}

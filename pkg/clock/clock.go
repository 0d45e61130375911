/**
 * Package clock 提供可注入的时钟抽象
 *
 * 调度引擎中所有依赖时间的逻辑（防抖、双击窗口、健康检查）
 * 都通过 Clock 接口获取当前时间和定时任务，
 * 从而可以在单元测试中用 FakeClock 做确定性的时间推进，
 * 避免真实 sleep。
 */

package clock

import "time"

// TaskHandle 可取消的定时任务句柄
//
// Cancel 必须是幂等的：对已完成或已取消的任务再次调用 Cancel 是空操作。
type TaskHandle interface {
	// Cancel 取消任务
	// Returns: bool - true 表示成功阻止了任务执行，false 表示任务已执行或已取消
	Cancel() bool
}

// Clock 时钟接口
//
// 抽象当前时间读取和延迟任务调度。
type Clock interface {
	// Now 返回当前时间
	Now() time.Time

	// AfterFunc 在延迟 d 之后执行 fn
	// Parameters: d - 延迟时长, fn - 到期执行的函数
	// Returns: TaskHandle - 可取消的任务句柄
	AfterFunc(d time.Duration, fn func()) TaskHandle
}

// realClock 基于标准库 time 的时钟实现
type realClock struct{}

// New 创建真实时钟
//
// Returns: Clock - 基于 time.Now / time.AfterFunc 的时钟实例
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, fn func()) TaskHandle {
	return timerHandle{timer: time.AfterFunc(d, fn)}
}

// timerHandle time.Timer 的句柄包装
type timerHandle struct {
	timer *time.Timer
}

// Cancel 停止底层定时器（幂等）
func (h timerHandle) Cancel() bool {
	return h.timer.Stop()
}

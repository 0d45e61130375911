package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock 用于测试的确定性时钟
//
// 时间只在调用 Advance 时前进，到期的定时任务在 Advance
// 的调用 goroutine 中同步执行，因此测试不需要 sleep 或轮询。
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*fakeTask
	seq   int
}

// fakeTask FakeClock 中挂起的定时任务
type fakeTask struct {
	clock     *FakeClock
	deadline  time.Time
	seq       int
	fn        func()
	cancelled bool
	fired     bool
}

// NewFake 创建 FakeClock
//
// 初始时间取一个固定值，保证测试可复现。
//
// Returns: *FakeClock - 新创建的假时钟
func NewFake() *FakeClock {
	return &FakeClock{
		now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Now 返回假时钟的当前时间
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc 注册一个在假时间前进 d 之后执行的任务
func (c *FakeClock) AfterFunc(d time.Duration, fn func()) TaskHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	task := &fakeTask{
		clock:    c,
		deadline: c.now.Add(d),
		seq:      c.seq,
		fn:       fn,
	}
	c.tasks = append(c.tasks, task)
	return task
}

// Advance 将假时间前进 d，并同步执行所有到期的任务
//
// 任务按到期时间（相同则按注册顺序）执行。任务回调中新注册的
// 任务如果也在推进后的时间范围内，会在同一次 Advance 中执行。
//
// Parameters: d - 要前进的时长
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)

	for {
		task := c.nextDueLocked(target)
		if task == nil {
			break
		}

		// 时间推进到任务的到期点再执行，
		// 这样任务内读取 Now() 能看到一致的时间
		if task.deadline.After(c.now) {
			c.now = task.deadline
		}
		task.fired = true

		// 执行回调时释放锁，允许回调注册/取消其他任务
		c.mu.Unlock()
		task.fn()
		c.mu.Lock()
	}

	c.now = target
	c.mu.Unlock()
}

// nextDueLocked 返回 target 之前最早到期的未执行任务
//
// 必须在持有锁的情况下调用。
func (c *FakeClock) nextDueLocked(target time.Time) *fakeTask {
	pending := c.tasks[:0]
	for _, t := range c.tasks {
		if !t.cancelled && !t.fired {
			pending = append(pending, t)
		}
	}
	c.tasks = pending

	if len(c.tasks) == 0 {
		return nil
	}

	sort.SliceStable(c.tasks, func(i, j int) bool {
		if c.tasks[i].deadline.Equal(c.tasks[j].deadline) {
			return c.tasks[i].seq < c.tasks[j].seq
		}
		return c.tasks[i].deadline.Before(c.tasks[j].deadline)
	})

	if c.tasks[0].deadline.After(target) {
		return nil
	}
	return c.tasks[0]
}

// PendingCount 返回尚未执行且未取消的任务数量
//
// 供测试断言使用。
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, t := range c.tasks {
		if !t.cancelled && !t.fired {
			count++
		}
	}
	return count
}

// Cancel 取消挂起的任务（幂等）
func (t *fakeTask) Cancel() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	return true
}

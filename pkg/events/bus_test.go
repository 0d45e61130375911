package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitFor 轮询等待条件成立（最多 2 秒）
//
// 事件交付是异步的，测试需要短暂等待订阅者 goroutine 处理完成。
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("等待条件超时")
}

// TestEventBusPublishSubscribe 测试基本的发布订阅流程
//
// 验证订阅者能收到匹配类型的事件，且不会收到其他类型的事件。
func TestEventBusPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(time.Second)

	var mu sync.Mutex
	var received []Event

	bus.Subscribe(string(EventTypeModeStarted), func(event Event) error {
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
		return nil
	})

	ev := NewEvent(EventTypeModeStarted, map[string]interface{}{"action": "primary"})
	require.NoError(t, bus.Publish(*ev))

	// 不匹配的类型不应被交付
	other := NewEvent(EventTypeModeTriggered, nil)
	require.NoError(t, bus.Publish(*other))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventTypeModeStarted, received[0].Type)
	assert.Equal(t, "primary", received[0].Data["action"])
	assert.NotEmpty(t, received[0].ID, "事件应有 UUID")
}

// TestEventBusWildcard 测试通配符订阅
func TestEventBusWildcard(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(time.Second)

	var count sync.WaitGroup
	count.Add(2)

	bus.Subscribe("*", func(event Event) error {
		count.Done()
		return nil
	})

	require.NoError(t, bus.Publish(*NewEvent(EventTypeModeStarted, nil)))
	require.NoError(t, bus.Publish(*NewEvent(EventTypeHookStatus, nil)))

	done := make(chan struct{})
	go func() {
		count.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("通配符订阅者未收到所有事件")
	}
}

// TestEventBusUnsubscribe 测试取消订阅后不再接收事件
func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(time.Second)

	var mu sync.Mutex
	count := 0

	id := bus.Subscribe(string(EventTypeModeCommitted), func(event Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	require.NoError(t, bus.Publish(*NewEvent(EventTypeModeCommitted, nil)))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	bus.Unsubscribe(id)
	_ = bus.Publish(*NewEvent(EventTypeModeCommitted, nil))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "取消订阅后不应再收到事件")
}

// TestEventBusRecoveryMiddleware 测试恢复中间件捕获 panic
//
// 订阅者处理函数 panic 不应使进程崩溃，后续事件仍能正常交付。
func TestEventBusRecoveryMiddleware(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(time.Second)

	bus.Use(RecoveryMiddleware())

	var mu sync.Mutex
	count := 0

	bus.Subscribe(string(EventTypeError), func(event Event) error {
		mu.Lock()
		count++
		current := count
		mu.Unlock()

		if current == 1 {
			panic("handler exploded")
		}
		return nil
	})

	require.NoError(t, bus.Publish(*NewEvent(EventTypeError, nil)))
	require.NoError(t, bus.Publish(*NewEvent(EventTypeError, nil)))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	})
}

// TestEventBusStop 测试停止后的行为
func TestEventBusStop(t *testing.T) {
	bus := NewEventBus()

	require.NoError(t, bus.Stop(time.Second))

	err := bus.Publish(*NewEvent(EventTypeModeStarted, nil))
	assert.Error(t, err, "停止后发布应返回错误")

	// 重复停止是幂等的
	assert.NoError(t, bus.Stop(time.Second))
}

// TestEventBusHandlerError 测试处理函数返回错误不影响其他订阅者
func TestEventBusHandlerError(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(time.Second)

	var mu sync.Mutex
	okCount := 0

	bus.Subscribe(string(EventTypeModeTriggered), func(event Event) error {
		return errors.New("handler failure")
	})
	bus.Subscribe(string(EventTypeModeTriggered), func(event Event) error {
		mu.Lock()
		okCount++
		mu.Unlock()
		return nil
	})

	require.NoError(t, bus.Publish(*NewEvent(EventTypeModeTriggered, nil)))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return okCount == 1
	})
}

package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chenyang-zz/voxflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChecker 可编排的权限检查器
type fakeChecker struct {
	mu       sync.Mutex
	granted  bool
	checks   int
	requests int
	opened   int
	openErr  error
}

func (f *fakeChecker) CheckAccessibility() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return f.granted
}

func (f *fakeChecker) RequestAccessibility() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return f.granted
}

func (f *fakeChecker) OpenSettings() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	return f.openErr
}

func (f *fakeChecker) checkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks
}

func TestPermissionServiceCaching(t *testing.T) {
	checker := &fakeChecker{granted: true}
	s := NewPermissionService(checker, nil)

	assert.True(t, s.IsAccessibilityGranted())
	assert.True(t, s.IsAccessibilityGranted())
	assert.True(t, s.IsAccessibilityGranted())

	// 缓存有效期内只查询一次系统
	assert.Equal(t, 1, checker.checkCount())
}

func TestPermissionServiceInvalidate(t *testing.T) {
	checker := &fakeChecker{granted: false}
	s := NewPermissionService(checker, nil)

	assert.False(t, s.IsAccessibilityGranted())

	// 用户在系统设置中授权后清除缓存
	checker.mu.Lock()
	checker.granted = true
	checker.mu.Unlock()

	assert.False(t, s.IsAccessibilityGranted(), "缓存未过期时仍返回旧状态")

	s.Invalidate()
	assert.True(t, s.IsAccessibilityGranted())
	assert.Equal(t, 2, checker.checkCount())
}

func TestPermissionServiceEnsure(t *testing.T) {
	checker := &fakeChecker{granted: true}
	s := NewPermissionService(checker, nil)
	require.NoError(t, s.EnsureAccessibility())

	denied := &fakeChecker{granted: false}
	bus := events.NewEventBus()
	defer bus.Stop(time.Second)

	var mu sync.Mutex
	received := 0
	bus.Subscribe(string(events.EventTypePermission), func(event events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received++
		assert.Equal(t, false, event.Data["granted"])
		return nil
	})

	s = NewPermissionService(denied, bus)
	assert.Error(t, s.EnsureAccessibility())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPermissionServiceRequestInvalidatesCache(t *testing.T) {
	checker := &fakeChecker{granted: false}
	s := NewPermissionService(checker, nil)

	assert.False(t, s.IsAccessibilityGranted())
	assert.Equal(t, 1, checker.checkCount())

	s.RequestAccessibility()

	// 请求授权后缓存失效，重新查询系统
	s.IsAccessibilityGranted()
	assert.Equal(t, 2, checker.checkCount())
}

func TestPermissionServiceOpenSettings(t *testing.T) {
	checker := &fakeChecker{}
	s := NewPermissionService(checker, nil)
	require.NoError(t, s.OpenSettings())
	assert.Equal(t, 1, checker.opened)

	checker.openErr = errors.New("打开失败")
	assert.Error(t, s.OpenSettings())
}

//go:build darwin

package platform

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework Cocoa

#include <CoreFoundation/CoreFoundation.h>
#include <CoreGraphics/CoreGraphics.h>

// goHookCallback Go 层的回调函数声明
// 此函数由 C 层同步调用，把键盘事件传递到 Go 层
// Parameters: kind - 事件类别, keyCode - 按键代码, flags - 修饰键标志
// Returns: 非 0 表示事件被消费
int goHookCallback(int kind, int keyCode, long long flags);

// callback CGEventTap 回调函数（static 避免符号冲突）
// 当有键盘事件发生时被 Core Graphics 调用。
// tap 被 OS 停用（超时保护 / 用户输入保护）时，停用通知
// 也会通过这里送达，转发给 Go 层触发自愈恢复。
// Returns: 原始事件对象（允许事件继续传递），NULL 表示消费事件
static CGEventRef callback(CGEventTapProxy proxy, CGEventType type,
                   CGEventRef event, void *refcon) {
    if (type == kCGEventTapDisabledByTimeout || type == kCGEventTapDisabledByUserInput) {
        // kind=3 对应 Go 层的 KindTapDisabled，停用通知永不消费
        goHookCallback(3, 0, 0);
        return event;
    }

    int kind;
    switch (type) {
    case kCGEventKeyDown:
        kind = 0;
        break;
    case kCGEventKeyUp:
        kind = 1;
        break;
    case kCGEventFlagsChanged:
        kind = 2;
        break;
    default:
        return event;
    }

    CGKeyCode keycode = (CGKeyCode)CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode);
    CGEventFlags flags = CGEventGetFlags(event);

    if (goHookCallback(kind, (int)keycode, (long long)flags)) {
        return NULL;
    }
    return event;
}

// createEventTap 创建事件 tap 的辅助函数（static 避免符号冲突）
// 监听按键按下、松开和修饰键变化事件，并把 tap 挂到当前
// 线程的 run loop 上。必须在之后运行该 run loop 的线程上调用。
// Returns: Event tap 的 CFMachPortRef 句柄，失败返回 NULL
static void* createEventTap() {
    CGEventMask eventMask = CGEventMaskBit(kCGEventKeyDown) |
                            CGEventMaskBit(kCGEventKeyUp) |
                            CGEventMaskBit(kCGEventFlagsChanged);

    CFMachPortRef tap = CGEventTapCreate(
        kCGSessionEventTap,
        kCGHeadInsertEventTap,
        kCGEventTapOptionDefault,
        eventMask,
        callback,
        NULL
    );

    if (tap == NULL) {
        return NULL;
    }

    CGEventTapEnable(tap, true);

    CFRunLoopSourceRef src = CFMachPortCreateRunLoopSource(NULL, tap, 0);
    CFRunLoopAddSource(CFRunLoopGetCurrent(), src, kCFRunLoopCommonModes);
    CFRelease(src);

    return tap;
}

// destroyEventTap 停用并释放事件 tap（static 避免符号冲突）
// 可以安全地重复调用（tap 为 NULL 时是空操作）。
static void destroyEventTap(void* tap) {
    if (tap != NULL) {
        CFMachPortRef eventTap = (CFMachPortRef)tap;
        CGEventTapEnable(eventTap, false);
        CFRelease(eventTap);
    }
}

// tapIsEnabled 探测 tap 的启用状态
static int tapIsEnabled(void* tap) {
    if (tap == NULL) {
        return 0;
    }
    return CGEventTapIsEnabled((CFMachPortRef)tap) ? 1 : 0;
}

// tapEnable 重新启用 tap
static void tapEnable(void* tap) {
    if (tap != NULL) {
        CGEventTapEnable((CFMachPortRef)tap, true);
    }
}

// runRunLoopInMode 在当前线程运行 CFRunLoop 一小段时间（0.1 秒）
// 通过反复调用此函数，可以在每次循环之间检查停止信号。
static void runRunLoopInMode() {
    CFRunLoopRunInMode(kCFRunLoopDefaultMode, 0.1, false);
}
*/
import "C"
import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// darwinHookSource macOS 平台的输入钩子实现
//
// 使用 Core Graphics Event Tap API 拦截系统级的键盘事件。
// 需要用户在系统设置中授予辅助功能权限才能创建成功。
type darwinHookSource struct {
	// eventTap C 层的 CFMachPortRef 句柄
	eventTap unsafe.Pointer

	// handler 注册的事件回调
	handler EventHandler

	// isOpen 钩子是否已打开
	isOpen bool

	// mu 读写锁，保护并发访问
	mu sync.RWMutex

	// stopChan 停止信号通道
	stopChan chan struct{}

	// runLoopDone CFRunLoop 线程退出信号
	runLoopDone chan struct{}
}

// 全局钩子实例（用于 C 回调）
//
// C 函数无法直接调用 Go 方法，需要维护一个全局实例引用。
var (
	activeHookSource *darwinHookSource
	hookSourceMutex  sync.RWMutex
)

// NewHookSource 创建 macOS 平台的输入钩子
//
// Returns: HookSource - CGEventTap 实现
func NewHookSource() HookSource {
	return &darwinHookSource{}
}

// goHookCallback C 到 Go 的桥接函数
//
// 由 C 层的 CGEventTap 回调同步调用。消费判定必须同步返回，
// 所以这里直接在 OS 回调线程上调用处理函数——处理函数
// 自身保证无阻塞（见调度器的并发契约）。
//
//export goHookCallback
func goHookCallback(kind, keyCode C.int, flags C.longlong) C.int {
	hookSourceMutex.RLock()
	source := activeHookSource
	hookSourceMutex.RUnlock()

	if source == nil {
		return 0
	}

	source.mu.RLock()
	handler := source.handler
	open := source.isOpen
	source.mu.RUnlock()

	if !open || handler == nil {
		return 0
	}

	consumed := handler(KeyEvent{
		Kind:      EventKind(kind),
		KeyCode:   int(keyCode),
		Modifiers: uint64(flags),
	})
	if consumed {
		return 1
	}
	return 0
}

// Open 创建并启用 CGEventTap
//
// tap 的创建和 run loop 的运行必须在同一个 OS 线程上，
// 所以创建动作在锁定了 OS 线程的 goroutine 里完成，
// Open 等待创建结果后返回。
//
// Parameters: handler - 事件回调
// Returns: error - 创建失败时返回错误（通常是缺少辅助功能权限）
func (s *darwinHookSource) Open(handler EventHandler) error {
	s.mu.Lock()
	if s.isOpen {
		s.mu.Unlock()
		return fmt.Errorf("hook source already open")
	}
	s.handler = handler
	s.stopChan = make(chan struct{})
	s.runLoopDone = make(chan struct{})
	s.mu.Unlock()

	hookSourceMutex.Lock()
	activeHookSource = s
	hookSourceMutex.Unlock()

	created := make(chan unsafe.Pointer, 1)

	go func() {
		// CFRunLoop 要求绑定 OS 线程
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		tap := C.createEventTap()
		created <- tap
		if tap == nil {
			close(s.runLoopDone)
			return
		}

		logger.Info("CFRunLoop 监控线程启动", zap.String("component", "hook"))

		for {
			C.runRunLoopInMode()

			select {
			case <-s.stopChan:
				logger.Info("收到停止信号，退出 CFRunLoop", zap.String("component", "hook"))
				C.destroyEventTap(tap)
				close(s.runLoopDone)
				return
			default:
			}
		}
	}()

	tap := <-created
	if tap == nil {
		hookSourceMutex.Lock()
		activeHookSource = nil
		hookSourceMutex.Unlock()
		return fmt.Errorf("failed to create event tap: accessibility permission required")
	}

	s.mu.Lock()
	s.eventTap = tap
	s.isOpen = true
	s.mu.Unlock()

	return nil
}

// Close 停用并销毁 CGEventTap（幂等）
func (s *darwinHookSource) Close() error {
	s.mu.Lock()
	if !s.isOpen {
		s.mu.Unlock()
		return nil
	}
	s.isOpen = false
	s.eventTap = nil
	stopChan := s.stopChan
	runLoopDone := s.runLoopDone
	s.mu.Unlock()

	// 通知 CFRunLoop 线程退出，tap 由该线程销毁
	close(stopChan)
	<-runLoopDone

	hookSourceMutex.Lock()
	if activeHookSource == s {
		activeHookSource = nil
	}
	hookSourceMutex.Unlock()

	return nil
}

// IsEnabled 探测 tap 的启用状态
//
// OS 可能在超时或用户输入保护触发时静默停用 tap，
// 健康检查周期性调用此方法发现这种吊销。
func (s *darwinHookSource) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isOpen || s.eventTap == nil {
		return false
	}
	return C.tapIsEnabled(s.eventTap) != 0
}

// Reenable 尝试重新启用被停用的 tap
//
// Returns: bool - true 表示 tap 重新进入启用状态
func (s *darwinHookSource) Reenable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isOpen || s.eventTap == nil {
		return false
	}

	C.tapEnable(s.eventTap)
	return C.tapIsEnabled(s.eventTap) != 0
}

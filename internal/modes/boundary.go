/**
 * Package modes 模式控制器
 *
 * 对接调度引擎的回调，管理录音会话生命周期和辅助模式触发。
 * 语音捕获、文本来源和结果投递都在进程之外，这里只定义边界接口
 * 并提供用于接线和测试的空实现。
 */

package modes

import (
	"context"
	"sync"
)

/**
 * Recorder 录音会话边界
 *
 * 真正的语音捕获与转写由外部组件完成。
 */
type Recorder interface {
	// Start 开始一次录音会话
	Start(ctx context.Context, sessionID string) error

	// Stop 结束录音并返回转写文本
	Stop(ctx context.Context) (string, error)

	// Discard 结束录音并丢弃结果
	Discard()
}

/**
 * TextSource 辅助模式的输入文本来源
 *
 * 通常是当前选区或剪贴板内容。
 */
type TextSource interface {
	// Fetch 获取待处理文本
	Fetch(ctx context.Context) (string, error)
}

/**
 * Output 增强结果的投递边界
 *
 * 通常把文本插入当前输入焦点。
 */
type Output interface {
	// Deliver 投递一段文本
	Deliver(ctx context.Context, text string) error
}

/**
 * Dismissible 可被取消键关闭的界面元素
 */
type Dismissible interface {
	// Dismiss 尝试关闭，返回是否有元素被关闭
	Dismiss() bool
}

// NoopRecorder 空录音实现，Stop 返回空转写
type NoopRecorder struct{}

func (NoopRecorder) Start(ctx context.Context, sessionID string) error { return nil }
func (NoopRecorder) Stop(ctx context.Context) (string, error)         { return "", nil }
func (NoopRecorder) Discard()                                         {}

// NoopTextSource 空文本来源
type NoopTextSource struct{}

func (NoopTextSource) Fetch(ctx context.Context) (string, error) { return "", nil }

// NoopOutput 丢弃投递内容的空实现
type NoopOutput struct{}

func (NoopOutput) Deliver(ctx context.Context, text string) error { return nil }

/**
 * DismissRegistry 可关闭元素注册表
 *
 * 取消键按下且主会话未运行时，按注册顺序依次尝试关闭。
 */
type DismissRegistry struct {
	mu    sync.Mutex
	items []Dismissible
}

// NewDismissRegistry 创建注册表
func NewDismissRegistry() *DismissRegistry {
	return &DismissRegistry{}
}

// Register 注册一个可关闭元素
func (r *DismissRegistry) Register(d Dismissible) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, d)
}

/**
 * DismissAny 依次尝试关闭已注册元素
 *
 * Returns: bool - 是否有元素被关闭
 */
func (r *DismissRegistry) DismissAny() bool {
	r.mu.Lock()
	items := make([]Dismissible, len(r.items))
	copy(items, r.items)
	r.mu.Unlock()

	for _, d := range items {
		if d.Dismiss() {
			return true
		}
	}
	return false
}

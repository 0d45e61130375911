//go:build !darwin

package platform

import "fmt"

// stubHookSource 非 macOS 平台的占位实现
//
// 全局键盘拦截目前只支持 macOS，其他平台返回不支持错误。
type stubHookSource struct{}

// NewHookSource 创建当前平台的输入钩子
func NewHookSource() HookSource {
	return &stubHookSource{}
}

func (s *stubHookSource) Open(handler EventHandler) error {
	return fmt.Errorf("global keyboard hook is not supported on this platform")
}

func (s *stubHookSource) Close() error {
	return nil
}

func (s *stubHookSource) IsEnabled() bool {
	return false
}

func (s *stubHookSource) Reenable() bool {
	return false
}

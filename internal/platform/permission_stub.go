//go:build !darwin

package platform

import "fmt"

// stubPermissionChecker 非 macOS 平台的占位实现
type stubPermissionChecker struct{}

// NewPermissionChecker 创建当前平台的权限检查器
func NewPermissionChecker() PermissionChecker {
	return &stubPermissionChecker{}
}

func (c *stubPermissionChecker) CheckAccessibility() bool {
	return false
}

func (c *stubPermissionChecker) RequestAccessibility() bool {
	return false
}

func (c *stubPermissionChecker) OpenSettings() error {
	return fmt.Errorf("accessibility settings are not available on this platform")
}

//go:build darwin

package platform

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework ApplicationServices

#include <ApplicationServices/ApplicationServices.h>

// checkAccessibilityPermission 检查辅助功能权限
// Returns: 1 表示已授权，0 表示未授权
static int checkAccessibilityPermission() {
    return AXIsProcessTrusted() ? 1 : 0;
}

// requestAccessibilityPermission 请求辅助功能权限
// 如果未授权，会弹出系统提示框引导用户前往设置
// Returns: 1 表示已授权，0 表示未授权
static int requestAccessibilityPermission() {
    CFStringRef keys[] = { kAXTrustedCheckOptionPrompt };
    CFBooleanRef values[] = { kCFBooleanTrue };
    CFDictionaryRef options = CFDictionaryCreate(
        kCFAllocatorDefault,
        (const void**)keys,
        (const void**)values,
        1,
        &kCFTypeDictionaryKeyCallBacks,
        &kCFTypeDictionaryValueCallBacks
    );

    Boolean trusted = AXIsProcessTrustedWithOptions(options);
    CFRelease(options);

    return trusted ? 1 : 0;
}
*/
import "C"
import (
	"os/exec"

	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// darwinPermissionChecker macOS 平台的权限检查实现
type darwinPermissionChecker struct{}

// NewPermissionChecker 创建当前平台的权限检查器
func NewPermissionChecker() PermissionChecker {
	return &darwinPermissionChecker{}
}

// CheckAccessibility 检查辅助功能权限是否已授予（不弹出提示）
func (c *darwinPermissionChecker) CheckAccessibility() bool {
	return C.checkAccessibilityPermission() == 1
}

// RequestAccessibility 检查权限，未授予时弹出系统提示
func (c *darwinPermissionChecker) RequestAccessibility() bool {
	granted := C.requestAccessibilityPermission() == 1
	if !granted {
		logger.Warn("辅助功能权限未授予，已弹出系统提示",
			zap.String("component", "permission"))
	}
	return granted
}

// OpenSettings 打开系统设置的辅助功能权限页面
func (c *darwinPermissionChecker) OpenSettings() error {
	cmd := exec.Command("open",
		"x-apple.systempreferences:com.apple.preference.security?Privacy_Accessibility")
	return cmd.Start()
}

package platform

// PermissionChecker 系统权限检查接口
//
// 创建全局键盘钩子前需要确认辅助功能权限已授予，
// 否则 tap 创建会直接失败且不会弹出系统提示。
type PermissionChecker interface {
	// CheckAccessibility 检查辅助功能权限是否已授予
	CheckAccessibility() bool

	// RequestAccessibility 检查权限并在未授予时弹出系统提示
	RequestAccessibility() bool

	// OpenSettings 打开系统设置的辅助功能权限页面
	OpenSettings() error
}

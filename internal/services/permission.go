package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"github.com/chenyang-zz/voxflow/internal/platform"
	"github.com/chenyang-zz/voxflow/pkg/events"
	"go.uber.org/zap"
)

// accessibilityHint 用户授权引导文案
const accessibilityHint = "需要辅助功能权限来监听全局快捷键。" +
	"请在【系统设置 > 隐私与安全性 > 辅助功能】中启用 VoxFlow。"

// PermissionService 权限服务
//
// 包装平台层权限检查器，提供状态缓存和事件发布。
// 事件 tap 创建前和前端状态页都通过这里查询权限。
type PermissionService struct {
	// checker 平台层权限检查器
	checker platform.PermissionChecker

	// bus 事件总线，权限缺失时发布提示事件
	bus *events.EventBus

	// mu 保护缓存字段
	mu sync.Mutex

	// cached 缓存的权限状态
	cached bool

	// cachedAt 缓存写入时间，零值表示无缓存
	cachedAt time.Time

	// cacheDuration 缓存有效期
	cacheDuration time.Duration
}

// NewPermissionService 创建权限服务
//
// Parameters:
//   - checker: 平台层权限检查器
//   - bus: 事件总线（可为 nil）
//
// Returns: *PermissionService - 权限服务实例
func NewPermissionService(checker platform.PermissionChecker, bus *events.EventBus) *PermissionService {
	return &PermissionService{
		checker:       checker,
		bus:           bus,
		cacheDuration: 5 * time.Minute,
	}
}

// IsAccessibilityGranted 检查辅助功能权限是否已授予
//
// 优先返回缓存状态，缓存过期时重新查询系统。
// 权限一旦授予很少被回收，缓存避免频繁跨进程查询。
//
// Returns: bool - 权限是否已授予
func (s *PermissionService) IsAccessibilityGranted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cachedAt.IsZero() && time.Since(s.cachedAt) < s.cacheDuration {
		return s.cached
	}

	granted := s.checker.CheckAccessibility()
	s.cached = granted
	s.cachedAt = time.Now()

	logger.Debug("辅助功能权限状态", zap.Bool("granted", granted))
	return granted
}

// EnsureAccessibility 确保辅助功能权限已授予
//
// 权限缺失时发布提示事件并返回错误，调用方据此决定
// 是否继续创建事件 tap。
//
// Returns: error - 权限未授予时返回错误
func (s *PermissionService) EnsureAccessibility() error {
	if s.IsAccessibilityGranted() {
		return nil
	}

	logger.Warn("辅助功能权限未授予", zap.String("hint", accessibilityHint))
	s.publishPermissionEvent(false)

	return fmt.Errorf("辅助功能权限未授予")
}

// RequestAccessibility 请求辅助功能权限
//
// 弹出系统授权提示并清除缓存，下次检查重新查询系统。
//
// Returns: bool - 调用时权限是否已授予
func (s *PermissionService) RequestAccessibility() bool {
	granted := s.checker.RequestAccessibility()

	s.mu.Lock()
	s.cachedAt = time.Time{}
	s.mu.Unlock()

	logger.Info("已请求辅助功能权限", zap.Bool("granted", granted))
	return granted
}

// OpenSettings 打开系统设置的辅助功能页面
//
// Returns: error - 打开失败时返回错误
func (s *PermissionService) OpenSettings() error {
	if err := s.checker.OpenSettings(); err != nil {
		logger.Error("打开系统设置失败", zap.Error(err))
		return err
	}
	return nil
}

// Invalidate 清除权限缓存
//
// 用户可能刚在系统设置中完成授权，前端刷新状态前调用。
func (s *PermissionService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cachedAt = time.Time{}
}

// Hint 返回用户授权引导文案
func (s *PermissionService) Hint() string {
	return accessibilityHint
}

// publishPermissionEvent 发布权限状态事件
func (s *PermissionService) publishPermissionEvent(granted bool) {
	if s.bus == nil {
		return
	}

	event := events.NewEvent(events.EventTypePermission, map[string]interface{}{
		"granted": granted,
		"hint":    accessibilityHint,
	})
	if err := s.bus.Publish(*event); err != nil {
		logger.Warn("权限事件发布失败", zap.Error(err))
	}
}

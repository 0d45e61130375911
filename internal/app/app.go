/**
 * Package app 提供 Wails App 层的实现
 *
 * App 层职责：
 * - 装配调度引擎、事件 tap、存储和 AI 增强器
 * - 接收前端请求并委托给对应组件处理
 * - 将后端事件通过 Wails 推送到前端
 * - 管理 Wails 运行时上下文
 */

package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chenyang-zz/voxflow/internal/dispatch"
	"github.com/chenyang-zz/voxflow/internal/infrastructure/ai"
	"github.com/chenyang-zz/voxflow/internal/infrastructure/config"
	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"github.com/chenyang-zz/voxflow/internal/infrastructure/storage"
	"github.com/chenyang-zz/voxflow/internal/modes"
	"github.com/chenyang-zz/voxflow/internal/platform"
	"github.com/chenyang-zz/voxflow/internal/services"
	"github.com/chenyang-zz/voxflow/pkg/events"
	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"
)

/**
 * App 是 Wails 应用的主结构体
 *
 * 持有全部后端组件，Startup 负责按依赖顺序装配。
 */
type App struct {
	// ctx 是 Wails 运行时上下文
	ctx context.Context

	// config 应用配置
	config *config.Config

	// eventBus 内部事件总线
	eventBus *events.EventBus

	// db 数据库连接
	db *sql.DB

	// sessions 会话仓储
	sessions storage.SessionRepository

	// batchWriter 事件批量写入器
	batchWriter *storage.BatchWriter

	// persister 事件持久化订阅者
	persister *modes.EventPersister

	// enhancer AI 文本增强器
	enhancer ai.Enhancer

	// controller 模式控制器
	controller *modes.Controller

	// router 快捷键调度器
	router *dispatch.Router

	// eventTap 事件 tap 生命周期管理器
	eventTap *platform.EventTap

	// permissions 权限服务
	permissions *services.PermissionService
}

/**
 * New 创建一个新的 App 实例
 *
 * 重量级组件在 Startup 中装配，这里只建立事件总线。
 *
 * Returns:
 *   - *App: 初始化好的 App 实例
 */
func New() *App {
	eventBus := events.NewEventBus()
	eventBus.Use(events.RecoveryMiddleware())

	return &App{
		eventBus: eventBus,
	}
}

/**
 * Startup 应用启动时的初始化
 *
 * 在 Wails 应用启动时调用，按依赖顺序装配：
 * 配置 → 日志 → 存储 → AI 增强器 → 模式控制器 → 调度器 → 事件 tap
 *
 * Parameters:
 *   - ctx: Wails 启动上下文
 *
 * Returns:
 *   - error: 初始化过程中的错误
 */
func (a *App) Startup(ctx context.Context) error {
	a.ctx = ctx

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	a.config = cfg

	if err := logger.Init(logger.FileOptions{
		Path:       config.ExpandPath(cfg.Logging.File.Path),
		MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
		MaxBackups: cfg.Logging.File.MaxBackups,
		MaxAgeDays: cfg.Logging.File.MaxAgeDays,
		Compress:   cfg.Logging.File.Compress,
	}); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	logger.Info("VoxFlow 启动中",
		zap.String("version", cfg.Application.Version))

	if err := a.setupStorage(); err != nil {
		return err
	}

	if err := a.setupDispatch(); err != nil {
		return err
	}

	go a.forwardEvents()

	logger.Info("VoxFlow 启动完成")
	return nil
}

// setupStorage 装配数据库、仓储和批量写入器
func (a *App) setupStorage() error {
	db, err := storage.NewSQLiteDB(storage.SQLiteConfig{
		Path:         config.ExpandPath(a.config.Storage.SQLite.Path),
		MaxOpenConns: a.config.Storage.SQLite.MaxOpenConns,
		MaxIdleConns: a.config.Storage.SQLite.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("打开数据库失败: %w", err)
	}
	a.db = db

	if err := storage.RunMigrations(db); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	a.sessions = storage.NewSQLiteSessionRepository(db)

	a.batchWriter = storage.NewBatchWriter(
		storage.NewSQLiteEventRepository(db),
		storage.DefaultBatchWriterConfig(),
	)
	a.batchWriter.Start()

	a.persister = modes.NewEventPersister(a.batchWriter, modes.DefaultPersistenceConfig())
	a.persister.Attach(a.eventBus)

	a.cleanupOldRecords()
	return nil
}

// setupDispatch 装配增强器、模式控制器、调度器和事件 tap
func (a *App) setupDispatch() error {
	enhancer, err := ai.NewEnhancer(ai.FactoryConfig{
		Enabled:      a.config.AI.Enabled,
		APIKey:       a.config.AI.Claude.APIKey,
		Model:        a.config.AI.Claude.Model,
		MaxTokens:    a.config.AI.Claude.MaxTokens,
		Temperature:  a.config.AI.Claude.Temperature,
		CacheEnabled: a.config.AI.Cache.Enabled,
		CacheTTL:     a.config.AI.Cache.TTL.Std(),
		CacheMaxSize: a.config.AI.Cache.MaxSize,
	})
	if err != nil {
		return fmt.Errorf("创建增强器失败: %w", err)
	}
	a.enhancer = enhancer

	primaryStyle := ""
	if binding, ok := a.config.Hotkeys.Bindings[string(dispatch.ActionPrimary)]; ok {
		primaryStyle = binding.Style
	}

	a.controller = modes.NewController(
		nil, // 录音边界由外部组件注入，默认空实现
		a.enhancer,
		a.sessions,
		a.eventBus,
		nil,
		nil,
		modes.ControllerConfig{PrimaryStyle: primaryStyle},
	)

	routerConfig, err := a.config.RouterConfig()
	if err != nil {
		return fmt.Errorf("快捷键配置无效: %w", err)
	}

	a.router = dispatch.NewRouter(routerConfig, a.controller.Callbacks())
	a.controller.SetPrimaryFinishedNotifier(a.router.NotifyPrimaryFinished)

	a.permissions = services.NewPermissionService(platform.NewPermissionChecker(), a.eventBus)

	a.eventTap = platform.NewEventTap(
		platform.NewHookSource(),
		platform.NewPermissionChecker(),
		a.config.TapConfig(),
		a.router.HandleEvent,
		platform.WithStateListener(a.publishHookState),
	)

	if err := a.eventTap.Start(); err != nil {
		// 权限缺失时应用照常启动，前端引导用户授权后再重建
		logger.Warn("事件 tap 启动失败", zap.Error(err))
	}
	return nil
}

/**
 * Shutdown 应用关闭时的清理
 *
 * 在 Wails 应用关闭时调用，按装配的相反顺序释放资源。
 */
func (a *App) Shutdown() {
	logger.Info("VoxFlow 正在退出")

	if a.eventTap != nil {
		_ = a.eventTap.Close()
	}
	if a.router != nil {
		a.router.Reset()
	}
	if a.enhancer != nil {
		_ = a.enhancer.Close()
	}
	if a.persister != nil {
		a.persister.Detach()
	}
	if a.eventBus != nil {
		_ = a.eventBus.Stop(3 * time.Second)
	}
	if a.batchWriter != nil {
		a.batchWriter.Stop()
	}
	if a.db != nil {
		_ = a.db.Close()
	}

	_ = logger.Sync()
}

// ========== 导出方法（前端可调用） ==========

/**
 * GetStatus 获取应用运行状态
 *
 * Returns:
 *   - map[string]interface{}: 状态数据
 */
func (a *App) GetStatus() map[string]interface{} {
	status := map[string]interface{}{
		"version":               a.config.Application.Version,
		"hook_state":            "",
		"hook_healthy":          false,
		"primary_running":       false,
		"accessibility_granted": a.permissions.IsAccessibilityGranted(),
		"ai_enabled":            a.config.AI.Enabled,
	}
	if a.eventTap != nil {
		status["hook_state"] = string(a.eventTap.State())
		status["hook_healthy"] = a.eventTap.IsHealthy()
	}
	if a.router != nil {
		status["primary_running"] = a.router.IsPrimaryRunning()
	}
	return status
}

/**
 * IsHookHealthy 查询事件 tap 是否健康
 *
 * Returns:
 *   - bool: tap 已创建且处于启用状态
 */
func (a *App) IsHookHealthy() bool {
	return a.eventTap != nil && a.eventTap.IsHealthy()
}

/**
 * ReinitializeHook 手动重建事件 tap
 *
 * 用户在系统设置中授权后，前端调用此方法重试。
 *
 * Returns:
 *   - error: 重建失败时返回错误
 */
func (a *App) ReinitializeHook() error {
	if a.eventTap == nil {
		return fmt.Errorf("事件 tap 未初始化")
	}
	a.permissions.Invalidate()
	return a.eventTap.Reinitialize()
}

/**
 * UpdateBinding 更新单个快捷键绑定
 *
 * Parameters:
 *   - action: 动作标识（primary/mode_a/mode_b/mode_c）
 *   - shortcut: 快捷键组合，如 "Cmd+Shift+A"
 *   - style: 激活风格（press_and_hold/toggle）
 *   - enabled: 是否启用
 *
 * Returns:
 *   - error: 快捷键无效或动作未知时返回错误
 */
func (a *App) UpdateBinding(action, shortcut, style string, enabled bool) error {
	if a.router == nil {
		return fmt.Errorf("调度器未初始化")
	}

	parsed, err := dispatch.ParseShortcut(shortcut)
	if err != nil {
		return fmt.Errorf("快捷键无效: %w", err)
	}

	activationStyle := dispatch.ActivationStyle(style)
	if activationStyle == "" {
		activationStyle = dispatch.StylePressAndHold
	}

	return a.router.UpdateBinding(dispatch.Binding{
		Action:   dispatch.Action(action),
		Shortcut: parsed,
		Enabled:  enabled,
		Style:    activationStyle,
	})
}

/**
 * GetRecentSessions 获取最近的听写会话
 *
 * Parameters:
 *   - limit: 返回的最大会话数量
 *
 * Returns:
 *   - []storage.SessionRecord: 会话列表
 *   - error: 查询失败时返回错误
 */
func (a *App) GetRecentSessions(limit int) ([]storage.SessionRecord, error) {
	if a.sessions == nil {
		return nil, fmt.Errorf("存储未初始化")
	}
	if limit <= 0 {
		limit = 50
	}
	return a.sessions.FindRecent(limit)
}

/**
 * RequestAccessibility 请求辅助功能权限
 *
 * 弹出系统授权提示。
 *
 * Returns:
 *   - bool: 调用时权限是否已授予
 */
func (a *App) RequestAccessibility() bool {
	return a.permissions.RequestAccessibility()
}

/**
 * OpenPermissionSettings 打开系统设置的辅助功能页面
 *
 * Returns:
 *   - error: 打开失败时返回错误
 */
func (a *App) OpenPermissionSettings() error {
	return a.permissions.OpenSettings()
}

// ========== 私有方法 ==========

/**
 * forwardEvents 转发后端事件到前端
 *
 * 订阅后端事件总线，并将事件通过 Wails 推送到前端。
 */
func (a *App) forwardEvents() {
	subscriberID := a.eventBus.Subscribe("*", func(event events.Event) error {
		runtime.EventsEmit(a.ctx, string(event.Type), event)
		return nil
	})

	<-a.ctx.Done()
	a.eventBus.Unsubscribe(subscriberID)
}

// publishHookState 把 tap 生命周期状态发布到事件总线
func (a *App) publishHookState(state platform.HookState) {
	event := events.NewEvent(events.EventTypeHookStatus, map[string]interface{}{
		"state":   string(state),
		"healthy": state == platform.StateEnabled,
	})
	if err := a.eventBus.Publish(*event); err != nil {
		logger.Warn("钩子状态事件发布失败", zap.Error(err))
	}
}

// cleanupOldRecords 删除超过保留期的会话和事件
func (a *App) cleanupOldRecords() {
	days := a.config.Storage.RetentionDays
	if days <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	if deleted, err := a.sessions.DeleteOlderThan(cutoff); err != nil {
		logger.Warn("清理过期会话失败", zap.Error(err))
	} else if deleted > 0 {
		logger.Info("已清理过期会话", zap.Int64("count", deleted))
	}

	repo := storage.NewSQLiteEventRepository(a.db)
	if deleted, err := repo.DeleteOlderThan(cutoff); err != nil {
		logger.Warn("清理过期事件失败", zap.Error(err))
	} else if deleted > 0 {
		logger.Info("已清理过期事件", zap.Int64("count", deleted))
	}
}

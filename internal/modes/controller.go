/**
 * Package modes 模式控制器
 *
 * Controller 实现调度引擎回调，串联录音、AI 增强、
 * 会话持久化和事件发布。
 */

package modes

import (
	"context"
	"sync"
	"time"

	"github.com/chenyang-zz/voxflow/internal/dispatch"
	"github.com/chenyang-zz/voxflow/internal/infrastructure/ai"
	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"github.com/chenyang-zz/voxflow/internal/infrastructure/storage"
	"github.com/chenyang-zz/voxflow/pkg/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// defaultOperationTimeout 单次录音停止或增强调用的超时时间
const defaultOperationTimeout = 30 * time.Second

// 调度动作到增强模式的映射
var actionEnhanceModes = map[dispatch.Action]ai.EnhanceMode{
	dispatch.ActionPrimary: ai.ModePolish,
	dispatch.ActionModeA:   ai.ModeFormal,
	dispatch.ActionModeB:   ai.ModeSummarize,
	dispatch.ActionModeC:   ai.ModeTranslate,
}

/**
 * ControllerConfig 控制器配置
 */
type ControllerConfig struct {
	// PrimaryStyle 主动作的激活风格，写入会话记录
	PrimaryStyle string

	// OperationTimeout 录音停止和增强调用的超时时间
	OperationTimeout time.Duration
}

/**
 * Controller 模式控制器
 *
 * 所有方法由调度器异步派发，可以安全地做阻塞 IO；
 * 只有 OnCancelRequested 在 OS 回调路径上同步执行。
 */
type Controller struct {
	mu sync.Mutex

	recorder Recorder
	enhancer ai.Enhancer
	sessions storage.SessionRepository
	bus      *events.EventBus
	source   TextSource
	output   Output
	dismiss  *DismissRegistry

	config ControllerConfig

	// onPrimaryFinished 会话在调度器之外结束时的回传，
	// 通常指向 Router.NotifyPrimaryFinished
	onPrimaryFinished func()

	// currentSessionID 进行中的主会话，空表示无会话
	currentSessionID string
	sessionStartedAt time.Time
}

/**
 * NewController 创建模式控制器
 *
 * Parameters:
 *   - recorder: 录音边界
 *   - enhancer: 文本增强器
 *   - sessions: 会话仓储
 *   - bus: 事件总线
 *   - source: 辅助模式文本来源
 *   - output: 结果投递边界
 *   - config: 控制器配置
 *
 * Returns: *Controller - 控制器实例
 */
func NewController(
	recorder Recorder,
	enhancer ai.Enhancer,
	sessions storage.SessionRepository,
	bus *events.EventBus,
	source TextSource,
	output Output,
	config ControllerConfig,
) *Controller {
	if recorder == nil {
		recorder = NoopRecorder{}
	}
	if source == nil {
		source = NoopTextSource{}
	}
	if output == nil {
		output = NoopOutput{}
	}
	if config.OperationTimeout <= 0 {
		config.OperationTimeout = defaultOperationTimeout
	}

	return &Controller{
		recorder: recorder,
		enhancer: enhancer,
		sessions: sessions,
		bus:      bus,
		source:   source,
		output:   output,
		dismiss:  NewDismissRegistry(),
		config:   config,
	}
}

/**
 * SetPrimaryFinishedNotifier 设置主会话外部结束的回传
 *
 * 控制器先于调度器构造，调度器就绪后通过这里接线。
 *
 * Parameters:
 *   - fn: 回传函数，通常是 Router.NotifyPrimaryFinished
 */
func (c *Controller) SetPrimaryFinishedNotifier(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPrimaryFinished = fn
}

// Dismissibles 返回取消键的可关闭元素注册表
func (c *Controller) Dismissibles() *DismissRegistry {
	return c.dismiss
}

/**
 * Callbacks 构建调度器回调集合
 *
 * Returns: dispatch.Callbacks - 回调集合
 */
func (c *Controller) Callbacks() dispatch.Callbacks {
	return dispatch.Callbacks{
		StartPrimary:         c.startPrimary,
		StopAndCommitPrimary: c.stopAndCommitPrimary,
		StopPrimaryDiscard:   c.stopPrimaryDiscard,
		TriggerModeA:         func() { c.triggerMode(dispatch.ActionModeA) },
		TriggerModeB:         func() { c.triggerMode(dispatch.ActionModeB) },
		TriggerModeC:         func() { c.triggerMode(dispatch.ActionModeC) },
		OnCancelRequested:    c.dismiss.DismissAny,
	}
}

// startPrimary 开始主录音会话
//
// 锁只用于认领会话标识：会话记录写入和录音启动都可能
// 阻塞，不能挡住其它回调对会话状态的判定。
func (c *Controller) startPrimary() {
	sessionID := uuid.New().String()
	startedAt := time.Now()

	c.mu.Lock()
	if c.currentSessionID != "" {
		running := c.currentSessionID
		c.mu.Unlock()
		logger.Warn("主会话已在进行中，忽略开始请求",
			zap.String("session_id", running))
		return
	}
	c.currentSessionID = sessionID
	c.sessionStartedAt = startedAt
	c.mu.Unlock()

	if c.sessions != nil {
		err := c.sessions.Create(storage.SessionRecord{
			ID:        sessionID,
			Action:    string(dispatch.ActionPrimary),
			Style:     c.config.PrimaryStyle,
			StartedAt: startedAt,
		})
		if err != nil {
			logger.Error("创建会话记录失败", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.OperationTimeout)
	defer cancel()

	if err := c.recorder.Start(ctx, sessionID); err != nil {
		c.releaseSession(sessionID)
		logger.Error("录音启动失败",
			zap.String("session_id", sessionID),
			zap.Error(err))
		c.finishSession(sessionID, storage.OutcomeDiscarded, "", "")
		c.notifyPrimaryFinished()
		c.publish(events.EventTypeError, map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return
	}

	logger.Info("主会话已开始", zap.String("session_id", sessionID))
	c.publish(events.EventTypeModeStarted, map[string]interface{}{
		"action":     string(dispatch.ActionPrimary),
		"session_id": sessionID,
	})
}

// stopAndCommitPrimary 结束主会话并提交结果
//
// 会话标识认领后立即放锁：录音停止、增强和投递都是阻塞 IO，
// 持锁执行会把下一次会话的开始挡在网络调用后面。
func (c *Controller) stopAndCommitPrimary() {
	c.mu.Lock()
	sessionID := c.currentSessionID
	startedAt := c.sessionStartedAt
	c.currentSessionID = ""
	c.mu.Unlock()

	if sessionID == "" {
		logger.Debug("没有进行中的主会话，忽略提交请求")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.OperationTimeout)
	defer cancel()

	transcript, err := c.recorder.Stop(ctx)
	if err != nil {
		logger.Error("录音停止失败",
			zap.String("session_id", sessionID),
			zap.Error(err))
		c.finishSession(sessionID, storage.OutcomeDiscarded, "", "")
		c.publish(events.EventTypeModeCancelled, map[string]interface{}{
			"action":     string(dispatch.ActionPrimary),
			"session_id": sessionID,
		})
		return
	}

	if transcript == "" {
		logger.Info("转写为空，丢弃会话", zap.String("session_id", sessionID))
		c.finishSession(sessionID, storage.OutcomeDiscarded, "", "")
		c.publish(events.EventTypeModeCancelled, map[string]interface{}{
			"action":     string(dispatch.ActionPrimary),
			"session_id": sessionID,
		})
		return
	}

	// 增强失败时退回原始转写，听写结果不能因为模型故障而丢失
	enhanced := c.enhance(ctx, ai.ModePolish, transcript)

	if err := c.output.Deliver(ctx, enhanced); err != nil {
		logger.Error("结果投递失败",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	c.finishSession(sessionID, storage.OutcomeCommitted, transcript, enhanced)

	logger.Info("主会话已提交",
		zap.String("session_id", sessionID),
		zap.Duration("duration", time.Since(startedAt)))
	c.publish(events.EventTypeModeCommitted, map[string]interface{}{
		"action":     string(dispatch.ActionPrimary),
		"session_id": sessionID,
	})
}

// stopPrimaryDiscard 结束主会话并丢弃结果
func (c *Controller) stopPrimaryDiscard() {
	c.mu.Lock()
	sessionID := c.currentSessionID
	c.currentSessionID = ""
	c.mu.Unlock()

	if sessionID == "" {
		return
	}

	c.recorder.Discard()
	c.finishSession(sessionID, storage.OutcomeDiscarded, "", "")

	logger.Info("主会话已取消", zap.String("session_id", sessionID))
	c.publish(events.EventTypeModeCancelled, map[string]interface{}{
		"action":     string(dispatch.ActionPrimary),
		"session_id": sessionID,
	})
}

// releaseSession 释放认领的会话标识
//
// 启动失败时标识可能已被别的回调抢先清掉，只清自己的。
func (c *Controller) releaseSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentSessionID == sessionID {
		c.currentSessionID = ""
	}
}

// triggerMode 触发一次辅助模式
func (c *Controller) triggerMode(action dispatch.Action) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.OperationTimeout)
	defer cancel()

	text, err := c.source.Fetch(ctx)
	if err != nil {
		logger.Error("获取输入文本失败",
			zap.String("action", string(action)),
			zap.Error(err))
		c.publish(events.EventTypeError, map[string]interface{}{
			"action": string(action),
			"error":  err.Error(),
		})
		return
	}
	if text == "" {
		logger.Debug("输入文本为空，忽略触发", zap.String("action", string(action)))
		return
	}

	mode := actionEnhanceModes[action]
	enhanced := c.enhance(ctx, mode, text)

	if err := c.output.Deliver(ctx, enhanced); err != nil {
		logger.Error("结果投递失败",
			zap.String("action", string(action)),
			zap.Error(err))
	}

	c.recordTrigger(action, text, enhanced)

	logger.Info("辅助模式已触发",
		zap.String("action", string(action)),
		zap.String("mode", string(mode)))
	c.publish(events.EventTypeModeTriggered, map[string]interface{}{
		"action": string(action),
		"mode":   string(mode),
	})
}

// enhance 调用增强器，失败时返回原文
func (c *Controller) enhance(ctx context.Context, mode ai.EnhanceMode, text string) string {
	if c.enhancer == nil {
		return text
	}

	result, err := c.enhancer.Enhance(ctx, ai.EnhanceRequest{
		Transcript: text,
		Mode:       mode,
	})
	if err != nil {
		logger.Warn("文本增强失败，使用原文",
			zap.String("mode", string(mode)),
			zap.Error(err))
		return text
	}
	return result.Text
}

// recordTrigger 持久化一次辅助模式触发
func (c *Controller) recordTrigger(action dispatch.Action, text, enhanced string) {
	if c.sessions == nil {
		return
	}

	sessionID := uuid.New().String()
	now := time.Now()

	if err := c.sessions.Create(storage.SessionRecord{
		ID:        sessionID,
		Action:    string(action),
		Style:     "trigger",
		StartedAt: now,
	}); err != nil {
		logger.Error("创建触发记录失败", zap.Error(err))
		return
	}
	if err := c.sessions.Finish(sessionID, storage.OutcomeCommitted, text, enhanced, time.Now()); err != nil {
		logger.Error("写入触发结果失败", zap.Error(err))
	}
}

// finishSession 结束会话记录
func (c *Controller) finishSession(sessionID, outcome, transcript, enhanced string) {
	if c.sessions == nil {
		return
	}
	if err := c.sessions.Finish(sessionID, outcome, transcript, enhanced, time.Now()); err != nil {
		logger.Error("结束会话记录失败",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

// notifyPrimaryFinished 回传主会话结束
func (c *Controller) notifyPrimaryFinished() {
	c.mu.Lock()
	fn := c.onPrimaryFinished
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// publish 发布事件，总线未接线时忽略
func (c *Controller) publish(eventType events.EventType, data map[string]interface{}) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(*events.NewEvent(eventType, data)); err != nil {
		logger.Warn("事件发布失败", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

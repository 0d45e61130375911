package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// 会话结果枚举
const (
	// OutcomeRunning 会话进行中
	OutcomeRunning = "running"

	// OutcomeCommitted 正常结束并提交
	OutcomeCommitted = "committed"

	// OutcomeDiscarded 被取消，结果丢弃
	OutcomeDiscarded = "discarded"
)

/**
 * SessionRecord 一次听写会话的持久化记录
 */
type SessionRecord struct {
	// ID 会话唯一标识符
	ID string

	// Action 触发会话的动作标识
	Action string

	// Style 激活风格
	Style string

	// StartedAt 会话开始时间
	StartedAt time.Time

	// EndedAt 会话结束时间，进行中为 nil
	EndedAt *time.Time

	// Outcome 会话结果（running/committed/discarded）
	Outcome string

	// Transcript 原始转写文本
	Transcript string

	// EnhancedText AI 增强后的文本
	EnhancedText string
}

/**
 * SessionRepository 会话存储接口
 */
type SessionRepository interface {
	// Create 创建会话记录（进行中状态）
	Create(record SessionRecord) error

	// Finish 结束会话并写入结果
	Finish(id, outcome, transcript, enhancedText string, endedAt time.Time) error

	// FindByID 按 ID 查询会话
	FindByID(id string) (*SessionRecord, error)

	// FindRecent 查询最近的会话
	FindRecent(limit int) ([]SessionRecord, error)

	// DeleteOlderThan 删除旧会话
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

/**
 * SQLiteSessionRepository SQLite 会话仓储实现
 */
type SQLiteSessionRepository struct {
	db *sql.DB
}

/**
 * NewSQLiteSessionRepository 创建 SQLite 会话仓储
 *
 * Parameters:
 *   - db: 数据库连接
 *
 * Returns: *SQLiteSessionRepository - 会话仓储实例
 */
func NewSQLiteSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

/**
 * Create 创建会话记录
 *
 * Parameters:
 *   - record: 会话记录（Outcome 为空时默认为进行中）
 *
 * Returns: error - 错误信息
 */
func (r *SQLiteSessionRepository) Create(record SessionRecord) error {
	outcome := record.Outcome
	if outcome == "" {
		outcome = OutcomeRunning
	}

	_, err := r.db.Exec(
		"INSERT INTO sessions (uuid, action, style, started_at, outcome) VALUES (?, ?, ?, ?, ?)",
		record.ID,
		record.Action,
		record.Style,
		record.StartedAt,
		outcome,
	)
	if err != nil {
		logger.Error("创建会话记录失败",
			zap.String("session_id", record.ID),
			zap.Error(err),
		)
		return fmt.Errorf("创建会话记录失败: %w", err)
	}

	return nil
}

/**
 * Finish 结束会话并写入结果
 *
 * Parameters:
 *   - id: 会话 ID
 *   - outcome: 会话结果（committed/discarded）
 *   - transcript: 原始转写文本
 *   - enhancedText: AI 增强后的文本
 *   - endedAt: 结束时间
 *
 * Returns: error - 会话不存在或更新失败时返回错误
 */
func (r *SQLiteSessionRepository) Finish(id, outcome, transcript, enhancedText string, endedAt time.Time) error {
	result, err := r.db.Exec(
		"UPDATE sessions SET outcome = ?, transcript = ?, enhanced_text = ?, ended_at = ? WHERE uuid = ?",
		outcome,
		transcript,
		enhancedText,
		endedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("更新会话记录失败: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("会话不存在: %s", id)
	}

	return nil
}

/**
 * FindByID 按 ID 查询会话
 *
 * Parameters:
 *   - id: 会话 ID
 *
 * Returns: *SessionRecord - 会话记录，不存在时返回 nil, error - 错误信息
 */
func (r *SQLiteSessionRepository) FindByID(id string) (*SessionRecord, error) {
	row := r.db.QueryRow(
		"SELECT uuid, action, style, started_at, ended_at, outcome, transcript, enhanced_text FROM sessions WHERE uuid = ?",
		id,
	)

	record, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	return record, nil
}

/**
 * FindRecent 查询最近的会话
 *
 * Parameters:
 *   - limit: 数量上限
 *
 * Returns: []SessionRecord - 按开始时间倒序的会话列表, error - 错误信息
 */
func (r *SQLiteSessionRepository) FindRecent(limit int) ([]SessionRecord, error) {
	rows, err := r.db.Query(
		"SELECT uuid, action, style, started_at, ended_at, outcome, transcript, enhanced_text FROM sessions ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	defer rows.Close()

	var result []SessionRecord
	for rows.Next() {
		record, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描会话失败: %w", err)
		}
		result = append(result, *record)
	}
	return result, rows.Err()
}

/**
 * DeleteOlderThan 删除指定时间之前开始的会话
 *
 * Parameters:
 *   - cutoff: 截止时间
 *
 * Returns: int64 - 删除的行数, error - 错误信息
 */
func (r *SQLiteSessionRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM sessions WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("删除旧会话失败: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		logger.Info("清理旧会话完成",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}

// rowScanner 兼容 *sql.Row 和 *sql.Rows 的扫描接口
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSession 把一行查询结果扫描为会话记录
func scanSession(row rowScanner) (*SessionRecord, error) {
	var record SessionRecord
	var endedAt sql.NullTime
	var transcript, enhancedText sql.NullString

	err := row.Scan(
		&record.ID,
		&record.Action,
		&record.Style,
		&record.StartedAt,
		&endedAt,
		&record.Outcome,
		&transcript,
		&enhancedText,
	)
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		record.EndedAt = &endedAt.Time
	}
	record.Transcript = transcript.String
	record.EnhancedText = enhancedText.String

	return &record, nil
}

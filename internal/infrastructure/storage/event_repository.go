package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"github.com/chenyang-zz/voxflow/pkg/events"
	"go.uber.org/zap"
)

/**
 * EventRepository 调度事件存储接口
 *
 * 定义模式生命周期事件持久化的所有操作
 */
type EventRepository interface {
	// Save 保存单个事件
	Save(event events.Event) error

	// SaveBatch 批量保存事件（性能优化）
	SaveBatch(eventList []events.Event) error

	// FindRecent 查询最近的事件
	FindRecent(limit int) ([]events.Event, error)

	// FindByType 按类型查询
	FindByType(eventType events.EventType, limit int) ([]events.Event, error)

	// DeleteOlderThan 删除旧数据
	DeleteOlderThan(cutoff time.Time) (int64, error)

	// GetStats 获取统计信息
	GetStats() (*EventStats, error)
}

/**
 * EventStats 事件统计信息
 */
type EventStats struct {
	// TotalCount 总事件数
	TotalCount int64

	// CountByType 按类型统计
	CountByType map[string]int64
}

/**
 * SQLiteEventRepository SQLite 事件仓储实现
 */
type SQLiteEventRepository struct {
	db *sql.DB
}

/**
 * NewSQLiteEventRepository 创建 SQLite 事件仓储
 *
 * Parameters:
 *   - db: 数据库连接
 *
 * Returns: *SQLiteEventRepository - 事件仓储实例
 */
func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

/**
 * Save 保存单个事件
 *
 * Parameters:
 *   - event: 事件对象
 *
 * Returns: error - 错误信息
 */
func (r *SQLiteEventRepository) Save(event events.Event) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("序列化事件数据失败: %w", err)
	}

	_, err = r.db.Exec(
		"INSERT INTO dispatch_events (uuid, type, timestamp, data) VALUES (?, ?, ?, ?)",
		event.ID,
		event.Type,
		event.Timestamp,
		string(dataJSON),
	)
	if err != nil {
		logger.Error("保存事件失败",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		return fmt.Errorf("保存事件失败: %w", err)
	}

	return nil
}

/**
 * SaveBatch 批量保存事件
 *
 * 使用事务和预处理语句优化批量写入性能
 *
 * Parameters:
 *   - eventList: 事件数组
 *
 * Returns: error - 错误信息
 */
func (r *SQLiteEventRepository) SaveBatch(eventList []events.Event) error {
	if len(eventList) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		"INSERT INTO dispatch_events (uuid, type, timestamp, data) VALUES (?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("准备语句失败: %w", err)
	}
	defer stmt.Close()

	for _, event := range eventList {
		dataJSON, err := json.Marshal(event.Data)
		if err != nil {
			logger.Error("序列化事件数据失败",
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}

		if _, err := stmt.Exec(event.ID, event.Type, event.Timestamp, string(dataJSON)); err != nil {
			logger.Error("插入事件失败",
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			return fmt.Errorf("插入事件失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	return nil
}

/**
 * FindRecent 查询最近的事件
 *
 * Parameters:
 *   - limit: 数量上限
 *
 * Returns: []events.Event - 按时间倒序的事件列表, error - 错误信息
 */
func (r *SQLiteEventRepository) FindRecent(limit int) ([]events.Event, error) {
	rows, err := r.db.Query(
		"SELECT uuid, type, timestamp, data FROM dispatch_events ORDER BY timestamp DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("查询事件失败: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

/**
 * FindByType 按类型查询事件
 *
 * Parameters:
 *   - eventType: 事件类型
 *   - limit: 数量上限
 *
 * Returns: []events.Event - 按时间倒序的事件列表, error - 错误信息
 */
func (r *SQLiteEventRepository) FindByType(eventType events.EventType, limit int) ([]events.Event, error) {
	rows, err := r.db.Query(
		"SELECT uuid, type, timestamp, data FROM dispatch_events WHERE type = ? ORDER BY timestamp DESC LIMIT ?",
		string(eventType),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("查询事件失败: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

/**
 * DeleteOlderThan 删除指定时间之前的事件
 *
 * Parameters:
 *   - cutoff: 截止时间
 *
 * Returns: int64 - 删除的行数, error - 错误信息
 */
func (r *SQLiteEventRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM dispatch_events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("删除旧事件失败: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		logger.Info("清理旧事件完成",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}

/**
 * GetStats 获取事件统计信息
 *
 * Returns: *EventStats - 统计信息, error - 错误信息
 */
func (r *SQLiteEventRepository) GetStats() (*EventStats, error) {
	stats := &EventStats{CountByType: make(map[string]int64)}

	if err := r.db.QueryRow("SELECT COUNT(*) FROM dispatch_events").Scan(&stats.TotalCount); err != nil {
		return nil, fmt.Errorf("统计事件总数失败: %w", err)
	}

	rows, err := r.db.Query("SELECT type, COUNT(*) FROM dispatch_events GROUP BY type")
	if err != nil {
		return nil, fmt.Errorf("按类型统计事件失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		stats.CountByType[eventType] = count
	}

	return stats, rows.Err()
}

// scanEvents 把查询结果扫描为事件列表
func scanEvents(rows *sql.Rows) ([]events.Event, error) {
	var result []events.Event
	for rows.Next() {
		var event events.Event
		var dataJSON sql.NullString

		if err := rows.Scan(&event.ID, &event.Type, &event.Timestamp, &dataJSON); err != nil {
			return nil, fmt.Errorf("扫描事件失败: %w", err)
		}

		if dataJSON.Valid && dataJSON.String != "" {
			if err := json.Unmarshal([]byte(dataJSON.String), &event.Data); err != nil {
				logger.Warn("反序列化事件数据失败",
					zap.String("event_id", event.ID),
					zap.Error(err),
				)
			}
		}

		result = append(result, event)
	}
	return result, rows.Err()
}

package storage

import (
	"database/sql"
	"fmt"

	"github.com/chenyang-zz/voxflow/internal/infrastructure/logger"
	"go.uber.org/zap"
)

/**
 * Migration 数据库迁移
 */
type Migration struct {
	// Version 迁移版本号
	Version int

	// Name 迁移名称
	Name string

	// SQL 迁移 SQL 语句
	SQL string
}

// 所有迁移脚本（按版本号排序）
var migrations = []Migration{
	{
		Version: 1,
		Name:    "init_schema_migrations",
		SQL: `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`,
	},
	{
		Version: 2,
		Name:    "init_sessions_table",
		SQL: `
CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT UNIQUE NOT NULL,
    action TEXT NOT NULL,
    style TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    ended_at DATETIME,
    outcome TEXT NOT NULL DEFAULT 'running',
    transcript TEXT,
    enhanced_text TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_sessions_action ON sessions(action);
CREATE INDEX IF NOT EXISTS idx_sessions_outcome ON sessions(outcome);
`,
	},
	{
		Version: 3,
		Name:    "init_dispatch_events_table",
		SQL: `
CREATE TABLE IF NOT EXISTS dispatch_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT UNIQUE NOT NULL,
    type TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    data JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_dispatch_events_timestamp ON dispatch_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_dispatch_events_type ON dispatch_events(type);
CREATE INDEX IF NOT EXISTS idx_dispatch_events_uuid ON dispatch_events(uuid);
`,
	},
}

/**
 * RunMigrations 执行数据库迁移
 *
 * Parameters:
 *   - db: 数据库连接
 *
 * Returns: error - 错误信息
 */
func RunMigrations(db *sql.DB) error {
	logger.Info("开始执行数据库迁移")

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}

	// 获取已应用的迁移版本
	// 表不存在（首次运行）时查询返回错误，忽略它
	appliedVersions := make(map[int]bool)
	rows, _ := tx.Query("SELECT version FROM schema_migrations")
	if rows != nil {
		defer rows.Close()
		for rows.Next() {
			var version int
			if err := rows.Scan(&version); err != nil {
				tx.Rollback()
				return fmt.Errorf("扫描迁移版本失败: %w", err)
			}
			appliedVersions[version] = true
		}
		if err := rows.Err(); err != nil {
			tx.Rollback()
			return fmt.Errorf("遍历迁移版本失败: %w", err)
		}
	}

	// 执行未应用的迁移
	for _, migration := range migrations {
		if appliedVersions[migration.Version] {
			logger.Debug("跳过已应用的迁移",
				zap.Int("version", migration.Version),
				zap.String("name", migration.Name),
			)
			continue
		}

		logger.Info("应用迁移",
			zap.Int("version", migration.Version),
			zap.String("name", migration.Name),
		)

		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("执行迁移 %s 失败: %w", migration.Name, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version) VALUES (?)",
			migration.Version,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("记录迁移版本失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移事务失败: %w", err)
	}

	logger.Info("数据库迁移完成")
	return nil
}

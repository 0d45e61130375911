package storage

import (
	"database/sql"
	"testing"
	"time"

	"github.com/chenyang-zz/voxflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDB 创建内存数据库并执行迁移
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewSQLiteDB(SQLiteConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(db))
	return db
}

func TestRunMigrationsIdempotent(t *testing.T) {
	db := newTestDB(t)

	// 重复执行迁移不报错，版本记录不重复
	require.NoError(t, RunMigrations(db))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestEventRepositorySaveAndQuery(t *testing.T) {
	repo := NewSQLiteEventRepository(newTestDB(t))

	ev := events.NewEvent(events.EventTypeModeStarted, map[string]interface{}{
		"action": "primary",
	})
	require.NoError(t, repo.Save(*ev))

	found, err := repo.FindRecent(10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ev.ID, found[0].ID)
	assert.Equal(t, events.EventTypeModeStarted, found[0].Type)
	assert.Equal(t, "primary", found[0].Data["action"])
}

func TestEventRepositorySaveBatch(t *testing.T) {
	repo := NewSQLiteEventRepository(newTestDB(t))

	var batch []events.Event
	for i := 0; i < 5; i++ {
		batch = append(batch, *events.NewEvent(events.EventTypeModeTriggered, map[string]interface{}{
			"action": "mode_b",
		}))
	}
	require.NoError(t, repo.SaveBatch(batch))
	require.NoError(t, repo.SaveBatch(nil))

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalCount)
	assert.Equal(t, int64(5), stats.CountByType[string(events.EventTypeModeTriggered)])
}

func TestEventRepositoryFindByType(t *testing.T) {
	repo := NewSQLiteEventRepository(newTestDB(t))

	require.NoError(t, repo.Save(*events.NewEvent(events.EventTypeModeStarted, nil)))
	require.NoError(t, repo.Save(*events.NewEvent(events.EventTypeModeCancelled, nil)))

	found, err := repo.FindByType(events.EventTypeModeCancelled, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, events.EventTypeModeCancelled, found[0].Type)
}

func TestEventRepositoryDeleteOlderThan(t *testing.T) {
	repo := NewSQLiteEventRepository(newTestDB(t))

	old := events.NewEvent(events.EventTypeModeStarted, nil)
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.Save(*old))
	require.NoError(t, repo.Save(*events.NewEvent(events.EventTypeModeStarted, nil)))

	deleted, err := repo.DeleteOlderThan(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.FindRecent(10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestSessionRepositoryLifecycle(t *testing.T) {
	repo := NewSQLiteSessionRepository(newTestDB(t))

	started := time.Now().Add(-time.Minute)
	require.NoError(t, repo.Create(SessionRecord{
		ID:        "sess-1",
		Action:    "primary",
		Style:     "press_and_hold",
		StartedAt: started,
	}))

	record, err := repo.FindByID("sess-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, OutcomeRunning, record.Outcome)
	assert.Nil(t, record.EndedAt)

	require.NoError(t, repo.Finish("sess-1", OutcomeCommitted, "hello world", "Hello, world.", time.Now()))

	record, err = repo.FindByID("sess-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, record.Outcome)
	assert.Equal(t, "hello world", record.Transcript)
	assert.Equal(t, "Hello, world.", record.EnhancedText)
	require.NotNil(t, record.EndedAt)
}

func TestSessionRepositoryFinishUnknownSession(t *testing.T) {
	repo := NewSQLiteSessionRepository(newTestDB(t))
	assert.Error(t, repo.Finish("nope", OutcomeDiscarded, "", "", time.Now()))
}

func TestSessionRepositoryFindByIDMissing(t *testing.T) {
	repo := NewSQLiteSessionRepository(newTestDB(t))

	record, err := repo.FindByID("missing")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestSessionRepositoryFindRecentOrder(t *testing.T) {
	repo := NewSQLiteSessionRepository(newTestDB(t))

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(SessionRecord{
			ID:        id,
			Action:    "primary",
			Style:     "toggle",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	found, err := repo.FindRecent(2)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "c", found[0].ID)
	assert.Equal(t, "b", found[1].ID)
}

func TestSessionRepositoryDeleteOlderThan(t *testing.T) {
	repo := NewSQLiteSessionRepository(newTestDB(t))

	require.NoError(t, repo.Create(SessionRecord{
		ID: "old", Action: "primary", Style: "toggle",
		StartedAt: time.Now().Add(-100 * 24 * time.Hour),
	}))
	require.NoError(t, repo.Create(SessionRecord{
		ID: "new", Action: "primary", Style: "toggle",
		StartedAt: time.Now(),
	}))

	deleted, err := repo.DeleteOlderThan(time.Now().Add(-90 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestBatchWriterFlushesOnBatchSize(t *testing.T) {
	repo := NewSQLiteEventRepository(newTestDB(t))
	bw := NewBatchWriter(repo, BatchWriterConfig{
		BatchSize:     3,
		FlushInterval: time.Hour,
		EventBuffer:   10,
	})

	bw.Start()
	defer bw.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, bw.Write(*events.NewEvent(events.EventTypeModeStarted, nil)))
	}

	// 达到批量大小后自动刷新
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if bw.Persisted() >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, int64(3), bw.Persisted())

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalCount)
}

func TestBatchWriterStopFlushesRemainder(t *testing.T) {
	repo := NewSQLiteEventRepository(newTestDB(t))
	bw := NewBatchWriter(repo, BatchWriterConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		EventBuffer:   10,
	})

	bw.Start()
	bw.Write(*events.NewEvent(events.EventTypeModeCommitted, nil))
	bw.Write(*events.NewEvent(events.EventTypeModeCommitted, nil))
	bw.Stop()

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalCount)

	// Stop 幂等
	bw.Stop()
}

func TestBatchWriterDropsWhenFull(t *testing.T) {
	repo := NewSQLiteEventRepository(newTestDB(t))
	bw := NewBatchWriter(repo, BatchWriterConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		EventBuffer:   1,
	})

	// 未启动时没有消费者，第二个事件塞不进通道
	require.True(t, bw.Write(*events.NewEvent(events.EventTypeModeStarted, nil)))
	assert.False(t, bw.Write(*events.NewEvent(events.EventTypeModeStarted, nil)))
	assert.Equal(t, int64(1), bw.Dropped())
}

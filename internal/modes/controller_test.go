package modes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chenyang-zz/voxflow/internal/dispatch"
	"github.com/chenyang-zz/voxflow/internal/infrastructure/ai"
	"github.com/chenyang-zz/voxflow/internal/infrastructure/storage"
	"github.com/chenyang-zz/voxflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecorder 可编排返回值的录音实现
type fakeRecorder struct {
	mu         sync.Mutex
	startErr   error
	stopErr    error
	transcript string
	stopGate   chan struct{} // 非空时 Stop 阻塞到通道关闭

	started   int
	stopped   int
	discarded int
	sessionID string
}

func (f *fakeRecorder) Start(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	f.sessionID = sessionID
	return f.startErr
}

func (f *fakeRecorder) Stop(ctx context.Context) (string, error) {
	f.mu.Lock()
	f.stopped++
	gate := f.stopGate
	transcript, err := f.transcript, f.stopErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return transcript, err
}

func (f *fakeRecorder) counts() (started, stopped, discarded int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.stopped, f.discarded
}

func (f *fakeRecorder) lastSessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionID
}

func (f *fakeRecorder) Discard() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded++
}

// fakeEnhancer 在文本前加标记
type fakeEnhancer struct {
	err   error
	modes []ai.EnhanceMode
	mu    sync.Mutex
}

func (f *fakeEnhancer) Enhance(ctx context.Context, req ai.EnhanceRequest) (*ai.EnhanceResult, error) {
	f.mu.Lock()
	f.modes = append(f.modes, req.Mode)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &ai.EnhanceResult{Text: "[" + string(req.Mode) + "] " + req.Transcript}, nil
}

func (f *fakeEnhancer) GetType() ai.ModelType { return ai.ModelType("fake") }
func (f *fakeEnhancer) Close() error          { return nil }

// fakeSessions 内存会话仓储
type fakeSessions struct {
	mu       sync.Mutex
	records  map[string]*storage.SessionRecord
	order    []string
	finishes int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{records: make(map[string]*storage.SessionRecord)}
}

func (f *fakeSessions) Create(record storage.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record.Outcome == "" {
		record.Outcome = storage.OutcomeRunning
	}
	f.records[record.ID] = &record
	f.order = append(f.order, record.ID)
	return nil
}

func (f *fakeSessions) Finish(id, outcome, transcript, enhancedText string, endedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return errors.New("会话不存在")
	}
	record.Outcome = outcome
	record.Transcript = transcript
	record.EnhancedText = enhancedText
	record.EndedAt = &endedAt
	f.finishes++
	return nil
}

func (f *fakeSessions) FindByID(id string) (*storage.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (f *fakeSessions) FindRecent(limit int) ([]storage.SessionRecord, error) {
	return nil, nil
}

func (f *fakeSessions) DeleteOlderThan(cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeSessions) last() *storage.SessionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.order) == 0 {
		return nil
	}
	copied := *f.records[f.order[len(f.order)-1]]
	return &copied
}

// fakeOutput 记录投递内容
type fakeOutput struct {
	mu        sync.Mutex
	delivered []string
}

func (f *fakeOutput) Deliver(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, text)
	return nil
}

func (f *fakeOutput) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.delivered))
	copy(out, f.delivered)
	return out
}

// staticSource 固定文本来源
type staticSource struct {
	text string
	err  error
}

func (s staticSource) Fetch(ctx context.Context) (string, error) { return s.text, s.err }

// collectEvents 订阅总线并收集事件类型
func collectEvents(t *testing.T, bus *events.EventBus) func() []events.EventType {
	t.Helper()

	var mu sync.Mutex
	var collected []events.EventType

	bus.Subscribe("*", func(event events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		collected = append(collected, event.Type)
		return nil
	})

	return func() []events.EventType {
		mu.Lock()
		defer mu.Unlock()
		out := make([]events.EventType, len(collected))
		copy(out, collected)
		return out
	}
}

func containsType(types []events.EventType, want events.EventType) bool {
	for _, tp := range types {
		if tp == want {
			return true
		}
	}
	return false
}

func TestControllerCommitFlow(t *testing.T) {
	recorder := &fakeRecorder{transcript: "今天 天气 不错"}
	enhancer := &fakeEnhancer{}
	sessions := newFakeSessions()
	output := &fakeOutput{}
	bus := events.NewEventBus()
	defer bus.Stop(time.Second)
	getEvents := collectEvents(t, bus)

	c := NewController(recorder, enhancer, sessions, bus, nil, output, ControllerConfig{
		PrimaryStyle: string(dispatch.StylePressAndHold),
	})

	cb := c.Callbacks()
	cb.StartPrimary()
	cb.StopAndCommitPrimary()

	assert.Equal(t, 1, recorder.started)
	assert.Equal(t, 1, recorder.stopped)

	record := sessions.last()
	require.NotNil(t, record)
	assert.Equal(t, string(dispatch.ActionPrimary), record.Action)
	assert.Equal(t, storage.OutcomeCommitted, record.Outcome)
	assert.Equal(t, "今天 天气 不错", record.Transcript)
	assert.Equal(t, "[polish] 今天 天气 不错", record.EnhancedText)
	require.NotNil(t, record.EndedAt)

	delivered := output.all()
	require.Len(t, delivered, 1)
	assert.Equal(t, "[polish] 今天 天气 不错", delivered[0])

	assert.Eventually(t, func() bool {
		types := getEvents()
		return containsType(types, events.EventTypeModeStarted) &&
			containsType(types, events.EventTypeModeCommitted)
	}, time.Second, 10*time.Millisecond)
}

func TestControllerEmptyTranscriptDiscards(t *testing.T) {
	recorder := &fakeRecorder{transcript: ""}
	sessions := newFakeSessions()
	output := &fakeOutput{}

	c := NewController(recorder, &fakeEnhancer{}, sessions, nil, nil, output, ControllerConfig{})

	cb := c.Callbacks()
	cb.StartPrimary()
	cb.StopAndCommitPrimary()

	record := sessions.last()
	require.NotNil(t, record)
	assert.Equal(t, storage.OutcomeDiscarded, record.Outcome)
	assert.Empty(t, output.all())
}

func TestControllerDiscardFlow(t *testing.T) {
	recorder := &fakeRecorder{transcript: "不该出现的文本"}
	sessions := newFakeSessions()
	output := &fakeOutput{}

	c := NewController(recorder, &fakeEnhancer{}, sessions, nil, nil, output, ControllerConfig{})

	cb := c.Callbacks()
	cb.StartPrimary()
	cb.StopPrimaryDiscard()

	assert.Equal(t, 1, recorder.discarded)
	assert.Equal(t, 0, recorder.stopped)

	record := sessions.last()
	require.NotNil(t, record)
	assert.Equal(t, storage.OutcomeDiscarded, record.Outcome)
	assert.Empty(t, output.all())
}

func TestControllerStartFailureNotifies(t *testing.T) {
	recorder := &fakeRecorder{startErr: errors.New("麦克风不可用")}
	sessions := newFakeSessions()

	c := NewController(recorder, &fakeEnhancer{}, sessions, nil, nil, nil, ControllerConfig{})

	notified := 0
	c.SetPrimaryFinishedNotifier(func() { notified++ })

	c.Callbacks().StartPrimary()

	assert.Equal(t, 1, notified)
	record := sessions.last()
	require.NotNil(t, record)
	assert.Equal(t, storage.OutcomeDiscarded, record.Outcome)

	// 启动失败后不应存在进行中的会话，提交请求被忽略
	c.Callbacks().StopAndCommitPrimary()
	assert.Equal(t, 0, recorder.stopped)
}

func TestControllerEnhanceFailureFallsBack(t *testing.T) {
	recorder := &fakeRecorder{transcript: "原始文本"}
	enhancer := &fakeEnhancer{err: errors.New("模型不可用")}
	sessions := newFakeSessions()
	output := &fakeOutput{}

	c := NewController(recorder, enhancer, sessions, nil, nil, output, ControllerConfig{})

	cb := c.Callbacks()
	cb.StartPrimary()
	cb.StopAndCommitPrimary()

	delivered := output.all()
	require.Len(t, delivered, 1)
	assert.Equal(t, "原始文本", delivered[0])

	record := sessions.last()
	require.NotNil(t, record)
	assert.Equal(t, storage.OutcomeCommitted, record.Outcome)
	assert.Equal(t, "原始文本", record.EnhancedText)
}

func TestControllerDoubleStartIgnored(t *testing.T) {
	recorder := &fakeRecorder{transcript: "文本"}
	sessions := newFakeSessions()

	c := NewController(recorder, &fakeEnhancer{}, sessions, nil, nil, nil, ControllerConfig{})

	cb := c.Callbacks()
	cb.StartPrimary()
	cb.StartPrimary()

	assert.Equal(t, 1, recorder.started)
}

func TestControllerCommitDoesNotBlockNextStart(t *testing.T) {
	gate := make(chan struct{})
	recorder := &fakeRecorder{transcript: "第一段", stopGate: gate}
	sessions := newFakeSessions()
	output := &fakeOutput{}

	c := NewController(recorder, &fakeEnhancer{}, sessions, nil, nil, output, ControllerConfig{})
	cb := c.Callbacks()

	cb.StartPrimary()
	firstID := recorder.lastSessionID()

	committed := make(chan struct{})
	go func() {
		cb.StopAndCommitPrimary()
		close(committed)
	}()

	// 等提交流程进入录音停止（此时它卡在 IO 上）
	require.Eventually(t, func() bool {
		_, stopped, _ := recorder.counts()
		return stopped == 1
	}, time.Second, 5*time.Millisecond)

	// 上一次提交还在阻塞中，新会话必须能立即开始
	started := make(chan struct{})
	go func() {
		cb.StartPrimary()
		close(started)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("开始回调被阻塞中的提交流程挡住")
	}
	starts, _, _ := recorder.counts()
	assert.Equal(t, 2, starts)

	// 放行后第一个会话照常提交
	close(gate)
	<-committed

	record, err := sessions.FindByID(firstID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, storage.OutcomeCommitted, record.Outcome)
	assert.Equal(t, "第一段", record.Transcript)
}

func TestControllerTriggerModes(t *testing.T) {
	enhancer := &fakeEnhancer{}
	sessions := newFakeSessions()
	output := &fakeOutput{}
	bus := events.NewEventBus()
	defer bus.Stop(time.Second)
	getEvents := collectEvents(t, bus)

	c := NewController(nil, enhancer, sessions, bus, staticSource{text: "待处理文本"}, output, ControllerConfig{})

	cb := c.Callbacks()
	cb.TriggerModeA()
	cb.TriggerModeB()
	cb.TriggerModeC()

	delivered := output.all()
	require.Len(t, delivered, 3)
	assert.Equal(t, "[formal] 待处理文本", delivered[0])
	assert.Equal(t, "[summarize] 待处理文本", delivered[1])
	assert.Equal(t, "[translate] 待处理文本", delivered[2])

	record := sessions.last()
	require.NotNil(t, record)
	assert.Equal(t, string(dispatch.ActionModeC), record.Action)
	assert.Equal(t, storage.OutcomeCommitted, record.Outcome)

	assert.Eventually(t, func() bool {
		count := 0
		for _, tp := range getEvents() {
			if tp == events.EventTypeModeTriggered {
				count++
			}
		}
		return count == 3
	}, time.Second, 10*time.Millisecond)
}

func TestControllerTriggerEmptySourceIgnored(t *testing.T) {
	enhancer := &fakeEnhancer{}
	sessions := newFakeSessions()
	output := &fakeOutput{}

	c := NewController(nil, enhancer, sessions, nil, staticSource{}, output, ControllerConfig{})

	c.Callbacks().TriggerModeA()

	assert.Empty(t, output.all())
	assert.Nil(t, sessions.last())
	assert.Empty(t, enhancer.modes)
}

func TestDismissRegistry(t *testing.T) {
	c := NewController(nil, &fakeEnhancer{}, nil, nil, nil, nil, ControllerConfig{})

	// 没有注册元素时取消不被处理
	assert.False(t, c.Callbacks().OnCancelRequested())

	dismissed := false
	c.Dismissibles().Register(dismissFunc(func() bool {
		dismissed = true
		return true
	}))

	assert.True(t, c.Callbacks().OnCancelRequested())
	assert.True(t, dismissed)
}

// dismissFunc 函数适配器
type dismissFunc func() bool

func (f dismissFunc) Dismiss() bool { return f() }

// fakeEventRepo 内存事件仓储
type fakeEventRepo struct {
	mu    sync.Mutex
	saved []events.Event
}

func (f *fakeEventRepo) Save(event events.Event) error { return f.SaveBatch([]events.Event{event}) }

func (f *fakeEventRepo) SaveBatch(eventList []events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, eventList...)
	return nil
}

func (f *fakeEventRepo) FindRecent(limit int) ([]events.Event, error) { return nil, nil }

func (f *fakeEventRepo) FindByType(eventType events.EventType, limit int) ([]events.Event, error) {
	return nil, nil
}

func (f *fakeEventRepo) DeleteOlderThan(cutoff time.Time) (int64, error) { return 0, nil }

func (f *fakeEventRepo) GetStats() (*storage.EventStats, error) { return &storage.EventStats{}, nil }

func (f *fakeEventRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func TestEventPersisterFiltersTypes(t *testing.T) {
	repo := &fakeEventRepo{}
	writer := storage.NewBatchWriter(repo, storage.BatchWriterConfig{
		BatchSize:     1,
		FlushInterval: 10 * time.Millisecond,
		EventBuffer:   16,
	})
	writer.Start()
	defer writer.Stop()

	bus := events.NewEventBus()
	defer bus.Stop(time.Second)

	persister := NewEventPersister(writer, DefaultPersistenceConfig())
	persister.Attach(bus)
	defer persister.Detach()

	require.NoError(t, bus.Publish(*events.NewEvent(events.EventTypeModeStarted, nil)))
	require.NoError(t, bus.Publish(*events.NewEvent(events.EventTypeError, nil)))
	require.NoError(t, bus.Publish(*events.NewEvent(events.EventTypeModeCommitted, nil)))

	// error 事件不在默认持久化范围内
	assert.Eventually(t, func() bool {
		return repo.count() == 2
	}, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, repo.count())
}

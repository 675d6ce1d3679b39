package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/vietddude/relayer/internal/core/domain"
	"github.com/vietddude/relayer/internal/infra/storage"
)

type mockSource struct {
	batches [][]*domain.RawEvent
	err     error
	polls   int
}

func (m *mockSource) PollNewEvents(ctx context.Context) ([]*domain.RawEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.polls >= len(m.batches) {
		m.polls++
		return nil, nil
	}
	batch := m.batches[m.polls]
	m.polls++
	return batch, nil
}

type mockProbe struct {
	connected bool
}

func (m *mockProbe) IsConnected() bool { return m.connected }

type mockStore struct {
	records map[string]domain.ProcessedRecord
	markErr error
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string]domain.ProcessedRecord)}
}

func (m *mockStore) HasProcessed(ctx context.Context, key domain.EventKey) (bool, error) {
	_, ok := m.records[key.String()]
	return ok, nil
}

func (m *mockStore) MarkProcessed(ctx context.Context, key domain.EventKey, rec domain.ProcessedRecord) error {
	if m.markErr != nil {
		return m.markErr
	}
	if _, ok := m.records[key.String()]; ok {
		return storage.ErrAlreadyProcessed
	}
	m.records[key.String()] = rec
	return nil
}

func (m *mockStore) Count(ctx context.Context) (int, error) {
	return len(m.records), nil
}

type mockExecutor struct {
	calls    []domain.EventKey
	failures int // fail this many leading calls
}

func (m *mockExecutor) Execute(ctx context.Context, ev domain.ValidatedEvent) error {
	m.calls = append(m.calls, ev.Key())
	if len(m.calls) <= m.failures {
		return errors.New("destination rejected transaction")
	}
	return nil
}

type mockDeadLetter struct {
	entries []string
}

func (m *mockDeadLetter) PushDeadLetter(ctx context.Context, ev domain.ValidatedEvent, cause error) error {
	m.entries = append(m.entries, ev.Key().String())
	return nil
}

func evt(tx string, logIndex uint, amount int64) *domain.RawEvent {
	return &domain.RawEvent{
		TxHash:             tx,
		LogIndex:           logIndex,
		BlockNumber:        10,
		Sender:             "0x1111111111111111111111111111111111111111",
		Token:              "0x2222222222222222222222222222222222222222",
		Amount:             big.NewInt(amount),
		DestinationChainID: 137,
		Recipient:          []byte{0xaa},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newTestPipeline(src EventSource, store storage.ProcessedStore, exec *mockExecutor, opts ...func(*Config)) *Pipeline {
	cfg := Config{
		Source:       src,
		Probe:        &mockProbe{connected: true},
		Store:        store,
		Executor:     exec,
		PollInterval: time.Millisecond,
		Log:          quietLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

func TestCycle_LedgerOrderAndDedup(t *testing.T) {
	batch := []*domain.RawEvent{evt("0x1", 0, 50), evt("0x1", 1, 75)}
	src := &mockSource{batches: [][]*domain.RawEvent{batch, batch}}
	store := newMockStore()
	exec := &mockExecutor{}
	p := newTestPipeline(src, store, exec)
	ctx := context.Background()

	if err := p.cycle(ctx); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}

	want := []domain.EventKey{{TxHash: "0x1", LogIndex: 0}, {TxHash: "0x1", LogIndex: 1}}
	if len(exec.calls) != 2 || exec.calls[0] != want[0] || exec.calls[1] != want[1] {
		t.Fatalf("expected executor calls %v in ledger order, got %v", want, exec.calls)
	}
	for _, k := range want {
		if has, _ := store.HasProcessed(ctx, k); !has {
			t.Errorf("expected %s committed", k)
		}
	}

	// Identical re-delivery: both events skipped, zero extra executions.
	if err := p.cycle(ctx); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if len(exec.calls) != 2 {
		t.Fatalf("re-delivered batch must not re-execute, got %d calls", len(exec.calls))
	}
}

func TestProcessEvent_InvalidNeverExecutesNorCommits(t *testing.T) {
	store := newMockStore()
	exec := &mockExecutor{}
	p := newTestPipeline(&mockSource{}, store, exec)
	ctx := context.Background()

	nonPositive := evt("0x2", 0, 0)
	missing := evt("0x2", 1, 100)
	missing.Sender = ""

	for _, raw := range []*domain.RawEvent{nonPositive, missing} {
		if err := p.processEvent(ctx, raw); err != nil {
			t.Fatalf("invalid event must be contained, got %v", err)
		}
	}

	if len(exec.calls) != 0 {
		t.Errorf("executor called for invalid events: %v", exec.calls)
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Errorf("invalid events must not be committed, got %d records", n)
	}
}

func TestProcessEvent_ExecutorFailureNotCommitted(t *testing.T) {
	store := newMockStore()
	exec := &mockExecutor{failures: 1}
	p := newTestPipeline(&mockSource{}, store, exec)
	ctx := context.Background()

	raw := evt("0x3", 0, 100)
	if err := p.processEvent(ctx, raw); err != nil {
		t.Fatalf("executor failure must be contained, got %v", err)
	}

	if has, _ := store.HasProcessed(ctx, raw.Key()); has {
		t.Error("failed execution must not be committed")
	}

	// Re-delivery retries it: failure budget is spent, so it succeeds.
	if err := p.processEvent(ctx, raw); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if has, _ := store.HasProcessed(ctx, raw.Key()); !has {
		t.Error("expected commit after successful re-delivery")
	}
	if len(exec.calls) != 2 {
		t.Errorf("expected 2 executor calls, got %d", len(exec.calls))
	}
}

func TestProcessEvent_RetryPolicy(t *testing.T) {
	store := newMockStore()
	exec := &mockExecutor{failures: 2}
	p := newTestPipeline(&mockSource{}, store, exec, func(c *Config) {
		c.OnFailure = FailureRetry
		c.MaxRetries = 3
	})
	ctx := context.Background()

	raw := evt("0x4", 0, 100)
	if err := p.processEvent(ctx, raw); err != nil {
		t.Fatalf("processEvent failed: %v", err)
	}

	if len(exec.calls) != 3 {
		t.Errorf("expected 3 attempts (2 failures + success), got %d", len(exec.calls))
	}
	if has, _ := store.HasProcessed(ctx, raw.Key()); !has {
		t.Error("expected commit after in-process retry succeeded")
	}
}

func TestProcessEvent_DeadLetterPolicy(t *testing.T) {
	store := newMockStore()
	exec := &mockExecutor{failures: 100}
	dlq := &mockDeadLetter{}
	p := newTestPipeline(&mockSource{}, store, exec, func(c *Config) {
		c.OnFailure = FailureDeadLetter
		c.DeadLetter = dlq
	})
	ctx := context.Background()

	raw := evt("0x5", 0, 100)
	if err := p.processEvent(ctx, raw); err != nil {
		t.Fatalf("processEvent failed: %v", err)
	}

	if len(dlq.entries) != 1 || dlq.entries[0] != "0x5-0" {
		t.Errorf("expected event parked on dead-letter queue, got %v", dlq.entries)
	}
	if has, _ := store.HasProcessed(ctx, raw.Key()); has {
		t.Error("dead-lettered event must not be committed")
	}
}

func TestProcessEvent_PersistenceFailureEscalates(t *testing.T) {
	store := newMockStore()
	store.markErr = storage.ErrPersistence
	exec := &mockExecutor{}
	p := newTestPipeline(&mockSource{}, store, exec)

	err := p.processEvent(context.Background(), evt("0x6", 0, 100))
	if !errors.Is(err, storage.ErrPersistence) {
		t.Fatalf("expected persistence failure to escalate, got %v", err)
	}
}

func TestCrashRecovery_ReExecutesUncommittedEvent(t *testing.T) {
	// Event executed, process killed before the commit landed: the store
	// reloads without the key, so re-delivery triggers a second execution.
	raw := evt("0xabc", 0, 100)
	ctx := context.Background()

	exec := &mockExecutor{}
	crashStore := newMockStore()
	crashStore.markErr = storage.ErrPersistence // commit never lands
	p1 := newTestPipeline(&mockSource{}, crashStore, exec)
	_ = p1.processEvent(ctx, raw)

	if len(exec.calls) != 1 {
		t.Fatalf("expected 1 execution before the crash, got %d", len(exec.calls))
	}

	// Restart: fresh pipeline, state reloaded empty for that key.
	freshStore := newMockStore()
	p2 := newTestPipeline(&mockSource{}, freshStore, exec)
	if err := p2.processEvent(ctx, raw); err != nil {
		t.Fatalf("re-delivery failed: %v", err)
	}

	if len(exec.calls) != 2 {
		t.Fatalf("expected re-delivery to execute again, got %d calls", len(exec.calls))
	}
	if has, _ := freshStore.HasProcessed(ctx, raw.Key()); !has {
		t.Error("expected commit after recovered re-delivery")
	}
}

func TestRun_TerminatesOnConnectionLoss(t *testing.T) {
	p := newTestPipeline(&mockSource{}, newMockStore(), &mockExecutor{}, func(c *Config) {
		c.Probe = &mockProbe{connected: false}
	})

	err := p.Run(context.Background())
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("expected ErrConnectionLost, got %v", err)
	}
}

func TestRun_StopsAtCycleBoundary(t *testing.T) {
	p := newTestPipeline(&mockSource{}, newMockStore(), &mockExecutor{})

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop")
	}
}

func TestRun_DegradedBackoffOnPollError(t *testing.T) {
	src := &mockSource{err: errors.New("rpc timeout")}
	p := newTestPipeline(src, newMockStore(), &mockExecutor{}, func(c *Config) {
		c.PollInterval = 20 * time.Millisecond // widen the degraded backoff window
	})

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	deadline := time.After(time.Second)
	for p.State() != StateDegraded {
		select {
		case <-deadline:
			t.Fatal("pipeline never entered degraded state")
		case <-time.After(time.Millisecond):
		}
	}

	_ = p.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop after degradation")
	}
}

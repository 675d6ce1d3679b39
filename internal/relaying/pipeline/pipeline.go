package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/relayer/internal/core/domain"
	"github.com/vietddude/relayer/internal/infra/storage"
	"github.com/vietddude/relayer/internal/relaying/executor"
	"github.com/vietddude/relayer/internal/relaying/metrics"
	"github.com/vietddude/relayer/internal/relaying/validator"
)

// ErrConnectionLost terminates the relay loop when the source endpoint
// stops answering liveness probes. A supervisor restarts the process.
var ErrConnectionLost = errors.New("source chain connection lost")

// State is the pipeline's position in its poll/drain cycle.
type State string

const (
	StateIdle     State = "idle"
	StatePolling  State = "polling"
	StateDraining State = "draining"
	StateDegraded State = "degraded"
)

// FailurePolicy selects what happens to an event after the executor
// fails for it.
type FailurePolicy string

const (
	// FailureDrop logs the failure and moves on. The event is only
	// retried if the source re-delivers it.
	FailureDrop FailurePolicy = "drop"
	// FailureRetry re-executes in process up to MaxRetries extra attempts.
	FailureRetry FailurePolicy = "retry"
	// FailureDeadLetter parks the event on the dead-letter queue.
	FailureDeadLetter FailurePolicy = "deadletter"
)

// EventSource produces raw events that appeared since the last poll, in
// ledger order.
type EventSource interface {
	PollNewEvents(ctx context.Context) ([]*domain.RawEvent, error)
}

// LivenessProbe reports whether the source endpoint is reachable.
type LivenessProbe interface {
	IsConnected() bool
}

// DeadLetterSink parks events the executor gave up on.
type DeadLetterSink interface {
	PushDeadLetter(ctx context.Context, ev domain.ValidatedEvent, cause error) error
}

// Config holds pipeline wiring and policy.
type Config struct {
	Source       EventSource
	Probe        LivenessProbe
	Store        storage.ProcessedStore
	Executor     executor.Executor
	DeadLetter   DeadLetterSink // required when OnFailure is FailureDeadLetter
	PollInterval time.Duration
	OnFailure    FailurePolicy
	MaxRetries   int
	Log          *slog.Logger
}

// Pipeline is the single-worker orchestrator: poll, validate, dedupe,
// execute, commit. One cycle at a time; the next poll never starts before
// the current drain completes.
type Pipeline struct {
	cfg     Config
	running atomic.Bool
	stop    chan struct{}
	once    sync.Once

	mu    sync.RWMutex
	state State
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.OnFailure == "" {
		cfg.OnFailure = FailureDrop
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Pipeline{
		cfg:   cfg,
		stop:  make(chan struct{}),
		state: StateIdle,
	}
}

// Run executes the relay loop until the context is cancelled, Stop is
// called, or connectivity is lost. Shutdown is observed only at cycle
// boundaries so a drain in progress always finishes its commit.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already running")
	}
	defer p.running.Store(false)

	p.cfg.Log.Info("relay pipeline started",
		"poll_interval", p.cfg.PollInterval, "on_failure", string(p.cfg.OnFailure))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.stop:
			return nil
		default:
		}

		if !p.cfg.Probe.IsConnected() {
			p.setState(StateDegraded)
			p.cfg.Log.Error("connection lost, terminating relay loop")
			return ErrConnectionLost
		}

		if err := p.cycle(ctx); err != nil {
			p.setState(StateDegraded)
			metrics.DegradedTransitions.Inc()
			backoff := 2 * p.cfg.PollInterval
			p.cfg.Log.Error("relay cycle failed, backing off",
				"error", err, "backoff", backoff)
			if !p.sleep(ctx, backoff) {
				return nil
			}
			continue
		}

		p.setState(StateIdle)
		if !p.sleep(ctx, p.cfg.PollInterval) {
			return nil
		}
	}
}

// Stop requests a graceful stop at the next cycle boundary.
func (p *Pipeline) Stop() error {
	p.once.Do(func() { close(p.stop) })
	return nil
}

// State returns the pipeline's current state.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// sleep waits for d, returning false when shutdown was requested instead.
func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-p.stop:
		return false
	case <-timer.C:
		return true
	}
}

// cycle runs one poll and drains whatever it returned. Per-event errors
// are contained here; only fetch and persistence failures bubble up.
func (p *Pipeline) cycle(ctx context.Context) error {
	p.setState(StatePolling)
	metrics.PollCycles.Inc()

	events, err := p.cfg.Source.PollNewEvents(ctx)
	if err != nil {
		return fmt.Errorf("poll events: %w", err)
	}
	if len(events) == 0 {
		p.cfg.Log.Debug("no new events")
		return nil
	}

	p.cfg.Log.Info("draining event batch", "count", len(events))
	p.setState(StateDraining)

	for _, raw := range events {
		if err := p.processEvent(ctx, raw); err != nil {
			return err
		}
	}

	if n, err := p.cfg.Store.Count(ctx); err == nil {
		metrics.ProcessedRecords.Set(float64(n))
	}
	return nil
}

// processEvent handles one raw event: validate, dedupe, execute, commit.
// Returns an error only for persistence-level failures; anything
// per-event is logged and skipped.
func (p *Pipeline) processEvent(ctx context.Context, raw *domain.RawEvent) error {
	key := raw.Key()
	metrics.EventsObserved.Inc()

	ev, err := validator.Validate(raw)
	if err != nil {
		metrics.EventsSkipped.WithLabelValues("invalid").Inc()
		p.cfg.Log.Error("invalid event, skipping", "event", key.String(), "reason", err)
		return nil
	}

	done, err := p.cfg.Store.HasProcessed(ctx, key)
	if err != nil {
		return fmt.Errorf("dedupe lookup %s: %w", key, err)
	}
	if done {
		metrics.EventsSkipped.WithLabelValues("duplicate").Inc()
		p.cfg.Log.Warn("event already processed, skipping", "event", key.String())
		return nil
	}

	if err := p.execute(ctx, ev); err != nil {
		metrics.ExecuteFailures.Inc()
		p.handleExecuteFailure(ctx, ev, err)
		return nil
	}

	// Commit strictly after executor success. A crash between the two
	// leaves the event uncommitted so a re-delivery retries it.
	rec := domain.NewProcessedRecord(raw)
	if err := p.cfg.Store.MarkProcessed(ctx, key, rec); err != nil {
		if errors.Is(err, storage.ErrAlreadyProcessed) {
			p.cfg.Log.Warn("event was committed concurrently", "event", key.String())
			return nil
		}
		return fmt.Errorf("commit %s: %w", key, err)
	}

	metrics.EventsRelayed.Inc()
	p.cfg.Log.Info("event relayed", "event", key.String(),
		"amount", raw.Amount.String(), "destination_chain_id", raw.DestinationChainID)
	return nil
}

// execute runs the relay action, re-attempting in process only under the
// retry policy.
func (p *Pipeline) execute(ctx context.Context, ev domain.ValidatedEvent) error {
	attempts := 1
	if p.cfg.OnFailure == FailureRetry {
		attempts += p.cfg.MaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		err := p.cfg.Executor.Execute(ctx, ev)
		metrics.ExecuteLatency.Observe(time.Since(start).Seconds())
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < attempts {
			p.cfg.Log.Warn("relay execution failed, retrying",
				"event", ev.Key().String(), "attempt", attempt, "error", err)
		}
	}
	return lastErr
}

func (p *Pipeline) handleExecuteFailure(ctx context.Context, ev domain.ValidatedEvent, cause error) {
	key := ev.Key().String()

	if p.cfg.OnFailure == FailureDeadLetter && p.cfg.DeadLetter != nil {
		if err := p.cfg.DeadLetter.PushDeadLetter(ctx, ev, cause); err != nil {
			p.cfg.Log.Error("failed to park event on dead-letter queue",
				"event", key, "error", err)
		} else {
			p.cfg.Log.Error("relay execution failed, event parked on dead-letter queue",
				"event", key, "error", cause)
		}
		return
	}

	p.cfg.Log.Error("relay execution failed, event not committed",
		"event", key, "policy", string(p.cfg.OnFailure), "error", cause)
}

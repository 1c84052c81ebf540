// Package dispatch drains the job queue into the solver, one job at a time.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gsd.app/relay/common/logger"
	"gsd.app/relay/internal/model"
	"gsd.app/relay/internal/queue"
	"gsd.app/relay/internal/robot"
	"gsd.app/relay/internal/solver"
	"gsd.app/relay/internal/status"
	"gsd.app/relay/internal/store"
)

type Config struct {
	Interval      time.Duration
	SolverTimeout time.Duration // 0 disables the timeout

	// MaxAttempts is the number of solver runs a job gets before it is
	// dead-lettered. 1 consumes a job on its first failure.
	MaxAttempts int

	// SendNullPayload invokes the solver with model.NullPayload on empty ticks.
	SendNullPayload bool
}

func DefaultConfig() Config {
	return Config{
		Interval:        10 * time.Second,
		SolverTimeout:   60 * time.Second,
		MaxAttempts:     1,
		SendNullPayload: true,
	}
}

type Deps struct {
	Queue      queue.Queue
	DeadLetter queue.Queue // optional
	Solver     solver.Solver
	Channel    robot.Channel // nil behaves like robot.Disconnected
	State      store.RobotStateStore
	Status     status.Publisher // optional
	Logger     *slog.Logger
}

type Stats struct {
	Ticks          int64      `json:"ticks"`
	Skipped        int64      `json:"skipped"`
	Dispatched     int64      `json:"dispatched"`
	Heartbeats     int64      `json:"heartbeats"`
	Failures       int64      `json:"failures"`
	Busy           bool       `json:"busy"`
	LastDispatchAt *time.Time `json:"last_dispatch_at,omitempty"`
}

// Dispatcher owns the dispatch lock: a one-slot semaphore held from the
// moment a tick claims it until the solver round-trip and its follow-up work
// have finished.
type Dispatcher struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	lock chan struct{}
	wg   sync.WaitGroup

	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once
	running   atomic.Bool

	// mu orders Tick's wg.Add against shutdown's wg.Wait.
	mu       sync.Mutex
	stopping bool

	ticks, skipped, dispatched, heartbeats, failures atomic.Int64
	lastDispatch                                     atomic.Pointer[time.Time]
}

func New(deps Deps, cfg Config) (*Dispatcher, error) {
	if deps.Queue == nil {
		return nil, errors.New("dispatch: queue is required")
	}
	if deps.Solver == nil {
		return nil, errors.New("dispatch: solver is required")
	}
	if deps.State == nil {
		return nil, errors.New("dispatch: robot state store is required")
	}
	if deps.Channel == nil {
		deps.Channel = robot.NewDisconnected("", nil)
	}
	if deps.Status == nil {
		deps.Status = status.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.SolverTimeout < 0 {
		cfg.SolverTimeout = 0
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	return &Dispatcher{
		deps:      deps,
		cfg:       cfg,
		logger:    deps.Logger,
		lock:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}, nil
}

// Run ticks every Config.Interval until ctx is done or Stop is called, then
// waits for the in-flight invocation to finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("dispatch: already running")
	}
	defer close(d.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "relay.dispatch"})
	d.logger.InfoContext(ctx, "dispatcher started",
		"interval", d.cfg.Interval.String(),
		"solver_timeout", d.cfg.SolverTimeout.String(),
		"max_attempts", d.cfg.MaxAttempts)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.InfoContext(ctx, "dispatcher stopping", "reason", "context done")
			d.shutdown()
			return nil
		case <-d.stopCh:
			d.logger.InfoContext(ctx, "dispatcher stopping")
			d.shutdown()
			return nil
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Stop ends Run and blocks until the in-flight invocation completes. Ticks
// after Stop are refused.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	if d.running.Load() {
		<-d.stoppedCh
	} else {
		d.shutdown()
	}
}

// shutdown refuses further ticks, then waits for the in-flight invocation.
func (d *Dispatcher) shutdown() {
	d.mu.Lock()
	d.stopping = true
	d.mu.Unlock()
	d.wg.Wait()
}

// Wait blocks until no invocation is in flight.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) Busy() bool {
	return len(d.lock) == 1
}

func (d *Dispatcher) Stats() Stats {
	s := Stats{
		Ticks:      d.ticks.Load(),
		Skipped:    d.skipped.Load(),
		Dispatched: d.dispatched.Load(),
		Heartbeats: d.heartbeats.Load(),
		Failures:   d.failures.Load(),
		Busy:       d.Busy(),
	}
	if t := d.lastDispatch.Load(); t != nil {
		ts := *t
		s.LastDispatchAt = &ts
	}
	return s
}

// Tick runs one scheduling step and reports whether an invocation was started.
// It never blocks on the solver: a held lock makes it return false without
// touching the queue. Safe to call alongside Run; once the dispatcher is
// shutting down it returns false.
func (d *Dispatcher) Tick(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopping {
		return false
	}

	d.ticks.Add(1)
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "relay.dispatch"})

	select {
	case d.lock <- struct{}{}:
	default:
		d.skipped.Add(1)
		d.logger.InfoContext(ctx, "dispatcher busy, skipping tick")
		return false
	}

	entry, ok, err := d.deps.Queue.DequeueOne(ctx)
	if err != nil {
		<-d.lock
		d.logger.ErrorContext(ctx, "dequeue failed", "error", err)
		d.deps.Status.Publish(ctx, status.Event{Source: "dispatch", Level: status.LevelError, Step: "dequeue", Message: err.Error()})
		return false
	}

	if !ok && !d.cfg.SendNullPayload {
		<-d.lock
		return false
	}

	d.wg.Add(1)
	go d.invoke(context.WithoutCancel(ctx), entry, ok)
	return true
}

// invoke owns the lock it was started with and releases it on every path.
func (d *Dispatcher) invoke(ctx context.Context, entry queue.Entry, hasJob bool) {
	defer d.wg.Done()
	defer func() { <-d.lock }()
	defer func() {
		if r := recover(); r != nil {
			d.failures.Add(1)
			d.logger.ErrorContext(ctx, "panic recovered in dispatch", "panic", r)
		}
	}()

	if !hasJob {
		d.heartbeat(ctx)
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		JobID:   logger.Ptr(entry.ID),
		JobKind: logger.Ptr(string(entry.Job.Kind())),
		Attempt: logger.Ptr(entry.Attempt),
	})

	sc := logger.StartSpan(ctx, "dispatch.job",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int64("job.id", entry.ID),
			attribute.String("job.kind", string(entry.Job.Kind())),
			attribute.Int("job.attempt", entry.Attempt),
		))
	defer sc.End()
	ctx = sc.Context()

	payload, err := model.EncodeJob(entry.Job)
	if err != nil {
		// An unencodable job will never succeed; skip the retry budget.
		sc.RecordError(err)
		d.deadLetter(ctx, entry, err)
		return
	}

	d.logger.InfoContext(ctx, "dispatching job", "payload", string(payload))

	out, err := d.solve(ctx, payload)
	if err != nil {
		sc.RecordError(err)
		d.handleFailure(ctx, entry, err)
		return
	}

	d.complete(ctx, entry, out)
}

func (d *Dispatcher) solve(ctx context.Context, payload []byte) ([]byte, error) {
	if d.cfg.SolverTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.SolverTimeout)
		defer cancel()
	}
	return d.deps.Solver.Solve(ctx, payload)
}

func (d *Dispatcher) heartbeat(ctx context.Context) {
	d.heartbeats.Add(1)

	out, err := d.solve(ctx, model.NullPayload)
	if err != nil {
		d.failures.Add(1)
		d.logger.WarnContext(ctx, "solver heartbeat failed", "error", err)
		return
	}
	d.logger.DebugContext(ctx, "solver heartbeat ok", "output_bytes", len(out))
}

// complete forwards the solver output and records the move. Neither step is
// retried; the job is acked regardless.
func (d *Dispatcher) complete(ctx context.Context, entry queue.Entry, out []byte) {
	d.dispatched.Add(1)
	now := time.Now().UTC()
	d.lastDispatch.Store(&now)

	if len(out) == 0 {
		d.logger.WarnContext(ctx, "solver returned no output, nothing sent to robot")
	} else if n, err := d.deps.Channel.Send(ctx, out); err != nil {
		d.logger.ErrorContext(ctx, "robot send failed",
			"error", err,
			"bytes_sent", n,
			"bytes_total", len(out))
		d.deps.Status.Publish(ctx, status.Event{
			Source: "dispatch", Level: status.LevelError, Step: "send", Message: err.Error(),
			Fields: map[string]any{"job_id": entry.ID},
		})
	} else {
		d.logger.InfoContext(ctx, "instructions sent to robot",
			"bytes", n,
			"instructions", logger.Truncate(string(out), 256))
	}

	if mv, ok := entry.Job.(model.Move); ok {
		state, err := d.deps.State.MoveTo(ctx, mv.To)
		if err != nil {
			d.logger.ErrorContext(ctx, "robot state update failed", "error", err)
		} else {
			d.logger.InfoContext(ctx, "robot state updated", "x", state.X, "y", state.Y)
		}
	}

	d.ack(ctx, entry)

	d.deps.Status.Publish(ctx, status.Event{
		Source: "dispatch", Level: status.LevelInfo, Step: "dispatched",
		Message: fmt.Sprintf("%s dispatched", entry.Job.Kind()),
		Fields:  map[string]any{"job_id": entry.ID, "job_kind": string(entry.Job.Kind())},
	})
}

// handleFailure applies the retry policy: requeue at the tail while attempts
// remain, dead-letter afterwards. The claim is only acked once the entry is
// safely stored elsewhere, so a failed requeue leaves it for Recover.
func (d *Dispatcher) handleFailure(ctx context.Context, entry queue.Entry, cause error) {
	d.failures.Add(1)

	var invErr *solver.SolverInvocationError
	if errors.As(cause, &invErr) {
		d.logger.ErrorContext(ctx, "solver invocation failed",
			"error", cause,
			"exit_code", invErr.ExitCode,
			"timeout", invErr.Timeout,
			"stderr", logger.Truncate(invErr.Stderr, 512))
	} else {
		d.logger.ErrorContext(ctx, "solver invocation failed", "error", cause)
	}

	d.deps.Status.Publish(ctx, status.Event{
		Source: "dispatch", Level: status.LevelError, Step: "solve", Message: cause.Error(),
		Fields: map[string]any{"job_id": entry.ID, "attempt": entry.Attempt},
	})

	nextAttempt := entry.Attempt + 1
	if nextAttempt >= d.cfg.MaxAttempts {
		d.deadLetter(ctx, entry, cause)
		return
	}

	retry := entry
	retry.Attempt = nextAttempt
	retry.LastError = logger.Truncate(cause.Error(), 1024)
	if err := d.deps.Queue.Requeue(ctx, retry); err != nil {
		d.logger.ErrorContext(ctx, "requeue failed, leaving job claimed for recovery", "error", err)
		return
	}

	d.logger.InfoContext(ctx, "job requeued for retry",
		"next_attempt", nextAttempt,
		"max_attempts", d.cfg.MaxAttempts)
	d.ack(ctx, entry)
}

func (d *Dispatcher) deadLetter(ctx context.Context, entry queue.Entry, cause error) {
	if d.deps.DeadLetter == nil {
		d.logger.ErrorContext(ctx, "job dropped after final failure", "error", cause)
		d.ack(ctx, entry)
		return
	}

	dead := entry
	dead.LastError = logger.Truncate(cause.Error(), 1024)
	if err := d.deps.DeadLetter.Requeue(ctx, dead); err != nil {
		d.logger.ErrorContext(ctx, "dead-letter write failed, job dropped", "error", err, "cause", cause)
	} else {
		d.logger.ErrorContext(ctx, "job sent to dead-letter queue", "final_error", cause)
	}
	d.ack(ctx, entry)
}

func (d *Dispatcher) ack(ctx context.Context, entry queue.Entry) {
	if err := d.deps.Queue.Ack(ctx, entry.ID); err != nil {
		d.logger.ErrorContext(ctx, "ack failed", "error", err)
	}
}

// Package syncer drains the offline action queue against the server's clock
// actions, classifying every outcome so nothing is lost silently.
package syncer

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"example.com/shiftsync/internal/domain"
	"example.com/shiftsync/internal/health"
	"example.com/shiftsync/internal/queue"
)

// ActionInvoker abstracts the server's clock actions for the engine. The
// HTTP Client implements it; tests use stubs.
type ActionInvoker interface {
	ClockIn(ctx context.Context, clientTimestamp string) error
	ClockOut(ctx context.Context, clientTimestamp string) error
}

// Report summarises one drain pass.
type Report struct {
	Synced   int
	Failed   int // terminal failures: rejections and exhausted retries
	Expired  int
	Halted   bool // a network failure stopped the pass early
	Messages []string
}

// Option configures the Engine.
type Option func(*Engine)

// WithExpiry overrides the 2h expiry window.
func WithExpiry(d time.Duration) Option {
	return func(e *Engine) { e.expiry = d }
}

// WithRetryCap overrides the retry cap of 3.
func WithRetryCap(cap int) Option {
	return func(e *Engine) { e.retryCap = cap }
}

// WithPollInterval overrides the 10s drain poll.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.pollInterval = d }
}

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// OnReport registers a callback receiving each non-empty pass report. The
// agent surfaces it as a banner.
func OnReport(fn func(Report)) Option {
	return func(e *Engine) { e.onReport = fn }
}

// OnSynced registers a callback fired after a fully clean pass that synced
// at least one action, used to refresh authoritative server state.
func OnSynced(fn func(context.Context)) Option {
	return func(e *Engine) { e.onSynced = fn }
}

// Engine drains the queue FIFO. At most one pass runs at a time no matter
// how many triggers fire; overlapping calls return immediately.
type Engine struct {
	store   *queue.Mirrored
	actions ActionInvoker

	expiry       time.Duration
	retryCap     int
	pollInterval time.Duration
	logger       *log.Logger
	onReport     func(Report)
	onSynced     func(context.Context)

	syncing atomic.Bool
	pending atomic.Int64

	wake chan struct{}
}

// NewEngine constructs an Engine over the mirrored queue.
func NewEngine(store *queue.Mirrored, actions ActionInvoker, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		actions:      actions,
		expiry:       2 * time.Hour,
		retryCap:     3,
		pollInterval: 10 * time.Second,
		logger:       log.Default(),
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.refreshPending()
	return e
}

// Pending reports the number of queued actions as of the last refresh.
func (e *Engine) Pending() int {
	return int(e.pending.Load())
}

// IsSyncing reports whether a drain pass is in flight.
func (e *Engine) IsSyncing() bool {
	return e.syncing.Load()
}

// Trigger requests a drain pass outside the regular schedule (manual retry,
// resume from background). Coalesces if one is already requested.
func (e *Engine) Trigger() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// SyncQueue performs one drain pass. Entries are attempted oldest first; a
// network failure halts the remainder of the pass so a clock-out is never
// attempted ahead of its still-failing clock-in.
func (e *Engine) SyncQueue(ctx context.Context) Report {
	if !e.syncing.CompareAndSwap(false, true) {
		return Report{}
	}
	defer func() {
		e.syncing.Store(false)
		e.refreshPending()
	}()

	var report Report
	start := time.Now()
	defer func() {
		passDuration.Observe(time.Since(start).Seconds())
		if e.onReport != nil && (report.Synced > 0 || report.Failed > 0 || report.Expired > 0) {
			e.onReport(report)
		}
	}()

	e.expireStale(&report)

	actions, err := e.store.ListAll()
	if err != nil {
		e.logger.Printf("syncer: reading queue: %v", err)
		return report
	}

	for _, action := range actions {
		if action.RetryCount >= e.retryCap {
			e.remove(action.ID)
			report.Failed++
			failedCounter.WithLabelValues(string(action.Type)).Inc()
			report.Messages = append(report.Messages,
				fmt.Sprintf("giving up on %s after %d failed attempts", action.Type, action.RetryCount))
			continue
		}

		err := e.invoke(ctx, action)
		switch {
		case err == nil:
			e.remove(action.ID)
			report.Synced++
			syncedCounter.WithLabelValues(string(action.Type)).Inc()
		case domain.IsRejection(err):
			// The precondition failed, not the connection; retrying
			// cannot help.
			e.remove(action.ID)
			report.Failed++
			rejectedCounter.WithLabelValues(string(action.Type)).Inc()
			report.Messages = append(report.Messages, err.Error())
		default:
			if retryErr := e.store.IncrementRetry(action.ID); retryErr != nil {
				e.logger.Printf("syncer: increment retry for %s: %v", action.ID, retryErr)
			}
			report.Halted = true
			e.logger.Printf("syncer: %s failed (%v), halting pass to preserve ordering", action.Type, err)
		}
		if report.Halted {
			break
		}
	}

	if report.Synced > 0 && report.Failed == 0 && !report.Halted && e.onSynced != nil {
		e.onSynced(ctx)
	}
	return report
}

// Run drives automatic drains until ctx is cancelled: a fixed poll while the
// queue is non-empty, reachability transitions, and Trigger calls. Manual
// "sync now" goes through the same SyncQueue path.
func (e *Engine) Run(ctx context.Context, monitor *health.Monitor) {
	transitions, cancel := monitor.Subscribe()
	defer cancel()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot := <-transitions:
			if snapshot.IsReachable {
				e.SyncQueue(ctx)
			}
		case <-ticker.C:
			if monitor.Snapshot().IsReachable && e.store.PendingCount() > 0 {
				e.SyncQueue(ctx)
			}
		case <-e.wake:
			if monitor.Snapshot().IsOnline {
				e.SyncQueue(ctx)
			}
		}
	}
}

// expireStale removes entries older than the expiry window without touching
// the network. Expiry is reported, never silent: the action is permanently
// lost and the trainer needs to know.
func (e *Engine) expireStale(report *Report) {
	actions, err := e.store.ListAll()
	if err != nil {
		e.logger.Printf("syncer: reading queue for expiry: %v", err)
		return
	}

	cutoff := time.Now().Add(-e.expiry).UnixMilli()
	for _, action := range actions {
		if action.QueuedAt > cutoff {
			continue
		}
		e.remove(action.ID)
		report.Expired++
		expiredCounter.WithLabelValues(string(action.Type)).Inc()
		report.Messages = append(report.Messages,
			fmt.Sprintf("%s from %s expired before it could be synced", action.Type, action.ClientTimestamp))
	}
}

func (e *Engine) invoke(ctx context.Context, action queue.QueuedAction) error {
	switch action.Type {
	case queue.ActionClockIn:
		return e.actions.ClockIn(ctx, action.ClientTimestamp)
	case queue.ActionClockOut:
		return e.actions.ClockOut(ctx, action.ClientTimestamp)
	default:
		// Unknown entries cannot ever succeed; treat like a rejection.
		return domain.Reject(fmt.Sprintf("unknown queued action type %q", action.Type))
	}
}

func (e *Engine) remove(id string) {
	if err := e.store.Dequeue(id); err != nil {
		e.logger.Printf("syncer: dequeue %s: %v", id, err)
	}
}

func (e *Engine) refreshPending() {
	e.pending.Store(int64(e.store.PendingCount()))
}

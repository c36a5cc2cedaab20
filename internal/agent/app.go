// Package agent wires the offline queue, connection monitor, and sync engine
// into the trainer-facing client process.
package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"example.com/shiftsync/internal/beacon"
	"example.com/shiftsync/internal/domain"
	"example.com/shiftsync/internal/health"
	"example.com/shiftsync/internal/queue"
	"example.com/shiftsync/internal/syncer"
)

// Status is the agent's view of its own state, projected for display.
type Status struct {
	State       string
	Pending     int
	Syncing     bool
	Online      bool
	Reachable   bool
	ActiveShift *syncer.Shift
}

// App owns the agent's moving parts and exposes the trainer operations.
type App struct {
	cfg     *Config
	store   *queue.Mirrored
	sqlite  *queue.SQLiteStore
	monitor *health.Monitor
	client  *syncer.Client
	engine  *syncer.Engine
	flusher *beacon.Sender
	logger  *log.Logger

	mu        sync.Mutex
	active    *syncer.Shift
	suspended bool
}

// NewApp assembles the agent from config. The durable mirror lives next to
// the config file; the in-memory primary is authoritative for display.
func NewApp(cfg *Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}

	queuePath, err := cfg.QueuePath()
	if err != nil {
		return nil, err
	}
	sqlite, err := queue.OpenSQLite(queuePath)
	if err != nil {
		return nil, fmt.Errorf("opening durable queue: %w", err)
	}

	store := queue.NewMirrored(queue.NewMemoryStore(), sqlite, logger)
	client := syncer.NewClient(cfg.Server.BaseURL, cfg.Server.Token)
	monitor := health.NewMonitor(cfg.Server.BaseURL+"/healthz",
		health.WithInterval(time.Duration(cfg.Sync.ProbeIntervalSeconds)*time.Second),
		health.WithLogger(logger),
	)

	app := &App{
		cfg:     cfg,
		store:   store,
		sqlite:  sqlite,
		monitor: monitor,
		client:  client,
		flusher: beacon.NewSender(cfg.Server.BaseURL, cfg.Server.Token, logger),
		logger:  logger,
	}

	app.engine = syncer.NewEngine(store, client,
		syncer.WithRetryCap(cfg.Sync.RetryCap),
		syncer.WithExpiry(time.Duration(cfg.Sync.ExpiryMinutes)*time.Minute),
		syncer.WithPollInterval(time.Duration(cfg.Sync.PollIntervalSeconds)*time.Second),
		syncer.WithLogger(logger),
		syncer.OnReport(app.reportSync),
		syncer.OnSynced(app.refreshActiveShift),
	)

	// Recover anything a previous process left only in the durable mirror.
	if restored, err := store.Repopulate(); err != nil {
		logger.Printf("agent: restoring durable queue: %v", err)
	} else if restored > 0 {
		logger.Printf("agent: restored %d pending action(s) from durable queue", restored)
	}
	return app, nil
}

// Run starts the connection monitor and sync loop.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.monitor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.engine.Run(ctx, a.monitor)
	}()
	a.refreshActiveShift(ctx)
	a.engine.Trigger()

	wg.Wait()
	return a.Close()
}

// Close releases the durable queue.
func (a *App) Close() error {
	return a.sqlite.Close()
}

// ClockIn records the trainer starting a shift. When the server is reachable
// the action goes straight through; otherwise it is queued with the moment of
// intent preserved.
func (a *App) ClockIn(ctx context.Context) error {
	return a.perform(ctx, queue.ActionClockIn, a.client.ClockIn)
}

// ClockOut records the trainer ending a shift.
func (a *App) ClockOut(ctx context.Context) error {
	return a.perform(ctx, queue.ActionClockOut, a.client.ClockOut)
}

func (a *App) perform(ctx context.Context, actionType queue.ActionType, direct func(context.Context, string) error) error {
	now := time.Now().UTC()
	stamp := now.Format(time.RFC3339)

	// Anything already queued must land first or ordering breaks, so a
	// non-empty queue always appends.
	if a.store.PendingCount() == 0 && a.monitor.Snapshot().IsReachable {
		err := direct(ctx, stamp)
		switch {
		case err == nil:
			a.refreshActiveShift(ctx)
			return nil
		case domain.IsRejection(err):
			return err
		default:
			a.logger.Printf("agent: %s failed (%v), queueing for retry", actionType, err)
		}
	}

	if _, err := a.store.Enqueue(actionType, now); err != nil {
		return fmt.Errorf("queueing %s: %w", actionType, err)
	}
	a.engine.Trigger()
	return nil
}

// SyncNow forces an immediate drain pass and returns its report.
func (a *App) SyncNow(ctx context.Context) syncer.Report {
	return a.engine.SyncQueue(ctx)
}

// Suspend flushes the queue over the beacon path before the process loses
// its chance to run. The durable mirror is kept so nothing is lost if the
// flush never arrived.
func (a *App) Suspend() {
	a.mu.Lock()
	if a.suspended {
		a.mu.Unlock()
		return
	}
	a.suspended = true
	a.mu.Unlock()

	pending, err := a.store.ListAll()
	if err != nil {
		a.logger.Printf("agent: reading queue for suspend flush: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	if a.flusher.Flush(pending) {
		if err := a.store.ClearPrimary(); err != nil {
			a.logger.Printf("agent: clearing primary after flush: %v", err)
		}
		a.logger.Printf("agent: flushed %d pending action(s) on suspend", len(pending))
	} else {
		a.logger.Printf("agent: suspend flush not accepted, keeping %d action(s) queued", len(pending))
	}
}

// Resume restores any mirror-only entries and kicks a sync pass. Entries the
// beacon flush actually delivered will come back as rejections and drop out
// of the queue on that pass.
func (a *App) Resume(ctx context.Context) {
	a.mu.Lock()
	a.suspended = false
	a.mu.Unlock()

	restored, err := a.store.Repopulate()
	if err != nil {
		a.logger.Printf("agent: repopulating queue on resume: %v", err)
	} else if restored > 0 {
		a.logger.Printf("agent: restored %d action(s) on resume", restored)
	}
	a.engine.Trigger()
}

// Status projects the agent state for display.
func (a *App) Status() Status {
	snapshot := a.monitor.Snapshot()
	pending := a.store.PendingCount()
	syncing := a.engine.IsSyncing()

	state := "synced"
	switch {
	case !snapshot.IsOnline && pending > 0:
		state = "offline-pending"
	case syncing:
		state = "syncing"
	case pending > 0:
		state = "pending"
	}

	a.mu.Lock()
	active := a.active
	a.mu.Unlock()

	return Status{
		State:       state,
		Pending:     pending,
		Syncing:     syncing,
		Online:      snapshot.IsOnline,
		Reachable:   snapshot.IsReachable,
		ActiveShift: active,
	}
}

// SetOnline feeds an external connectivity signal to the monitor.
func (a *App) SetOnline(online bool) {
	a.monitor.SetOnline(online)
}

// CheckConnection probes the server once, synchronously. One-shot commands
// call it before acting since the background loop is not running for them.
func (a *App) CheckConnection(ctx context.Context) bool {
	return a.monitor.CheckNow(ctx).IsReachable
}

func (a *App) reportSync(report syncer.Report) {
	for _, msg := range report.Messages {
		a.logger.Printf("agent: sync: %s", msg)
	}
	if report.Synced > 0 {
		a.logger.Printf("agent: sync: %d action(s) delivered", report.Synced)
	}
}

// refreshActiveShift re-reads authoritative server state after a clean sync,
// also picking up any auto-ended shift.
func (a *App) refreshActiveShift(ctx context.Context) {
	if _, shift, err := a.client.CheckAutoEnd(ctx); err == nil {
		a.setActive(shift)
		return
	}
	shift, err := a.client.ActiveShift(ctx)
	if err != nil {
		a.logger.Printf("agent: refreshing active shift: %v", err)
		return
	}
	a.setActive(shift)
}

func (a *App) setActive(shift *syncer.Shift) {
	a.mu.Lock()
	a.active = shift
	a.mu.Unlock()
}

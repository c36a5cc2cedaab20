package queue

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Mirrored applies every mutation to the primary store and, best-effort, to
// the durable mirror. The primary is authoritative for what the agent shows;
// mirror failures are logged and swallowed because losing the mirror only
// costs crash recovery, not correctness.
type Mirrored struct {
	primary  Store
	mirror   Store
	notifier *Notifier
	logger   *log.Logger
}

// NewMirrored constructs the mirrored facade. mirror may be nil in tests.
func NewMirrored(primary, mirror Store, logger *log.Logger) *Mirrored {
	if logger == nil {
		logger = log.Default()
	}
	return &Mirrored{
		primary:  primary,
		mirror:   mirror,
		notifier: NewNotifier(),
		logger:   logger,
	}
}

// Subscribe returns a channel signalled after every mutation.
func (m *Mirrored) Subscribe() (<-chan struct{}, func()) {
	return m.notifier.Subscribe()
}

// Enqueue captures a new clock intent and persists it to both stores.
func (m *Mirrored) Enqueue(actionType ActionType, clientTimestamp time.Time) (QueuedAction, error) {
	action := QueuedAction{
		ID:              uuid.NewString(),
		Type:            actionType,
		ClientTimestamp: clientTimestamp.UTC().Format(time.RFC3339),
		QueuedAt:        time.Now().UnixMilli(),
	}

	if err := m.primary.Enqueue(action); err != nil {
		return QueuedAction{}, fmt.Errorf("enqueueing %s: %w", actionType, err)
	}
	m.mirrorDo("enqueue", func(s Store) error { return s.Enqueue(action) })
	m.notifier.Broadcast()
	return action, nil
}

// Dequeue removes the action from both stores.
func (m *Mirrored) Dequeue(id string) error {
	if err := m.primary.Dequeue(id); err != nil {
		return err
	}
	m.mirrorDo("dequeue", func(s Store) error { return s.Dequeue(id) })
	m.notifier.Broadcast()
	return nil
}

// Acknowledge removes entries confirmed delivered by an out-of-band path
// (the background flush), identified by id.
func (m *Mirrored) Acknowledge(ids ...string) {
	for _, id := range ids {
		if err := m.Dequeue(id); err != nil {
			m.logger.Printf("queue: acknowledge %s: %v", id, err)
		}
	}
}

// ListAll returns the primary queue ordered by enqueue time.
func (m *Mirrored) ListAll() ([]QueuedAction, error) {
	actions, err := m.primary.ListAll()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].QueuedAt < actions[j].QueuedAt
	})
	return actions, nil
}

// IncrementRetry bumps the retry count in both stores.
func (m *Mirrored) IncrementRetry(id string) error {
	if err := m.primary.IncrementRetry(id); err != nil {
		return err
	}
	m.mirrorDo("increment retry", func(s Store) error { return s.IncrementRetry(id) })
	m.notifier.Broadcast()
	return nil
}

// Clear drops everything from both stores.
func (m *Mirrored) Clear() error {
	if err := m.primary.Clear(); err != nil {
		return err
	}
	m.mirrorDo("clear", func(s Store) error { return s.Clear() })
	m.notifier.Broadcast()
	return nil
}

// ClearPrimary empties only the primary store. The teardown flush calls this
// after the beacon accepted the batch: it stops the foreground engine from
// re-sending, while the mirror keeps the entries until delivery is confirmed
// out-of-band or Repopulate restores them.
func (m *Mirrored) ClearPrimary() error {
	if err := m.primary.Clear(); err != nil {
		return err
	}
	m.notifier.Broadcast()
	return nil
}

// Repopulate restores entries that exist in the durable mirror but not in
// the primary store, exactly once per id. It covers the gap where the
// primary was cleared by the teardown flush but the flushed batch was never
// confirmed. Returns the number of restored entries.
func (m *Mirrored) Repopulate() (int, error) {
	if m.mirror == nil {
		return 0, nil
	}

	mirrored, err := m.mirror.ListAll()
	if err != nil {
		return 0, fmt.Errorf("reading mirror: %w", err)
	}
	current, err := m.primary.ListAll()
	if err != nil {
		return 0, err
	}

	present := make(map[string]struct{}, len(current))
	for _, action := range current {
		present[action.ID] = struct{}{}
	}

	restored := 0
	for _, action := range mirrored {
		if _, ok := present[action.ID]; ok {
			continue
		}
		if err := m.primary.Enqueue(action); err != nil {
			return restored, err
		}
		restored++
	}

	if restored > 0 {
		m.notifier.Broadcast()
	}
	return restored, nil
}

// PendingCount reports the primary queue length.
func (m *Mirrored) PendingCount() int {
	actions, err := m.primary.ListAll()
	if err != nil {
		m.logger.Printf("queue: pending count: %v", err)
		return 0
	}
	return len(actions)
}

func (m *Mirrored) mirrorDo(op string, fn func(Store) error) {
	if m.mirror == nil {
		return
	}
	if err := fn(m.mirror); err != nil {
		m.logger.Printf("queue: mirror %s failed: %v", op, err)
	}
}

// Package queue implements the durable on-device queue of clock actions
// captured while the server is unreachable.
package queue

// ActionType discriminates the two queued clock intents.
type ActionType string

const (
	ActionClockIn  ActionType = "clock_in"
	ActionClockOut ActionType = "clock_out"
)

// QueuedAction is a pending clock intent. ClientTimestamp is the moment the
// trainer acted and is the authoritative event time; QueuedAt is the device
// clock at enqueue, used only for expiry.
type QueuedAction struct {
	ID              string     `json:"id"`
	Type            ActionType `json:"type"`
	ClientTimestamp string     `json:"client_timestamp"`
	QueuedAt        int64      `json:"queued_at"`
	RetryCount      int        `json:"retry_count"`
}

// Store captures persistence operations for queued actions. ListAll must
// return entries in stable insertion order so the sync engine can process
// FIFO: a clock-in is always attempted before its corresponding clock-out.
type Store interface {
	Enqueue(action QueuedAction) error
	Dequeue(id string) error
	ListAll() ([]QueuedAction, error)
	IncrementRetry(id string) error
	Clear() error
}

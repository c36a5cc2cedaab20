package queue

import "sync"

// MemoryStore is the synchronous primary store. It is immediately consistent
// and is the correctness boundary for everything the agent displays; the
// durable mirror may lag it briefly.
type MemoryStore struct {
	mu      sync.Mutex
	actions []QueuedAction
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Enqueue appends the action, preserving insertion order.
func (s *MemoryStore) Enqueue(action QueuedAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.actions {
		if existing.ID == action.ID {
			return nil
		}
	}
	s.actions = append(s.actions, action)
	return nil
}

// Dequeue removes the action with the given id, if present.
func (s *MemoryStore) Dequeue(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, action := range s.actions {
		if action.ID == id {
			s.actions = append(s.actions[:i], s.actions[i+1:]...)
			return nil
		}
	}
	return nil
}

// ListAll returns a copy of the queue in insertion order.
func (s *MemoryStore) ListAll() ([]QueuedAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]QueuedAction, len(s.actions))
	copy(out, s.actions)
	return out, nil
}

// IncrementRetry bumps the retry count of the action with the given id.
func (s *MemoryStore) IncrementRetry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.actions {
		if s.actions[i].ID == id {
			s.actions[i].RetryCount++
			return nil
		}
	}
	return nil
}

// Clear drops every queued action.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = nil
	return nil
}

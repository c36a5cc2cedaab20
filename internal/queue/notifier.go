package queue

import "sync"

// Notifier fans out change notifications to queue subscribers. Consumers
// re-read ListAll on a tick instead of polling; a slow consumer coalesces
// notifications rather than blocking mutations.
type Notifier struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// NewNotifier constructs a Notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[chan struct{}]struct{})}
}

// Subscribe returns a channel that receives a signal after every queue
// mutation, and a cancel func that releases the subscription.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		delete(n.subs, ch)
		n.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast signals every subscriber without blocking.
func (n *Notifier) Broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

package events

import "sync"

// subscriberBuffer is the per-subscriber channel depth. Publish never blocks;
// events beyond this depth are dropped for the slow consumer.
const subscriberBuffer = 64

// Bus is a process-wide typed publish/subscribe channel for sync and
// download lifecycle events. It carries no business logic.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBus creates an event bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel function removes
// the subscription and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber. Non-blocking: events are
// dropped for subscribers whose buffer is full.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Count returns the current number of subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

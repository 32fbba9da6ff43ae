package identity

import (
	"sync"
)

const subscriberBuffer = 16

// Broadcaster fans session events out to subscribers. Publish never blocks: a
// subscriber that falls a full buffer behind misses events.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan SessionEvent
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: map[int]chan SessionEvent{}}
}

func (b *Broadcaster) Subscribe() (<-chan SessionEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan SessionEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish reports how many subscribers received evt.
func (b *Broadcaster) Publish(evt SessionEvent) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- evt:
			delivered++
		default:
		}
	}
	return delivered
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

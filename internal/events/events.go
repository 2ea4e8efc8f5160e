package events

import (
	"sync"

	"github.com/dgellow/resource-desk/internal/log"
)

// SessionExpired is emitted once each time a local session reaches its expiry
const SessionExpired = "session-expired"

// Handler receives a notification. Notifications carry no payload.
type Handler func(name string)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus delivers named notifications to subscribers. Handlers run on the
// emitting goroutine in subscription order and must not block for long.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers handler for name and returns a function that removes it
func (b *Bus) Subscribe(name string, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(name, id) })
	}
}

func (b *Bus) unsubscribe(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[name]
	for i, s := range subs {
		if s.id == id {
			b.subs[name] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[name]) == 0 {
		delete(b.subs, name)
	}
}

// Emit calls every handler subscribed to name. A panicking handler is
// logged and does not stop delivery to the rest.
func (b *Bus) Emit(name string) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[name]...)
	b.mu.RUnlock()

	log.LogDebugWithFields("events", "Emitting event", map[string]any{
		"event":       name,
		"subscribers": len(subs),
	})

	for _, s := range subs {
		deliver(name, s.handler)
	}
}

func deliver(name string, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			log.LogErrorWithFields("events", "Event handler panicked", map[string]any{
				"event": name,
				"panic": r,
			})
		}
	}()
	handler(name)
}

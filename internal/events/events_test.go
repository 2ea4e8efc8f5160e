package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus()
	var got []string

	bus.Subscribe(SessionExpired, func(name string) { got = append(got, "first:"+name) })
	bus.Subscribe(SessionExpired, func(name string) { got = append(got, "second:"+name) })
	bus.Subscribe("other", func(name string) { got = append(got, "other") })

	bus.Emit(SessionExpired)

	assert.Equal(t, []string{"first:session-expired", "second:session-expired"}, got)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	count := 0

	unsubscribe := bus.Subscribe(SessionExpired, func(string) { count++ })
	bus.Emit(SessionExpired)
	unsubscribe()
	unsubscribe()
	bus.Emit(SessionExpired)

	assert.Equal(t, 1, count)
}

func TestBusUnsubscribeKeepsOthers(t *testing.T) {
	bus := NewBus()
	var got []string

	bus.Subscribe(SessionExpired, func(string) { got = append(got, "a") })
	remove := bus.Subscribe(SessionExpired, func(string) { got = append(got, "b") })
	bus.Subscribe(SessionExpired, func(string) { got = append(got, "c") })
	remove()

	bus.Emit(SessionExpired)
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestBusSurvivesPanickingHandler(t *testing.T) {
	bus := NewBus()
	delivered := false

	bus.Subscribe(SessionExpired, func(string) { panic("boom") })
	bus.Subscribe(SessionExpired, func(string) { delivered = true })

	assert.NotPanics(t, func() { bus.Emit(SessionExpired) })
	assert.True(t, delivered)
}

func TestBusConcurrentUse(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	count := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsubscribe := bus.Subscribe(SessionExpired, func(string) {
				mu.Lock()
				count++
				mu.Unlock()
			})
			defer unsubscribe()
		}()
		go func() {
			defer wg.Done()
			bus.Emit(SessionExpired)
		}()
	}
	wg.Wait()

	// with every subscription removed, nothing is delivered
	mu.Lock()
	before := count
	mu.Unlock()
	bus.Emit(SessionExpired)
	mu.Lock()
	assert.Equal(t, before, count)
	mu.Unlock()
}

package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/dgellow/resource-desk/internal/events"
	jsonwriter "github.com/dgellow/resource-desk/internal/json"
	"github.com/dgellow/resource-desk/internal/log"
	"github.com/dgellow/resource-desk/internal/sse"
)

// DefaultPingInterval keeps idle streams alive through proxies
const DefaultPingInterval = 15 * time.Second

// EventsHandler pushes manager notifications to the UI as server-sent events
type EventsHandler struct {
	bus          *events.Bus
	pingInterval time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewEventsHandler creates a handler streaming the bus's notifications
func NewEventsHandler(bus *events.Bus, pingInterval time.Duration) *EventsHandler {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &EventsHandler{
		bus:          bus,
		pingInterval: pingInterval,
		done:         make(chan struct{}),
	}
}

// Shutdown ends every open stream. http.Server.Shutdown does not wait for
// hijacked or long-lived responses on its own.
func (h *EventsHandler) Shutdown() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ServeHTTP implements http.Handler
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonwriter.WriteInternalServerError(w, "Streaming not supported")
		return
	}

	// a slow reader only needs to learn that something expired, not how often
	notify := make(chan string, 1)
	unsubscribe := h.bus.Subscribe(events.SessionExpired, func(name string) {
		select {
		case notify <- name:
		default:
		}
	})
	defer unsubscribe()

	sse.WriteHeaders(w, flusher)
	if err := sse.WriteComment(w, flusher, "connected"); err != nil {
		return
	}

	log.LogDebugWithFields("events", "Event stream opened", map[string]any{
		"request_id": RequestIDFromContext(r.Context()),
	})

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.LogDebugWithFields("events", "Event stream closed by client", nil)
			return
		case <-h.done:
			return
		case name := <-notify:
			if err := sse.WriteEvent(w, flusher, name, struct{}{}); err != nil {
				log.LogWarnWithFields("events", "Failed to write event", map[string]any{
					"event": name,
					"error": err.Error(),
				})
				return
			}
		case <-ticker.C:
			if err := sse.WriteComment(w, flusher, "ping"); err != nil {
				return
			}
		}
	}
}

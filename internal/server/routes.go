package server

import (
	"net/http"

	"github.com/dgellow/resource-desk/internal/events"
	jsonwriter "github.com/dgellow/resource-desk/internal/json"
)

// RouterConfig holds what the bridge router needs beyond the manager
type RouterConfig struct {
	Token              string
	AllowedOrigins     []string
	LoginRatePerMinute int
	Events             *EventsHandler
}

// NewRouter builds the bridge handler. Everything except /health requires
// the bridge token; login and register are also rate limited.
func NewRouter(manager SessionManager, bus *events.Bus, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	handlers := NewBridgeHandlers(manager)

	eventsHandler := cfg.Events
	if eventsHandler == nil {
		eventsHandler = NewEventsHandler(bus, DefaultPingInterval)
	}

	protected := NewBearerTokenMiddleware(cfg.Token)
	limited := NewRateLimitMiddleware(cfg.LoginRatePerMinute)

	route := func(pattern string, h http.HandlerFunc, middlewares ...MiddlewareFunc) {
		middlewares = append(middlewares, protected)
		mux.Handle(pattern, ChainMiddleware(h, middlewares...))
	}

	mux.Handle("GET /health", NewHealthHandler(manager.Initialized))

	route("POST /api/auth/login", handlers.LoginHandler, limited)
	route("POST /api/auth/register", handlers.RegisterHandler, limited)
	route("POST /api/auth/logout", handlers.LogoutHandler)
	route("GET /api/auth/state", handlers.StateHandler)
	route("GET /api/auth/ttl", handlers.GetTTLHandler)
	route("PUT /api/auth/ttl", handlers.SetTTLHandler)
	route("GET /api/resources", handlers.ResourcesHandler)
	route("POST /api/files/temp-urls", handlers.TempFileURLsHandler)
	route("GET /api/events", eventsHandler.ServeHTTP)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteNotFound(w, "Not found")
	})

	return ChainMiddleware(mux,
		NewCORSMiddleware(cfg.AllowedOrigins),
		NewLoggerMiddleware("bridge"),
		NewRequestIDMiddleware(),
		NewRecoverMiddleware("bridge"),
	)
}

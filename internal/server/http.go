package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	jsonwriter "github.com/dgellow/resource-desk/internal/json"
	"github.com/dgellow/resource-desk/internal/log"
)

// HTTPServer manages the HTTP server lifecycle
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer creates a new HTTP server with the given handler and address.
// No write timeout is set: the event stream stays open for the whole session.
func NewHTTPServer(handler http.Handler, addr string) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// HealthHandler handles health check requests
type HealthHandler struct {
	ready func() bool
}

// NewHealthHandler creates a new health handler. ready reports whether the
// session manager finished initializing; nil means always ready.
func NewHealthHandler(ready func() bool) *HealthHandler {
	return &HealthHandler{ready: ready}
}

// ServeHTTP implements http.Handler for health checks
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	initialized := h.ready == nil || h.ready()
	status := "ok"
	if !initialized {
		status = "starting"
	}
	_ = jsonwriter.Write(w, map[string]any{
		"status":      status,
		"initialized": initialized,
	})
}

// Serve serves on an existing listener, which lets callers bind port 0
func (h *HTTPServer) Serve(l net.Listener) error {
	log.LogInfoWithFields("http", "HTTP server starting", map[string]any{
		"addr": l.Addr().String(),
	})

	if err := h.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	log.LogInfoWithFields("http", "HTTP server stopping", map[string]any{
		"addr": h.server.Addr,
	})

	if err := h.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.LogInfoWithFields("http", "HTTP server stopped", map[string]any{
		"addr": h.server.Addr,
	})
	return nil
}

// RegisterOnShutdown runs f when Stop is called; used to end event streams
func (h *HTTPServer) RegisterOnShutdown(f func()) {
	h.server.RegisterOnShutdown(f)
}

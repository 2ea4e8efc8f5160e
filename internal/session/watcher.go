package session

import (
	"context"
	"sync"
	"time"

	"github.com/dgellow/resource-desk/internal/log"
)

// DefaultWatchInterval is how often the watcher compares the clock against the expiry
const DefaultWatchInterval = 15 * time.Second

// Expirer ends a session whose expiry has passed. It returns true when it
// actually expired the session, false when the session was found to be
// still valid (for example because a login refreshed it meanwhile).
type Expirer interface {
	ExpireSession(ctx context.Context) bool
}

// Watcher polls the Store and hands an expired session to the Expirer.
// At most one loop runs per watcher.
type Watcher struct {
	store    *Store
	expirer  Expirer
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewWatcher creates a stopped watcher
func NewWatcher(store *Store, expirer Expirer, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{
		store:    store,
		expirer:  expirer,
		interval: interval,
	}
}

// Start launches the loop. It returns false when a loop is already running.
func (w *Watcher) Start(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stop != nil {
		return false
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	w.stop = stop
	w.done = done

	log.LogDebugWithFields("session", "Starting session watcher", map[string]any{
		"interval": w.interval.String(),
	})

	go w.run(ctx, stop, done)
	return true
}

// Stop signals the loop to exit without waiting for it. Stopping a
// stopped watcher does nothing.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stop == nil {
		return
	}
	close(w.stop)
	w.stop = nil
	log.LogDebug("Session watcher stopped")
}

// Running reports whether a loop is active
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stop != nil
}

// Wait blocks until the most recently started loop has exited
func (w *Watcher) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (w *Watcher) run(ctx context.Context, stop, done chan struct{}) {
	defer func() {
		w.mu.Lock()
		if w.stop == stop {
			w.stop = nil
		}
		w.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if w.check(ctx, stop) {
				return
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// check returns true when the loop should end
func (w *Watcher) check(ctx context.Context, stop chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
	}

	expiresAt, ok := w.store.GetExpiry(ctx)
	if !ok {
		return false
	}
	if w.store.Clock().Now().Before(expiresAt) {
		return false
	}

	log.LogInfoWithFields("session", "Session expiry reached", map[string]any{
		"expiresAt": expiresAt.Format(time.RFC3339),
	})
	return w.expirer.ExpireSession(ctx)
}

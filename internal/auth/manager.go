package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dgellow/resource-desk/internal/events"
	"github.com/dgellow/resource-desk/internal/log"
	"github.com/dgellow/resource-desk/internal/provider"
	"github.com/dgellow/resource-desk/internal/session"
	"github.com/dgellow/resource-desk/internal/storage"
)

const (
	// PlaceholderEnvironmentID is the unedited value shipped in sample configs
	PlaceholderEnvironmentID = "your-env-id"
	DefaultRegion            = "ap-shanghai"
	DefaultCollection        = "resources"
	DefaultResourceLimit     = 100
)

var environmentIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Config selects the backend environment
type Config struct {
	EnvironmentID string
	Region        string
	// SessionTTLMinutes <= 0 keeps the persisted TTL, or the default
	SessionTTLMinutes float64
}

// User is the signed-in user as presented to the UI
type User struct {
	UID       string `json:"uid"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username"`
	NickName  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	LoginType string `json:"loginType,omitempty"`
}

// LoginState answers "is anyone signed in"
type LoginState struct {
	IsLoggedIn bool  `json:"isLoggedIn"`
	User       *User `json:"user"`
}

// Manager owns the session lifecycle: provider client, local expiry,
// the expiry watcher and the current identity.
//
// gate serializes login, logout and expiry end to end so an expiring
// session cannot interleave with a fresh login. mu guards the fields below
// it for readers that do not need the gate.
type Manager struct {
	factory       provider.Factory
	store         *session.Store
	watcher       *session.Watcher
	bus           *events.Bus
	clock         session.Clock
	watchInterval time.Duration
	collection    string
	limit         int

	// watchCtx outlives individual requests; the watcher is stopped explicitly
	watchCtx context.Context

	gate sync.Mutex

	mu          sync.RWMutex
	client      provider.Client
	auth        provider.Auth
	db          provider.Database
	initialized bool
	cfg         Config
	ttl         float64
	username    string
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces the wall clock used for expiry
func WithClock(clock session.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithWatchInterval sets how often the watcher polls the expiry
func WithWatchInterval(d time.Duration) Option {
	return func(m *Manager) { m.watchInterval = d }
}

// WithResourceCollection sets the collection GetResources reads
func WithResourceCollection(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.collection = name
		}
	}
}

// WithResourceLimit caps the number of documents GetResources returns
func WithResourceLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.limit = n
		}
	}
}

// NewManager creates an uninitialized manager. A nil bus gets a private one.
func NewManager(factory provider.Factory, kv storage.KeyValue, bus *events.Bus, opts ...Option) *Manager {
	m := &Manager{
		factory:       factory,
		bus:           bus,
		clock:         session.SystemClock{},
		watchInterval: session.DefaultWatchInterval,
		collection:    DefaultCollection,
		limit:         DefaultResourceLimit,
		ttl:           session.DefaultTTLMinutes,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bus == nil {
		m.bus = events.NewBus()
	}

	m.store = session.NewStore(kv, m.clock)
	m.watcher = session.NewWatcher(m.store, m, m.watchInterval)
	m.watchCtx = context.Background()
	return m
}

// Init validates cfg, connects the provider and arms the expiry watcher.
// Calling it again replaces the previous client.
func (m *Manager) Init(ctx context.Context, cfg Config) error {
	m.gate.Lock()
	defer m.gate.Unlock()

	envID := strings.TrimSpace(cfg.EnvironmentID)
	if envID == "" || envID == PlaceholderEnvironmentID {
		m.resetLocked()
		return newError(ErrConfiguration, "Environment ID not configured", nil)
	}
	if !environmentIDPattern.MatchString(envID) {
		m.resetLocked()
		return newError(ErrConfiguration, "Invalid environment ID format", nil)
	}

	if cfg.SessionTTLMinutes > 0 && !session.ValidTTL(cfg.SessionTTLMinutes) {
		m.resetLocked()
		return newError(ErrConfiguration, "Session TTL must be at most one year", session.ErrInvalidTTL)
	}

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = DefaultRegion
	}

	client, err := m.factory(ctx, provider.Options{EnvironmentID: envID, Region: region})
	if err != nil {
		log.LogErrorWithFields("auth", "Provider initialization failed", map[string]any{
			"env":   envID,
			"error": err.Error(),
		})
		m.resetLocked()
		return newError(ErrInitialization, "Failed to initialize authentication service", err)
	}
	authHandle := client.Auth()
	db := client.Database()
	if authHandle == nil || db == nil {
		_ = client.Close()
		m.resetLocked()
		return newError(ErrInitialization, "Failed to initialize authentication service", nil)
	}

	ttl := float64(session.DefaultTTLMinutes)
	if cfg.SessionTTLMinutes > 0 {
		ttl = cfg.SessionTTLMinutes
	} else if persisted, ok := m.store.TTL(ctx); ok {
		ttl = persisted
	}
	if err := m.store.SetTTL(ctx, ttl); err != nil {
		log.LogWarnWithFields("auth", "Could not persist session TTL", map[string]any{
			"error": err.Error(),
		})
	}

	m.mu.Lock()
	previous := m.client
	m.client = client
	m.auth = authHandle
	m.db = db
	m.cfg = Config{EnvironmentID: envID, Region: region, SessionTTLMinutes: ttl}
	m.ttl = ttl
	m.initialized = true
	m.mu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			log.LogWarnWithFields("auth", "Failed to close previous provider client", map[string]any{
				"error": err.Error(),
			})
		}
	}

	m.watcher.Start(m.watchCtx)

	log.LogInfoWithFields("auth", "Authentication service initialized", map[string]any{
		"env":        envID,
		"region":     region,
		"ttlMinutes": ttl,
	})
	return nil
}

// resetLocked drops the client after a failed (re)initialization. Caller holds gate.
func (m *Manager) resetLocked() {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.auth = nil
	m.db = nil
	m.initialized = false
	m.mu.Unlock()

	m.watcher.Stop()
	if client != nil {
		_ = client.Close()
	}
}

// Initialized reports whether Init has succeeded
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

func (m *Manager) handles() (provider.Client, provider.Auth, provider.Database, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized || m.auth == nil {
		return nil, nil, nil, newError(ErrNotInitialized, "Service not initialized", nil)
	}
	return m.client, m.auth, m.db, nil
}

// SetSessionTTL changes the TTL used by the next login
func (m *Manager) SetSessionTTL(ctx context.Context, minutes float64) error {
	if _, _, _, err := m.handles(); err != nil {
		return err
	}
	if err := m.store.SetTTL(ctx, minutes); err != nil {
		if errors.Is(err, session.ErrInvalidTTL) {
			return newError(ErrValidation, "Session TTL must be a positive number of minutes, at most one year", err)
		}
		return newError(ErrProvider, "Could not persist session TTL", err)
	}

	m.mu.Lock()
	m.ttl = minutes
	m.cfg.SessionTTLMinutes = minutes
	m.mu.Unlock()
	return nil
}

// SessionTTL returns the TTL in minutes applied at login
func (m *Manager) SessionTTL() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ttl
}

// SessionExpiry returns the local session expiry, if any
func (m *Manager) SessionExpiry(ctx context.Context) (time.Time, bool) {
	return m.store.GetExpiry(ctx)
}

// WatcherRunning reports whether the expiry watcher loop is active
func (m *Manager) WatcherRunning() bool {
	return m.watcher.Running()
}

// Close stops the watcher and releases the provider client
func (m *Manager) Close(ctx context.Context) error {
	m.gate.Lock()
	defer m.gate.Unlock()

	m.watcher.Stop()

	m.mu.Lock()
	client := m.client
	m.client = nil
	m.auth = nil
	m.db = nil
	m.initialized = false
	m.mu.Unlock()

	log.LogInfo("Authentication service closed")
	if client != nil {
		return client.Close()
	}
	return nil
}

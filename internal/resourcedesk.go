package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dgellow/resource-desk/internal/auth"
	"github.com/dgellow/resource-desk/internal/config"
	"github.com/dgellow/resource-desk/internal/events"
	"github.com/dgellow/resource-desk/internal/log"
	"github.com/dgellow/resource-desk/internal/provider"
	"github.com/dgellow/resource-desk/internal/provider/cloud"
	"github.com/dgellow/resource-desk/internal/provider/memory"
	"github.com/dgellow/resource-desk/internal/server"
	"github.com/dgellow/resource-desk/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// ResourceDesk is the assembled process: local storage, the session
// manager and the bridge the UI talks to
type ResourceDesk struct {
	config     config.Config
	configPath string

	storage       storage.KeyValue
	manager       *auth.Manager
	httpServer    *server.HTTPServer
	eventsHandler *server.EventsHandler
	listener      net.Listener
}

// New builds every component, initializes the session manager and binds
// the bridge address. configPath enables live reload when non-empty.
func New(ctx context.Context, cfg config.Config, configPath string) (*ResourceDesk, error) {
	log.LogInfoWithFields("resourcedesk", "Building application", map[string]any{
		"environmentId": cfg.EnvironmentID,
		"region":        cfg.Region,
		"storage":       cfg.Storage.Kind,
		"provider":      cfg.Provider.Kind,
	})

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	factory, err := setupProvider(cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to setup provider: %w", err)
	}

	bus := events.NewBus()
	manager := auth.NewManager(factory, store, bus,
		auth.WithWatchInterval(cfg.WatchInterval),
		auth.WithResourceCollection(cfg.ResourceCollection),
	)

	err = manager.Init(ctx, auth.Config{
		EnvironmentID:     cfg.EnvironmentID,
		Region:            cfg.Region,
		SessionTTLMinutes: cfg.SessionTTLMinutes,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize session manager: %w", err)
	}

	bus.Subscribe(events.SessionExpired, func(string) {
		log.LogInfoWithFields("resourcedesk", "Session expired, UI notified", nil)
	})

	eventsHandler := server.NewEventsHandler(bus, server.DefaultPingInterval)
	handler := server.NewRouter(manager, bus, server.RouterConfig{
		Token:              string(cfg.Bridge.Token),
		AllowedOrigins:     cfg.Bridge.AllowedOrigins,
		LoginRatePerMinute: cfg.Bridge.LoginRatePerMinute,
		Events:             eventsHandler,
	})

	listener, err := net.Listen("tcp", cfg.Bridge.Addr)
	if err != nil {
		_ = manager.Close(ctx)
		_ = store.Close()
		return nil, fmt.Errorf("failed to bind bridge address: %w", err)
	}

	httpServer := server.NewHTTPServer(handler, listener.Addr().String())
	httpServer.RegisterOnShutdown(eventsHandler.Shutdown)

	return &ResourceDesk{
		config:        cfg,
		configPath:    configPath,
		storage:       store,
		manager:       manager,
		httpServer:    httpServer,
		eventsHandler: eventsHandler,
		listener:      listener,
	}, nil
}

// Addr is the address the bridge listens on
func (d *ResourceDesk) Addr() string {
	return d.listener.Addr().String()
}

// Manager exposes the session manager
func (d *ResourceDesk) Manager() *auth.Manager {
	return d.manager
}

// Run serves the bridge until ctx is cancelled or the server fails, then
// shuts everything down
func (d *ResourceDesk) Run(ctx context.Context) error {
	log.LogInfoWithFields("resourcedesk", "Starting application", map[string]any{
		"addr": d.Addr(),
	})

	errChan := make(chan error, 1)
	go func() {
		if err := d.httpServer.Serve(d.listener); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if d.configPath != "" {
		watcher, err := config.Watch(ctx, d.configPath, d.applyConfig)
		if err != nil {
			// live reload is a convenience; serve without it
			log.LogWarnWithFields("resourcedesk", "Config watch disabled", map[string]any{
				"error": err.Error(),
			})
		} else {
			defer watcher.Close()
		}
	}

	var shutdownReason string
	var runErr error
	select {
	case <-ctx.Done():
		shutdownReason = "context cancelled"
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		runErr = err
		log.LogErrorWithFields("resourcedesk", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("resourcedesk", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": shutdownTimeout.String(),
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := d.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("resourcedesk", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		runErr = errors.Join(runErr, err)
	}
	if err := d.manager.Close(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("closing session manager: %w", err))
	}
	if err := d.storage.Close(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("closing storage: %w", err))
	}

	log.LogInfoWithFields("resourcedesk", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return runErr
}

// applyConfig takes the settings that can change without a restart
func (d *ResourceDesk) applyConfig(cfg config.Config) {
	config.ApplyLogLevel(cfg)

	if cfg.SessionTTLMinutes > 0 && cfg.SessionTTLMinutes != d.manager.SessionTTL() {
		if err := d.manager.SetSessionTTL(context.Background(), cfg.SessionTTLMinutes); err != nil {
			log.LogWarnWithFields("resourcedesk", "Could not apply reloaded session TTL", map[string]any{
				"error": err.Error(),
			})
			return
		}
		log.LogInfoWithFields("resourcedesk", "Session TTL changed", map[string]any{
			"minutes": cfg.SessionTTLMinutes,
		})
	}
}

// setupStorage opens the configured key/value store
func setupStorage(ctx context.Context, cfg config.Config) (storage.KeyValue, error) {
	switch cfg.Storage.Kind {
	case config.StorageKindMemory:
		log.LogInfoWithFields("resourcedesk", "Using in-memory storage", nil)
		return storage.NewMemoryStorage(), nil
	case config.StorageKindSQLite:
		return storage.NewSQLiteStorage(ctx, cfg.Storage.Path)
	default:
		return nil, fmt.Errorf("unsupported storage kind: %s", cfg.Storage.Kind)
	}
}

// setupProvider picks the backend behind the session manager
func setupProvider(cfg config.Config, store storage.KeyValue) (provider.Factory, error) {
	switch cfg.Provider.Kind {
	case config.ProviderKindMemory:
		log.LogWarnWithFields("resourcedesk", "Using the in-memory demo provider", map[string]any{
			"account": "demo@example.com",
		})
		return memory.NewDemo().Factory(), nil
	case config.ProviderKindCloud:
		return cloud.NewFactory(cloud.Config{
			BaseURL:           cfg.Provider.BaseURL,
			ClientID:          cfg.Provider.ClientID,
			ClientSecret:      string(cfg.Provider.ClientSecret),
			EncryptionKey:     string(cfg.Provider.EncryptionKey),
			FirestoreProject:  cfg.Provider.FirestoreProject,
			FirestoreDatabase: cfg.Provider.FirestoreDatabase,
		}, store), nil
	default:
		return nil, fmt.Errorf("unsupported provider kind: %s", cfg.Provider.Kind)
	}
}

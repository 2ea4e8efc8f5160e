package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgellow/resource-desk/internal/log"
	"github.com/fsnotify/fsnotify"
)

// reloadDebounce absorbs the burst of events editors emit on save
const reloadDebounce = 200 * time.Millisecond

// Watcher reloads the config file when it changes on disk
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	onChange func(Config)

	closeOnce sync.Once
	done      chan struct{}
}

// Watch starts watching path. onChange receives every config that loads and
// validates after a change; broken edits are logged and skipped. The
// directory is watched rather than the file so that editors which replace
// the file on save keep working.
func Watch(ctx context.Context, path string, onChange func(Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching config directory: %w", err)
	}

	w := &Watcher{
		path:     abs,
		fsw:      fsw,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.run(ctx)

	log.LogInfoWithFields("config", "Watching config file", map[string]any{
		"path": abs,
	})
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = w.fsw.Close()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(reloadDebounce)
			} else {
				debounce.Reset(reloadDebounce)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.LogWarnWithFields("config", "Config watcher error", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.LogWarnWithFields("config", "Ignoring config change", map[string]any{
			"path":  w.path,
			"error": err.Error(),
		})
		return
	}
	log.LogDebugWithFields("config", "Config reloaded", map[string]any{
		"path": w.path,
	})
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Close stops watching and waits for the event loop to exit
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	<-w.done
	return err
}

// ApplyLogLevel is an onChange callback that keeps the process log level in
// sync with the file
func ApplyLogLevel(cfg Config) {
	if cfg.LogLevel == "" || strings.EqualFold(cfg.LogLevel, log.GetLogLevel()) {
		return
	}
	if err := log.SetLogLevel(cfg.LogLevel); err != nil {
		log.LogWarnWithFields("config", "Invalid logLevel in reloaded config", map[string]any{
			"error": err.Error(),
		})
	}
}

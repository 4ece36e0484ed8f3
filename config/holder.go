// Package config provides configuration loading and hot reload.
package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce coalesces the burst of events one editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// ReloadObserver records reload outcomes.
type ReloadObserver interface {
	ObserveConfigReload(err error)
}

// Holder keeps the current configuration and swaps it on reload.
// Listeners run after the swap, outside the lock.
type Holder struct {
	path     string
	logger   zerolog.Logger
	debounce time.Duration

	mu        sync.RWMutex
	cfg       *Config
	digest    [sha256.Size]byte
	observer  ReloadObserver
	listeners []func(*Config)

	watcher  *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once
}

// NewHolder loads path and returns a holder for it. Nothing is watched
// until WatchFile or WatchSignals is called.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	h := &Holder{
		path:     abs,
		logger:   logger.With().Str("component", "config").Logger(),
		debounce: DefaultDebounce,
		stop:     make(chan struct{}),
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("load config: read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	h.cfg = cfg
	h.digest = sha256.Sum256(data)
	return h, nil
}

// SetDebounce changes the quiet period of the file watcher. Zero disables it.
func (h *Holder) SetDebounce(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.debounce = d
}

// SetReloadObserver sets the observer notified on every reload attempt.
func (h *Holder) SetReloadObserver(o ReloadObserver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observer = o
}

// OnChange registers fn to receive every successfully loaded configuration.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Reload reads the file and applies it. On error the old configuration stays.
func (h *Holder) Reload() error {
	_, err := h.reload(true)
	return err
}

// reload applies the file. Unless force is set, identical content is skipped
// and reported as not applied.
func (h *Holder) reload(force bool) (bool, error) {
	data, err := os.ReadFile(h.path)
	var cfg *Config
	if err == nil {
		sum := sha256.Sum256(data)
		if !force && h.sameDigest(sum) {
			return false, nil
		}
		cfg, err = Parse(data)
		if err == nil {
			h.mu.Lock()
			h.digest = sum
			h.mu.Unlock()
		}
	}

	h.mu.Lock()
	observer := h.observer
	old := h.cfg
	if err == nil {
		h.cfg = cfg
	}
	listeners := append([]func(*Config){}, h.listeners...)
	h.mu.Unlock()

	if observer != nil {
		observer.ObserveConfigReload(err)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("path", h.path).Msg("config reload failed, keeping old config")
		return false, fmt.Errorf("reload config: %w", err)
	}

	h.logChanges(old, cfg)
	for _, fn := range listeners {
		fn(cfg)
	}
	h.logger.Info().Str("path", h.path).Msg("configuration reloaded")
	return true, nil
}

func (h *Holder) sameDigest(sum [sha256.Size]byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return bytes.Equal(sum[:], h.digest[:])
}

// WatchFile reloads whenever the file content changes. The directory is
// watched so that rename-into-place saves are seen.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	h.watcher = watcher

	go h.watchLoop(watcher)
	h.logger.Info().Str("path", h.path).Msg("watching config file")
	return nil
}

func (h *Holder) watchLoop(w *fsnotify.Watcher) {
	name := filepath.Base(h.path)

	h.mu.RLock()
	debounce := h.debounce
	h.mu.RUnlock()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce <= 0 {
				h.reloadFromWatch()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			h.reloadFromWatch()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("config watcher error")

		case <-h.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (h *Holder) reloadFromWatch() {
	if applied, err := h.reload(false); err == nil && !applied {
		h.logger.Debug().Msg("config file touched without changes")
	}
}

// WatchSignals reloads on SIGHUP until Stop.
func (h *Holder) WatchSignals() {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-hup:
				h.logger.Info().Msg("received SIGHUP")
				h.Reload()
			case <-h.stop:
				return
			}
		}
	}()
}

// Stop ends file and signal watching. Safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) logChanges(old, cur *Config) {
	if old == nil {
		return
	}
	ev := h.logger.Info()
	changed := false
	if old.Logging.Level != cur.Logging.Level {
		ev = ev.Str("log_level", cur.Logging.Level)
		changed = true
	}
	if old.Provisioning != cur.Provisioning {
		ev = ev.Str("key_name_prefix", cur.Provisioning.KeyNamePrefix).
			Str("usage_plans", cur.Provisioning.UsagePlans).
			Int("plan_concurrency", cur.Provisioning.PlanConcurrency)
		changed = true
	}
	if old.KeyService.Endpoint() != cur.KeyService.Endpoint() {
		ev = ev.Str("region", cur.KeyService.Region)
		changed = true
	}
	if changed {
		ev.Msg("provisioning defaults changed")
	} else {
		ev.Discard()
	}

	for _, field := range changedStatic(old, cur) {
		h.logger.Warn().Str("field", field).Msg("change requires a restart to take effect")
	}
}

// changedStatic lists non-reloadable sections that differ.
func changedStatic(old, cur *Config) []string {
	var changed []string
	if old.Server != cur.Server {
		changed = append(changed, "server")
	}
	if old.Database != cur.Database {
		changed = append(changed, "database")
	}
	if old.KeyService.Mode != cur.KeyService.Mode || old.KeyService.RateLimitPerSec != cur.KeyService.RateLimitPerSec {
		changed = append(changed, "key_service")
	}
	if old.Cache != cur.Cache {
		changed = append(changed, "cache")
	}
	if old.API != cur.API {
		changed = append(changed, "api.token_hash")
	}
	return changed
}

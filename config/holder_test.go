package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/artpar/awsapigw/config"
	"github.com/rs/zerolog"
)

func TestHolder_Get(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	got := h.Get()
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.Provisioning.UsagePlans != "plan-a" {
		t.Errorf("UsagePlans = %s, want plan-a", got.Provisioning.UsagePlans)
	}
}

func TestHolder_Reload(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	newContent := `
provisioning:
  usage_plans: "plan-b"
  plan_concurrency: 8
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	cfg := h.Get()
	if cfg.Provisioning.UsagePlans != "plan-b" || cfg.Provisioning.PlanConcurrency != 8 {
		t.Errorf("reloaded Provisioning = %+v", cfg.Provisioning)
	}
}

type reloadRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *reloadRecorder) ObserveConfigReload(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func TestHolder_OnChangeAndObserver(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	obs := &reloadRecorder{}
	h.SetReloadObserver(obs)

	var mu sync.Mutex
	var received *config.Config
	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		received = cfg
		mu.Unlock()
	})

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	mu.Lock()
	if received == nil || received.Logging.Level != "debug" {
		t.Errorf("callback received %+v", received)
	}
	mu.Unlock()

	if len(obs.errs) != 1 || obs.errs[0] != nil {
		t.Errorf("observer errs = %v, want one nil", obs.errs)
	}
}

func TestHolder_ReloadInvalidConfig(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	obs := &reloadRecorder{}
	h.SetReloadObserver(obs)

	called := false
	h.OnChange(func(*config.Config) { called = true })

	if err := os.WriteFile(path, []byte("key_service:\n  mode: gcp\n"), 0644); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	if err := h.Reload(); err == nil {
		t.Error("Reload should fail for invalid config")
	}
	if called {
		t.Error("OnChange must not run for a rejected config")
	}
	if len(obs.errs) != 1 || obs.errs[0] == nil {
		t.Errorf("observer errs = %v, want one error", obs.errs)
	}
	if cfg := h.Get(); cfg.Provisioning.UsagePlans != "plan-a" || cfg.KeyService.Mode != "memory" {
		t.Errorf("should keep old config, got %+v", cfg.KeyService)
	}
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	changed := make(chan *config.Config, 16)
	h.OnChange(func(cfg *config.Config) {
		select {
		case changed <- cfg:
		default:
		}
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	newContent := `
key_service:
  mode: memory
provisioning:
  usage_plans: "plan-watch"
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	// a write can surface as several events, wait for the complete file
	deadline := time.After(2 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Provisioning.UsagePlans == "plan-watch" {
				return
			}
		case <-deadline:
			t.Fatalf("file watcher did not apply the change, UsagePlans = %s", h.Get().Provisioning.UsagePlans)
		}
	}
}

func TestHolder_WatchFileSkipsUnchangedContent(t *testing.T) {
	content := validConfig()
	path := writeConfig(t, content)

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()
	h.SetDebounce(20 * time.Millisecond)

	obs := &reloadRecorder{}
	h.SetReloadObserver(obs)

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	// same bytes, several writes
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("rewrite config: %v", err)
		}
	}
	time.Sleep(300 * time.Millisecond)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.errs) != 0 {
		t.Errorf("reloads = %d, want 0 for unchanged content", len(obs.errs))
	}
}

func TestHolder_StopTwice(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	h.WatchSignals()
	h.Stop()
	h.Stop()
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if h.Get() == nil {
					t.Error("concurrent Get returned nil")
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}
	wg.Wait()
}

func TestNewHolder_InvalidConfig(t *testing.T) {
	_, err := config.NewHolder(writeConfig(t, "database:\n  driver: oracle\n"), zerolog.Nop())
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Unwrap(err) == nil {
		t.Error("error should wrap the load failure")
	}
}

// Helpers

func validConfig() string {
	return `
key_service:
  mode: memory
provisioning:
  usage_plans: "plan-a"
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

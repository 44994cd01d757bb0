package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func TestNewWatcher(t *testing.T) {
	t.Run("valid config path", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		writeConfigFile(t, configPath, "app:\n  name: test\n")

		w, err := NewWatcher(configPath)
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer w.Stop()

		if w.ConfigPath() != configPath {
			t.Errorf("expected config path %s, got %s", configPath, w.ConfigPath())
		}
		if w.IsRunning() {
			t.Error("watcher should not be running before Watch")
		}
	})

	t.Run("empty config path", func(t *testing.T) {
		if _, err := NewWatcher(""); err == nil {
			t.Fatal("expected error for empty config path")
		}
	})

	t.Run("with debounce option", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		writeConfigFile(t, configPath, "app:\n  name: test\n")

		w, err := NewWatcher(configPath, WithDebounce(50*time.Millisecond))
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer w.Stop()

		if w.debounce != 50*time.Millisecond {
			t.Errorf("expected debounce 50ms, got %v", w.debounce)
		}
	})
}

func TestWatcher_DetectsChanges(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, configPath, "app:\n  name: watch-test\nlog:\n  level: info\n")

	w, err := NewWatcher(configPath, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var received *Config
	reloaded := make(chan struct{}, 1)
	w.OnChange(func(cfg *Config) {
		mu.Lock()
		received = cfg
		mu.Unlock()
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	watchErr := make(chan error, 1)
	go func() { watchErr <- w.Watch(ctx) }()

	// Give the watcher time to register the file.
	time.Sleep(100 * time.Millisecond)

	writeConfigFile(t, configPath, "app:\n  name: watch-test\nlog:\n  level: debug\n")

	select {
	case <-reloaded:
	case <-ctx.Done():
		t.Fatal("timed out waiting for reload callback")
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil {
		t.Fatal("callback did not receive a config")
	}
	if received.Log.Level != "debug" {
		t.Errorf("expected reloaded log level debug, got %s", received.Log.Level)
	}
	// Untouched sections keep their defaults.
	if received.Server.Port != 8080 {
		t.Errorf("expected default port after reload, got %d", received.Server.Port)
	}
}

func TestWatcher_InvalidReloadIgnored(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, configPath, "app:\n  name: watch-test\n")

	w, err := NewWatcher(configPath, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	called := make(chan struct{}, 1)
	w.OnChange(func(*Config) {
		select {
		case called <- struct{}{}:
		default:
		}
	})

	go func() { _ = w.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// An invalid config must not reach the callbacks.
	writeConfigFile(t, configPath, "log:\n  level: shouty\n")

	select {
	case <-called:
		t.Fatal("callback fired for an invalid config")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_StopTerminatesWatch(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, configPath, "app:\n  name: watch-test\n")

	w, err := NewWatcher(configPath)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	watchErr := make(chan error, 1)
	go func() { watchErr <- w.Watch(context.Background()) }()
	time.Sleep(100 * time.Millisecond)

	if !w.IsRunning() {
		t.Error("expected watcher to be running")
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case err := <-watchErr:
		if err != nil {
			t.Errorf("Watch returned error after Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after Stop")
	}
}

func TestWatcher_DoubleWatchRejected(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, configPath, "app:\n  name: watch-test\n")

	w, err := NewWatcher(configPath)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := w.Watch(ctx); err == nil {
		t.Error("expected second Watch to fail")
	}
}

func TestHotReloadable(t *testing.T) {
	a := ExtractHotReloadable(DefaultConfig())

	changed := DefaultConfig()
	changed.Log.Level = "debug"
	b := ExtractHotReloadable(changed)

	if !a.Changed(b) {
		t.Error("expected change to be detected")
	}
	if a.Changed(a) {
		t.Error("identical values should not report a change")
	}
}

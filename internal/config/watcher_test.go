package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/komekshi/internal/config"
)

func writeConfig(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcher(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "komekshi.yaml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, "server:\n  log_level: info\n", base)

	var (
		mu      sync.Mutex
		changes []config.ConfigDiff
	)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		mu.Lock()
		changes = append(changes, config.Diff(old, new))
		mu.Unlock()
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Fatalf("initial log level = %q", w.Current().Server.LogLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	waitChanges := func(n int) []config.ConfigDiff {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			got := append([]config.ConfigDiff(nil), changes...)
			mu.Unlock()
			if len(got) >= n {
				return got
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("timed out waiting for %d changes", n)
		return nil
	}

	// Invalid content is ignored.
	writeConfig(t, path, "server:\n  log_level: bananas\n", base.Add(time.Second))
	time.Sleep(100 * time.Millisecond)
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Fatal("invalid config replaced the current one")
	}

	// Touching without a content change is ignored.
	writeConfig(t, path, "server:\n  log_level: info\n", base.Add(2*time.Second))
	time.Sleep(100 * time.Millisecond)

	writeConfig(t, path, "server:\n  log_level: debug\nwake:\n  timeout: 20s\n", base.Add(3*time.Second))
	got := waitChanges(1)
	if len(got) != 1 {
		t.Fatalf("changes = %d, want 1", len(got))
	}
	if !got[0].LogLevelChanged || !got[0].WakeChanged {
		t.Errorf("diff = %+v", got[0])
	}
	if w.Current().Wake.Timeout != 20*time.Second {
		t.Errorf("current wake timeout = %v", w.Current().Wake.Timeout)
	}
}

func TestNewWatcher_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

package configwatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vigia_backend/internal/config"
)

func writeConfig(t *testing.T, path, enforce string) {
	t.Helper()
	body := []byte("database:\n  driver: sqlite\nprogress:\n  enforce_sequence_lock: " + enforce + "\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatchConfigReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "true")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *config.Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- WatchConfig(ctx, path, func(cfg *config.Config) { reloaded <- cfg })
	}()

	// give the watcher time to register the directory
	time.Sleep(200 * time.Millisecond)
	writeConfig(t, path, "false")

	select {
	case cfg := <-reloaded:
		if cfg.Progress.EnforceSequenceLock {
			t.Fatalf("expected the reloaded config to disable the sequence lock")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("config was not reloaded")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WatchConfig returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not stop on cancel")
	}
}

func TestWatchConfigIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "true")

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	reloaded := make(chan struct{}, 1)
	go WatchConfig(ctx, path, func(*config.Config) { reloaded <- struct{}{} })

	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-reloaded:
		t.Fatalf("a write to another file must not trigger a reload")
	case <-ctx.Done():
	}
}

package daemon

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/edilcheck/edilcheck/internal/types"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRefresher) RefreshStats(ctx context.Context) (*types.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &types.Stats{}, nil
}

func (f *fakeRefresher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() *Config {
	return &Config{
		DebounceInterval: 40 * time.Millisecond,
		Logger:           log.New(io.Discard, "", 0),
	}
}

// startDaemon starts a daemon over a fresh edil.db and stops it at cleanup.
func startDaemon(t *testing.T, target Refresher, config *Config) (*Daemon, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "edil.db")
	if err := os.WriteFile(dbPath, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create database file: %v", err)
	}

	d, err := NewWithConfig(target, dbPath, config)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// Give Start time to register the watch.
	time.Sleep(50 * time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("daemon did not stop")
		}
	})
	return d, dbPath
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewWithConfig_Validation(t *testing.T) {
	if _, err := NewWithConfig(nil, "edil.db", nil); err == nil {
		t.Error("expected error for nil target")
	}
	if _, err := NewWithConfig(&fakeRefresher{}, "", nil); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestDaemon_RefreshesOnWrite(t *testing.T) {
	target := &fakeRefresher{}
	d, dbPath := startDaemon(t, target, testConfig())

	if err := os.WriteFile(dbPath+"-wal", []byte("change"), 0644); err != nil {
		t.Fatalf("Failed to write WAL: %v", err)
	}

	waitFor(t, "refresh after write", func() bool { return target.Calls() >= 1 })
	if d.Refreshes() < 1 {
		t.Errorf("Refreshes() = %d, want at least 1", d.Refreshes())
	}
}

func TestDaemon_DebouncesBurst(t *testing.T) {
	target := &fakeRefresher{}
	_, dbPath := startDaemon(t, target, testConfig())

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(dbPath, []byte{byte(i)}, 0644); err != nil {
			t.Fatalf("Failed to write database: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	waitFor(t, "refresh after burst", func() bool { return target.Calls() >= 1 })
	time.Sleep(150 * time.Millisecond)
	if got := target.Calls(); got != 1 {
		t.Errorf("Calls() = %d after one burst, want 1", got)
	}
}

func TestDaemon_IgnoresOtherFiles(t *testing.T) {
	target := &fakeRefresher{}
	_, dbPath := startDaemon(t, target, testConfig())

	other := filepath.Join(filepath.Dir(dbPath), "edil.log")
	if err := os.WriteFile(other, []byte("log line"), 0644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if got := target.Calls(); got != 0 {
		t.Errorf("Calls() = %d after unrelated write, want 0", got)
	}
}

func TestDaemon_PeriodicRefresh(t *testing.T) {
	target := &fakeRefresher{}
	config := testConfig()
	config.RefreshInterval = 30 * time.Millisecond
	startDaemon(t, target, config)

	waitFor(t, "periodic refreshes", func() bool { return target.Calls() >= 3 })
}

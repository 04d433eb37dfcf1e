// Package daemon keeps dashboard counters current while the dashboard runs.
//
// The daemon:
//  1. Watches the local database file (and its WAL) for writes made by any
//     edil process
//  2. Refreshes the counters once writes settle
//  3. Refreshes them periodically, so "hours today" follows the calendar
//  4. Handles graceful shutdown
//
// It only reads. Sync, backup and restore stay explicit user actions.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/edilcheck/edilcheck/internal/types"
	"github.com/fsnotify/fsnotify"
)

// Refresher recomputes and publishes the dashboard counters.
type Refresher interface {
	RefreshStats(ctx context.Context) (*types.Stats, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long writes must stop before a refresh.
	// This batches the several writes of one save together.
	DebounceInterval time.Duration

	// RefreshInterval is how often to refresh regardless of writes
	// (0 disables)
	RefreshInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 250 * time.Millisecond,
		RefreshInterval:  time.Minute,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon refreshes dashboard counters on local database writes.
type Daemon struct {
	target Refresher
	dbPath string
	config *Config

	watcher *fsnotify.Watcher

	mu        sync.Mutex
	pending   time.Time // last write seen, zero when none is queued
	refreshes int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon for the local database at dbPath.
func New(target Refresher, dbPath string) (*Daemon, error) {
	return NewWithConfig(target, dbPath, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(target Refresher, dbPath string, config *Config) (*Daemon, error) {
	if target == nil {
		return nil, fmt.Errorf("target cannot be nil")
	}
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		target:  target,
		dbPath:  abs,
		config:  config,
		watcher: watcher,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins watching. It blocks until ctx is cancelled or Stop is
// called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.watcher.Add(filepath.Dir(d.dbPath)); err != nil {
		return fmt.Errorf("failed to watch database directory: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", d.dbPath)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()
	if d.config.RefreshInterval > 0 {
		d.wg.Add(1)
		go d.refreshPeriodically()
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()
	d.config.Logger.Println("Daemon stopped")
	return nil
}

// Refreshes returns how many refreshes have run.
func (d *Daemon) Refreshes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshes
}

func (d *Daemon) refresh(reason string) {
	_, err := d.target.RefreshStats(d.ctx)

	d.mu.Lock()
	d.refreshes++
	d.mu.Unlock()

	if err != nil && d.ctx.Err() == nil {
		d.config.Logger.Printf("Error refreshing stats (%s): %v", reason, err)
	}
}

// watchFileEvents monitors filesystem events and queues database writes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !d.relevant(event) {
				continue
			}
			d.queueChange()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// relevant reports whether event is a write to the database, its WAL or
// its rollback journal.
func (d *Daemon) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	if name == d.dbPath {
		return true
	}
	suffix, ok := strings.CutPrefix(name, d.dbPath)
	return ok && (suffix == "-wal" || suffix == "-journal")
}

func (d *Daemon) queueChange() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = time.Now()
}

// processChangeQueue refreshes once queued writes have settled.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 4)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.mu.Lock()
			ready := !d.pending.IsZero() && time.Since(d.pending) >= d.config.DebounceInterval
			if ready {
				d.pending = time.Time{}
			}
			d.mu.Unlock()

			if ready {
				d.refresh("change")
			}
		}
	}
}

// refreshPeriodically refreshes every RefreshInterval.
func (d *Daemon) refreshPeriodically() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.refresh("scheduled")
		}
	}
}

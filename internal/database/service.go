// Package database is the application-facing data service.
//
// A Service binds one account to the local store and, in local-with-backup
// mode, to a backup server. Every read and write goes to the local store;
// the server is only contacted for explicit backup, restore and sync
// requests, and by the background availability probe.
package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	edilsync "github.com/edilcheck/edilcheck/internal/sync"
	"github.com/edilcheck/edilcheck/internal/types"
)

// Mode selects whether the backup server is used at all.
type Mode string

const (
	ModeLocalOnly       Mode = "local-only"
	ModeLocalWithBackup Mode = "local-with-backup"
)

// ParseMode validates a mode string from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLocalOnly, ModeLocalWithBackup:
		return Mode(s), nil
	case "":
		return ModeLocalOnly, nil
	}
	return "", fmt.Errorf("unknown mode %q (want %s or %s)", s, ModeLocalOnly, ModeLocalWithBackup)
}

// ErrBackupDisabled is returned by Backup, Restore and Sync in local-only
// mode.
var ErrBackupDisabled = errors.New("backup disabled in local-only mode")

// probeTimeout bounds one availability probe.
const probeTimeout = 5 * time.Second

// Store is the local store as seen by the service.
type Store interface {
	edilsync.LocalStore

	LoadContext(ctx context.Context, account string) (*types.Container, error)
	SaveContext(ctx context.Context, account string, c *types.Container) error
	Mutate(ctx context.Context, account string, fn func(c *types.Container) error) error

	AddWorker(ctx context.Context, account string, w types.Worker) (*types.Worker, error)
	UpdateWorker(ctx context.Context, account string, id int64, patch types.WorkerPatch) (*types.Worker, error)
	DeleteWorker(ctx context.Context, account string, id int64) error

	AddSite(ctx context.Context, account string, s types.Site) (*types.Site, error)
	UpdateSite(ctx context.Context, account string, id int64, patch types.SitePatch) (*types.Site, error)
	DeleteSite(ctx context.Context, account string, id int64) error

	AddTimeEntry(ctx context.Context, account string, e types.TimeEntry) (*types.TimeEntryView, error)
	UpdateTimeEntry(ctx context.Context, account string, id int64, patch types.TimeEntryPatch) (*types.TimeEntryView, error)
	DeleteTimeEntry(ctx context.Context, account string, id int64) error

	AddPayment(ctx context.Context, account string, p types.Payment) (*types.PaymentView, error)
	UpdatePayment(ctx context.Context, account string, id int64, patch types.PaymentPatch) (*types.PaymentView, error)
	DeletePayment(ctx context.Context, account string, id int64) error

	DashboardStats(ctx context.Context, account string) (*types.Stats, error)
}

// Remote is the backup server client as seen by the service.
type Remote interface {
	edilsync.RemoteStore

	SetCredentials(email, password string)
	HasCredentials() bool
	GetBackup(ctx context.Context) (*types.Container, error)
	PutBackup(ctx context.Context, c *types.Container) error
}

// Settings is the reconfigurable part of a Service.
type Settings struct {
	Account  string
	Mode     Mode
	Email    string
	Password string
}

// Service is the data service for one account.
type Service struct {
	store  Store
	remote Remote
	syncer edilsync.Syncer
	logger *log.Logger

	mu              sync.RWMutex
	account         string
	mode            Mode
	remoteAvailable bool
	lastProbe       time.Time
	probeSeq        uint64
	probeObservers  map[int]func(bool)
	nextObserver    int

	probes sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithRemote attaches the backup server client.
func WithRemote(r Remote) Option {
	return func(s *Service) { s.remote = r }
}

// WithSyncer replaces the sync engine built from the store and remote.
func WithSyncer(sy edilsync.Syncer) Option {
	return func(s *Service) { s.syncer = sy }
}

// WithLogger sets the logger. A nil logger writes to stderr.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithAccount sets the account every operation is scoped to.
func WithAccount(account string) Option {
	return func(s *Service) { s.account = account }
}

// WithMode sets the initial mode. The default is local-only.
func WithMode(m Mode) Option {
	return func(s *Service) { s.mode = m }
}

// New creates a service over store. In local-with-backup mode an
// availability probe is started in the background.
//
// Example:
//
//	client := remote.New("localhost", 3002)
//	client.SetCredentials(email, password)
//	svc := database.New(store,
//	    database.WithRemote(client),
//	    database.WithAccount(email),
//	    database.WithMode(database.ModeLocalWithBackup),
//	)
//	defer svc.Close()
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		mode:           ModeLocalOnly,
		probeObservers: make(map[int]func(bool)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(os.Stderr, "[database] ", log.LstdFlags)
	}
	if s.syncer == nil && s.remote != nil {
		s.syncer = edilsync.New(store, s.remote, log.New(s.logger.Writer(), "[sync] ", s.logger.Flags()))
	}

	if s.mode == ModeLocalWithBackup {
		s.probe()
	}
	return s
}

// Close waits for outstanding probes.
func (s *Service) Close() {
	s.probes.Wait()
}

// Account returns the current account.
func (s *Service) Account() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// Mode returns the current mode.
func (s *Service) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Syncer returns the sync engine, or nil when no remote is attached.
func (s *Service) Syncer() edilsync.Syncer {
	return s.syncer
}

// RemoteAvailable reports the result of the last probe. It is always false
// in local-only mode.
func (s *Service) RemoteAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode == ModeLocalWithBackup && s.remoteAvailable
}

// LastProbe returns when the last probe finished.
func (s *Service) LastProbe() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastProbe
}

// SetMode switches mode. Entering local-with-backup starts a probe.
func (s *Service) SetMode(m Mode) {
	s.mu.Lock()
	s.mode = m
	if m == ModeLocalOnly {
		s.remoteAvailable = false
	}
	s.mu.Unlock()

	s.logger.Printf("Mode set to %s", m)
	if m == ModeLocalWithBackup {
		s.probe()
	}
}

// Configure applies new settings, typically after the config file changed.
func (s *Service) Configure(set Settings) {
	s.mu.Lock()
	if set.Account != "" {
		s.account = set.Account
	}
	s.mu.Unlock()

	if s.remote != nil && set.Email != "" {
		s.remote.SetCredentials(set.Email, set.Password)
	}

	mode := set.Mode
	if mode == "" {
		mode = s.Mode()
	}
	s.SetMode(mode)
}

// OnProbe registers fn for probe results and returns a function that
// removes it.
func (s *Service) OnProbe(fn func(available bool)) func() {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.probeObservers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.probeObservers, id)
		s.mu.Unlock()
	}
}

// Probe checks the server synchronously and records the result.
func (s *Service) Probe(ctx context.Context) bool {
	if s.remote == nil || s.Mode() != ModeLocalWithBackup {
		return false
	}

	s.mu.Lock()
	s.probeSeq++
	seq := s.probeSeq
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	ok := s.remote.TestConnection(ctx)

	s.mu.Lock()
	// A newer probe already reported.
	if seq != s.probeSeq {
		s.mu.Unlock()
		return ok
	}
	s.remoteAvailable = ok
	s.lastProbe = time.Now()
	observers := make([]func(bool), 0, len(s.probeObservers))
	for _, fn := range s.probeObservers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Printf("WARNING: Backup server not reachable")
	}
	for _, fn := range observers {
		fn(ok)
	}
	return ok
}

// probe runs Probe in the background.
func (s *Service) probe() {
	if s.remote == nil {
		return
	}
	s.probes.Add(1)
	go func() {
		defer s.probes.Done()
		s.Probe(context.Background())
	}()
}

// requireBackup checks that backup operations may reach the server.
func (s *Service) requireBackup() error {
	if s.Mode() != ModeLocalWithBackup || s.remote == nil {
		return ErrBackupDisabled
	}
	return nil
}

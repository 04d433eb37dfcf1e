package sync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/edilcheck/edilcheck/internal/localdb"
	"github.com/edilcheck/edilcheck/internal/types"
)

const account = "demo"

var (
	older = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	newer = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
)

// fakeRemote is an in-memory backup server.
type fakeRemote struct {
	mu     stdsync.Mutex
	down   bool
	nextID int64

	workers  []types.Worker
	sites    []types.Site
	entries  []types.TimeEntry
	payments []types.Payment

	failCreate map[string]bool
	listErr    error
	creates    int
	updates    int

	// gate, when set, blocks TestConnection until closed.
	gate chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{nextID: 500, failCreate: map[string]bool{}}
}

func (f *fakeRemote) TestConnection(ctx context.Context) bool {
	if f.gate != nil {
		<-f.gate
	}
	return !f.down
}

func (f *fakeRemote) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeRemote) Workers(ctx context.Context) ([]types.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]types.Worker(nil), f.workers...), nil
}

func (f *fakeRemote) CreateWorker(ctx context.Context, w types.Worker) (*types.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate["workers"] {
		return nil, errors.New("boom")
	}
	w.ID = f.id()
	f.workers = append(f.workers, w)
	f.creates++
	return &w, nil
}

func (f *fakeRemote) UpdateWorker(ctx context.Context, id int64, w types.Worker) (*types.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.workers {
		if f.workers[i].ID == id {
			w.ID = id
			f.workers[i] = w
			f.updates++
			return &w, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeRemote) Sites(ctx context.Context) ([]types.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Site(nil), f.sites...), nil
}

func (f *fakeRemote) CreateSite(ctx context.Context, s types.Site) (*types.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate["sites"] {
		return nil, errors.New("boom")
	}
	s.ID = f.id()
	f.sites = append(f.sites, s)
	f.creates++
	return &s, nil
}

func (f *fakeRemote) UpdateSite(ctx context.Context, id int64, s types.Site) (*types.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sites {
		if f.sites[i].ID == id {
			s.ID = id
			f.sites[i] = s
			f.updates++
			return &s, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeRemote) TimeEntries(ctx context.Context) ([]types.TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.TimeEntry(nil), f.entries...), nil
}

func (f *fakeRemote) CreateTimeEntry(ctx context.Context, e types.TimeEntry) (*types.TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate["timeEntries"] {
		return nil, errors.New("boom")
	}
	e.ID = f.id()
	f.entries = append(f.entries, e)
	f.creates++
	return &e, nil
}

func (f *fakeRemote) UpdateTimeEntry(ctx context.Context, id int64, e types.TimeEntry) (*types.TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].ID == id {
			e.ID = id
			f.entries[i] = e
			f.updates++
			return &e, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeRemote) Payments(ctx context.Context) ([]types.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Payment(nil), f.payments...), nil
}

func (f *fakeRemote) CreatePayment(ctx context.Context, p types.Payment) (*types.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate["payments"] {
		return nil, errors.New("boom")
	}
	p.ID = f.id()
	f.payments = append(f.payments, p)
	f.creates++
	return &p, nil
}

func (f *fakeRemote) UpdatePayment(ctx context.Context, id int64, p types.Payment) (*types.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.payments {
		if f.payments[i].ID == id {
			p.ID = id
			f.payments[i] = p
			f.updates++
			return &p, nil
		}
	}
	return nil, errors.New("not found")
}

// setupTestDB creates a temporary local store for testing.
func setupTestDB(t *testing.T) *localdb.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := localdb.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return database
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// mirror copies every local record of account into the fake remote.
func mirror(t *testing.T, store *localdb.DB, f *fakeRemote) {
	t.Helper()

	c, err := store.Load(account)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	for _, w := range c.Workers {
		w.ID = f.id()
		f.workers = append(f.workers, w)
	}
	for _, s := range c.Sites {
		s.ID = f.id()
		f.sites = append(f.sites, s)
	}
	for _, e := range c.TimeEntries {
		e.ID = f.id()
		f.entries = append(f.entries, e)
	}
	for _, p := range c.Payments {
		p.ID = f.id()
		f.payments = append(f.payments, p)
	}
}

func TestSync_PushesSeedAndIsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	remote := newFakeRemote()
	s := New(store, remote, quietLogger())
	ctx := context.Background()

	first, err := s.Sync(ctx, account)
	if err != nil {
		t.Fatalf("first Sync() failed: %v", err)
	}
	if first.LocalToRemote != 5 {
		t.Errorf("first pass LocalToRemote = %d, want 5", first.LocalToRemote)
	}
	if first.RemoteToLocal != 0 {
		t.Errorf("first pass RemoteToLocal = %d, want 0", first.RemoteToLocal)
	}

	second, err := s.Sync(ctx, account)
	if err != nil {
		t.Fatalf("second Sync() failed: %v", err)
	}
	if second.LocalToRemote != 0 || second.RemoteToLocal != 0 {
		t.Errorf("second pass = %d/%d, want 0/0", second.LocalToRemote, second.RemoteToLocal)
	}
	if remote.creates != 5 || remote.updates != 0 {
		t.Errorf("remote creates=%d updates=%d, want 5/0", remote.creates, remote.updates)
	}
	if second.Conflicts != 0 {
		t.Errorf("Conflicts = %d, want 0", second.Conflicts)
	}
}

func TestSync_PullsRemoteOnlyRecords(t *testing.T) {
	store := setupTestDB(t)
	remote := newFakeRemote()
	mirror(t, store, remote)
	remote.sites = append(remote.sites, types.Site{
		ID: 900, Name: "Capannone Nord", Address: "Via Emilia 2", Status: types.SiteActive, CreatedAt: older,
	})

	s := New(store, remote, quietLogger())
	result, err := s.Sync(context.Background(), account)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if result.RemoteToLocal != 1 || result.LocalToRemote != 0 {
		t.Errorf("result = %d/%d, want 0 pushed 1 pulled", result.LocalToRemote, result.RemoteToLocal)
	}

	sites, _ := store.Sites(context.Background(), account)
	if len(sites) != 2 {
		t.Fatalf("local sites = %d, want 2", len(sites))
	}
	pulled := sites[1]
	if pulled.ID == 900 {
		t.Error("pulled site kept the remote id")
	}
	if !pulled.CreatedAt.Equal(older) {
		t.Errorf("pulled created_at = %v, want %v", pulled.CreatedAt, older)
	}
}

// TestSync_DuplicateKeysUseNewest tests that records sharing a business key
// sync as one record, the newest, and that a second pass does nothing.
func TestSync_DuplicateKeysUseNewest(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	entry := types.TimeEntry{WorkerID: 1, SiteID: 1, Date: "2026-05-01", StartTime: "08:00", Status: types.EntryConfirmed}
	first := entry
	first.ID, first.EndTime, first.TotalHours, first.CreatedAt = 10, "17:00", 8, newer
	second := entry
	second.ID, second.EndTime, second.TotalHours, second.CreatedAt = 11, "12:00", 4, older

	if err := store.Save(account, &types.Container{
		Workers:     []types.Worker{{ID: 1, Name: "Mario", Email: "mario@x.com", Status: types.WorkerActive, CreatedAt: older}},
		Sites:       []types.Site{{ID: 1, Name: "Cantiere", Address: "Via 1", Status: types.SiteActive, CreatedAt: older}},
		TimeEntries: []types.TimeEntry{first, second},
	}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	remote := newFakeRemote()
	s := New(store, remote, quietLogger())

	pass1, err := s.Sync(ctx, account)
	if err != nil {
		t.Fatalf("first Sync() failed: %v", err)
	}
	if pass1.LocalToRemote != 3 || pass1.RemoteToLocal != 0 {
		t.Errorf("first pass = %d/%d, want 3/0", pass1.LocalToRemote, pass1.RemoteToLocal)
	}
	if len(remote.entries) != 1 {
		t.Fatalf("remote time entries = %d, want 1", len(remote.entries))
	}
	if got := remote.entries[0]; got.EndTime != "17:00" || !got.CreatedAt.Equal(newer) {
		t.Errorf("remote entry = %s/%v, want the newer duplicate", got.EndTime, got.CreatedAt)
	}

	for i := 2; i <= 3; i++ {
		res, err := s.Sync(ctx, account)
		if err != nil {
			t.Fatalf("Sync() pass %d failed: %v", i, err)
		}
		if res.LocalToRemote != 0 || res.RemoteToLocal != 0 {
			t.Errorf("pass %d = %d/%d, want 0/0", i, res.LocalToRemote, res.RemoteToLocal)
		}
	}

	views, _ := store.TimeEntries(ctx, account)
	if len(views) != 2 {
		t.Fatalf("local time entries = %d, want 2", len(views))
	}
	for _, v := range views {
		if v.ID == 11 && v.EndTime != "12:00" {
			t.Errorf("older duplicate was overwritten: EndTime = %q", v.EndTime)
		}
	}
}

// TestSync_DuplicateKeyRejectedLocally tests that the store refuses to
// create a second record with a taken key, so a pass has nothing to merge.
func TestSync_DuplicateKeyRejectedLocally(t *testing.T) {
	store := setupTestDB(t)
	remote := newFakeRemote()
	s := New(store, remote, quietLogger())
	ctx := context.Background()

	e := types.TimeEntry{WorkerID: 1, SiteID: 1, Date: "2026-05-01", StartTime: "08:00", EndTime: "12:00"}
	if _, err := store.AddTimeEntry(ctx, account, e); err != nil {
		t.Fatalf("AddTimeEntry() failed: %v", err)
	}
	if _, err := store.AddTimeEntry(ctx, account, e); !errors.Is(err, localdb.ErrDuplicateKey) {
		t.Fatalf("second AddTimeEntry() error = %v, want ErrDuplicateKey", err)
	}

	if _, err := s.Sync(ctx, account); err != nil {
		t.Fatalf("first Sync() failed: %v", err)
	}
	second, err := s.Sync(ctx, account)
	if err != nil {
		t.Fatalf("second Sync() failed: %v", err)
	}
	if second.LocalToRemote != 0 || second.RemoteToLocal != 0 {
		t.Errorf("second pass = %d/%d, want 0/0", second.LocalToRemote, second.RemoteToLocal)
	}
}

// TestSync_DanglingReferenceLogged tests the warning for a pulled time entry
// whose worker is not in the local store.
func TestSync_DanglingReferenceLogged(t *testing.T) {
	store := setupTestDB(t)
	remote := newFakeRemote()
	mirror(t, store, remote)
	remote.entries = append(remote.entries, types.TimeEntry{
		ID: 901, WorkerID: 777, SiteID: 1, Date: "2026-05-02", StartTime: "07:00", EndTime: "11:00", CreatedAt: older,
	})

	var buf bytes.Buffer
	result, err := New(store, remote, log.New(&buf, "", 0)).Sync(context.Background(), account)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if result.RemoteToLocal != 1 {
		t.Errorf("RemoteToLocal = %d, want 1", result.RemoteToLocal)
	}
	if !strings.Contains(buf.String(), "worker 777") {
		t.Errorf("log does not mention the missing worker:\n%s", buf.String())
	}
}

func TestSync_LocalNewerUpdatesRemote(t *testing.T) {
	store := setupTestDB(t)
	if err := store.Save(account, &types.Container{
		Workers: []types.Worker{{ID: 1, Name: "Local Name", Email: "a@x.com", Status: types.WorkerActive, CreatedAt: newer}},
	}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	remote := newFakeRemote()
	remote.workers = []types.Worker{{ID: 77, Name: "Remote Name", Email: "a@x.com", Status: types.WorkerActive, CreatedAt: older}}

	result, err := New(store, remote, quietLogger()).Sync(context.Background(), account)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if result.LocalToRemote != 1 || result.RemoteToLocal != 0 {
		t.Errorf("result = %d/%d, want 1/0", result.LocalToRemote, result.RemoteToLocal)
	}
	if got := remote.workers[0]; got.Name != "Local Name" || got.ID != 77 || !got.CreatedAt.Equal(newer) {
		t.Errorf("remote worker = %+v", got)
	}

	ws, _ := store.Workers(context.Background(), account)
	if ws[0].Name != "Local Name" || !ws[0].CreatedAt.Equal(newer) {
		t.Errorf("local worker changed: %+v", ws[0])
	}
}

func TestSync_RemoteNewerUpdatesLocal(t *testing.T) {
	store := setupTestDB(t)
	if err := store.Save(account, &types.Container{
		Workers: []types.Worker{{ID: 1, Name: "Local Name", Email: "a@x.com", Status: types.WorkerActive, CreatedAt: older}},
	}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	remote := newFakeRemote()
	remote.workers = []types.Worker{{ID: 77, Name: "Remote Name", Email: "a@x.com", Status: types.WorkerOnLeave, CreatedAt: newer}}

	result, err := New(store, remote, quietLogger()).Sync(context.Background(), account)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if result.LocalToRemote != 0 || result.RemoteToLocal != 1 {
		t.Errorf("result = %d/%d, want 0/1", result.LocalToRemote, result.RemoteToLocal)
	}
	if remote.updates != 0 || remote.workers[0].Name != "Remote Name" {
		t.Errorf("remote touched: updates=%d worker=%+v", remote.updates, remote.workers[0])
	}

	ws, _ := store.Workers(context.Background(), account)
	if len(ws) != 1 {
		t.Fatalf("local workers = %d, want 1", len(ws))
	}
	if ws[0].ID != 1 || ws[0].Name != "Remote Name" || !ws[0].CreatedAt.Equal(newer) {
		t.Errorf("local worker = %+v", ws[0])
	}
}

func TestSync_EqualTimestampsNoop(t *testing.T) {
	store := setupTestDB(t)
	if err := store.Save(account, &types.Container{
		Workers: []types.Worker{{ID: 1, Name: "Local", Email: "a@x.com", Status: types.WorkerActive, CreatedAt: older}},
	}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	remote := newFakeRemote()
	remote.workers = []types.Worker{{ID: 3, Name: "Remote", Email: "a@x.com", Status: types.WorkerActive, CreatedAt: older}}

	result, err := New(store, remote, quietLogger()).Sync(context.Background(), account)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if result.LocalToRemote != 0 || result.RemoteToLocal != 0 {
		t.Errorf("result = %d/%d, want 0/0", result.LocalToRemote, result.RemoteToLocal)
	}
}

func TestSync_LocalOnlyPayment(t *testing.T) {
	store := setupTestDB(t)
	remote := newFakeRemote()
	mirror(t, store, remote)

	if _, err := store.AddPayment(context.Background(), account, types.Payment{
		WorkerID: 2, Week: "2026-W40", Hours: 40, HourlyRate: 18.5,
	}); err != nil {
		t.Fatalf("AddPayment() failed: %v", err)
	}

	result, err := New(store, remote, quietLogger()).Sync(context.Background(), account)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if result.LocalToRemote != 1 {
		t.Errorf("LocalToRemote = %d, want 1", result.LocalToRemote)
	}
	if got := result.Collections["payments"].Created; got != 1 {
		t.Errorf("payments created = %d, want 1", got)
	}
	if len(remote.payments) != 2 {
		t.Errorf("remote payments = %d, want 2", len(remote.payments))
	}
}

func TestSync_RecordFailureIsSkipped(t *testing.T) {
	store := setupTestDB(t)
	remote := newFakeRemote()
	remote.failCreate["sites"] = true

	s := New(store, remote, quietLogger())
	result, err := s.Sync(context.Background(), account)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Failed)
	}
	if result.LocalToRemote != 4 {
		t.Errorf("LocalToRemote = %d, want 4", result.LocalToRemote)
	}
	if s.Status() != StatusSuccess {
		t.Errorf("Status() = %q, want %q", s.Status(), StatusSuccess)
	}
}

func TestSync_RemoteUnavailable(t *testing.T) {
	store := setupTestDB(t)
	remote := newFakeRemote()
	remote.down = true

	s := New(store, remote, quietLogger())
	_, err := s.Sync(context.Background(), account)
	if !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("Sync() error = %v, want ErrRemoteUnavailable", err)
	}
	if s.Status() != StatusError {
		t.Errorf("Status() = %q, want %q", s.Status(), StatusError)
	}
	if !errors.Is(s.LastError(), ErrRemoteUnavailable) {
		t.Errorf("LastError() = %v", s.LastError())
	}
	if !s.LastSync().IsZero() {
		t.Error("LastSync() set after a failed pass")
	}
}

func TestSync_ListFailureAborts(t *testing.T) {
	store := setupTestDB(t)
	remote := newFakeRemote()
	remote.listErr = errors.New("500")

	_, err := New(store, remote, quietLogger()).Sync(context.Background(), account)
	if err == nil {
		t.Fatal("Sync() succeeded with a failing remote list")
	}
	if remote.creates != 0 {
		t.Errorf("remote creates = %d after aborted pass, want 0", remote.creates)
	}
}

func TestSync_ObserversAndLastSync(t *testing.T) {
	store := setupTestDB(t)
	s := New(store, newFakeRemote(), quietLogger())

	var events []Event
	unsubscribe := s.Subscribe(func(ev Event) { events = append(events, ev) })

	if s.Status() != StatusIdle {
		t.Errorf("initial Status() = %q, want idle", s.Status())
	}
	if _, err := s.Sync(context.Background(), account); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Status != StatusSyncing || events[1].Status != StatusSuccess {
		t.Errorf("statuses = %q, %q", events[0].Status, events[1].Status)
	}
	if events[1].Result == nil || events[1].Account != account {
		t.Errorf("success event = %+v", events[1])
	}
	if s.LastSync().IsZero() {
		t.Error("LastSync() not recorded")
	}

	unsubscribe()
	if _, err := s.Sync(context.Background(), account); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("events after unsubscribe = %d, want 2", len(events))
	}
}

func TestSync_InProgress(t *testing.T) {
	store := setupTestDB(t)
	remote := newFakeRemote()
	remote.gate = make(chan struct{})
	s := New(store, remote, quietLogger())

	started := make(chan struct{})
	s.Subscribe(func(ev Event) {
		if ev.Status == StatusSyncing {
			close(started)
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := s.Sync(context.Background(), account)
		done <- err
	}()

	<-started
	if _, err := s.Sync(context.Background(), account); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("concurrent Sync() error = %v, want ErrSyncInProgress", err)
	}

	close(remote.gate)
	if err := <-done; err != nil {
		t.Errorf("first Sync() failed: %v", err)
	}
}

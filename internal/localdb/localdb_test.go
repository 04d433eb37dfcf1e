package localdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/edilcheck/edilcheck/internal/types"
)

var fixedNow = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	tmpDir := t.TempDir()
	return filepath.Join(tmpDir, "test.db")
}

// setupTestDB opens a database with the schema in place and a fixed clock
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(testDBPath(t), WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

// TestOpen_Success tests successful database creation
func TestOpen_Success(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

// TestInitSchema_Idempotent tests that schema initialization is idempotent
func TestInitSchema_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	if err := db.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

// TestClose_Twice tests that Close can be called more than once
func TestClose_Twice(t *testing.T) {
	db, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("first Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

// TestLoad_SeedsNewAccount tests that a fresh account gets the sample data
func TestLoad_SeedsNewAccount(t *testing.T) {
	db := setupTestDB(t)

	c, err := db.Load("demo")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(c.Workers) != 2 || len(c.Sites) != 1 || len(c.TimeEntries) != 1 || len(c.Payments) != 1 {
		t.Fatalf("seed counts = %v, want 2/1/1/1", c.Counts())
	}
	if c.NextID != 100 {
		t.Errorf("NextID = %d, want 100", c.NextID)
	}
	if got := c.TimeEntries[0].Date; got != "2026-10-16" {
		t.Errorf("seed entry date = %q, want today", got)
	}
	if got := c.Payments[0].Week; got != "2026-W42" {
		t.Errorf("seed payment week = %q, want 2026-W42", got)
	}
	if !c.Workers[0].CreatedAt.Equal(fixedNow) {
		t.Errorf("seed created_at = %v, want %v", c.Workers[0].CreatedAt, fixedNow)
	}
}

// TestLoad_SeedPersisted tests that the seed is written once and reloaded
func TestLoad_SeedPersisted(t *testing.T) {
	path := testDBPath(t)
	clock := fixedNow
	db, err := Open(path, WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	if _, err := db.Load("demo"); err != nil {
		t.Fatalf("first Load() failed: %v", err)
	}

	clock = fixedNow.Add(48 * time.Hour)
	c, err := db.Load("demo")
	if err != nil {
		t.Fatalf("second Load() failed: %v", err)
	}
	if !c.Workers[0].CreatedAt.Equal(fixedNow) {
		t.Errorf("created_at changed across loads: %v", c.Workers[0].CreatedAt)
	}

	accounts, err := db.Accounts(context.Background())
	if err != nil {
		t.Fatalf("Accounts() failed: %v", err)
	}
	if len(accounts) != 1 || accounts[0] != "demo" {
		t.Errorf("Accounts() = %v, want [demo]", accounts)
	}
}

// TestLoad_EmptyAccount tests that an empty account key is rejected
func TestLoad_EmptyAccount(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.Load(""); !errors.Is(err, ErrNoAccount) {
		t.Errorf("Load(\"\") error = %v, want ErrNoAccount", err)
	}
}

// TestAccounts_Isolated tests that accounts do not see each other's data
func TestAccounts_Isolated(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.DeleteWorker(ctx, "a", 1); err != nil {
		t.Fatalf("DeleteWorker() failed: %v", err)
	}

	ws, err := db.Workers(ctx, "b")
	if err != nil {
		t.Fatalf("Workers() failed: %v", err)
	}
	if len(ws) != 2 {
		t.Errorf("account b has %d workers, want 2", len(ws))
	}
}

// TestDeleteWorker_Cascade tests removal of the worker's entries and payments
func TestDeleteWorker_Cascade(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.DeleteWorker(ctx, "demo", 1); err != nil {
		t.Fatalf("DeleteWorker() failed: %v", err)
	}

	ws, _ := db.Workers(ctx, "demo")
	if len(ws) != 1 || ws[0].ID != 2 {
		t.Errorf("workers = %+v, want only worker 2", ws)
	}
	entries, _ := db.TimeEntries(ctx, "demo")
	for _, e := range entries {
		if e.WorkerID == 1 {
			t.Errorf("time entry %d still references worker 1", e.ID)
		}
	}
	payments, _ := db.Payments(ctx, "demo")
	for _, p := range payments {
		if p.WorkerID == 1 {
			t.Errorf("payment %d still references worker 1", p.ID)
		}
	}
}

// TestDeleteSite_Cascade tests removal of the site's entries only
func TestDeleteSite_Cascade(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.DeleteSite(ctx, "demo", 1); err != nil {
		t.Fatalf("DeleteSite() failed: %v", err)
	}

	entries, _ := db.TimeEntries(ctx, "demo")
	if len(entries) != 0 {
		t.Errorf("time entries = %d, want 0", len(entries))
	}
	payments, _ := db.Payments(ctx, "demo")
	if len(payments) != 1 {
		t.Errorf("payments = %d, want 1", len(payments))
	}
}

// TestDelete_MissingID tests that deleting an unknown id is a no-op
func TestDelete_MissingID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.DeletePayment(ctx, "demo", 999); err != nil {
		t.Errorf("DeletePayment(999) failed: %v", err)
	}
	if err := db.DeleteTimeEntry(ctx, "demo", 999); err != nil {
		t.Errorf("DeleteTimeEntry(999) failed: %v", err)
	}
	ps, _ := db.Payments(ctx, "demo")
	if len(ps) != 1 {
		t.Errorf("payments = %d, want 1", len(ps))
	}
}

// TestAddWorker_AllocatesID tests ids and created_at of new workers
func TestAddWorker_AllocatesID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	w, err := db.AddWorker(ctx, "demo", types.Worker{Name: "Anna Neri", Email: "anna@example.com", HourlyRate: 20})
	if err != nil {
		t.Fatalf("AddWorker() failed: %v", err)
	}
	if w.ID != 100 {
		t.Errorf("ID = %d, want 100", w.ID)
	}
	if w.Status != types.WorkerActive {
		t.Errorf("Status = %q, want default %q", w.Status, types.WorkerActive)
	}
	if !w.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", w.CreatedAt, fixedNow)
	}

	s, err := db.AddSite(ctx, "demo", types.Site{Name: "Capannone", Address: "Via Po 1"})
	if err != nil {
		t.Fatalf("AddSite() failed: %v", err)
	}
	if s.ID != 101 {
		t.Errorf("site ID = %d, want 101 (shared counter)", s.ID)
	}

	ws, _ := db.Workers(ctx, "demo")
	if len(ws) != 3 {
		t.Errorf("workers = %d, want 3", len(ws))
	}
}

// TestAddWorker_Invalid tests that validation failures leave the store alone
func TestAddWorker_Invalid(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.AddWorker(ctx, "demo", types.Worker{Name: "No Email"}); err == nil {
		t.Fatal("AddWorker() without email succeeded")
	}
	ws, _ := db.Workers(ctx, "demo")
	if len(ws) != 2 {
		t.Errorf("workers = %d, want 2", len(ws))
	}
}

// TestUpdateWorker tests patching and the not-found case
func TestUpdateWorker(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	w, err := db.UpdateWorker(ctx, "demo", 2, types.WorkerPatch{Status: types.Ptr(types.WorkerOnLeave)})
	if err != nil {
		t.Fatalf("UpdateWorker() failed: %v", err)
	}
	if w.Status != types.WorkerOnLeave || w.Name != "Luigi Bianchi" {
		t.Errorf("updated worker = %+v", w)
	}

	_, err = db.UpdateWorker(ctx, "demo", 999, types.WorkerPatch{Name: types.Ptr("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateWorker(999) error = %v, want ErrNotFound", err)
	}

	stats, err := db.DashboardStats(ctx, "demo")
	if err != nil {
		t.Fatalf("DashboardStats() failed: %v", err)
	}
	if stats.ActiveWorkers != 1 {
		t.Errorf("ActiveWorkers = %d, want 1", stats.ActiveWorkers)
	}
}

// TestAddTimeEntry tests derived hours, joined names and reference checks
func TestAddTimeEntry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	e, err := db.AddTimeEntry(ctx, "demo", types.TimeEntry{
		WorkerID: 2, SiteID: 1, Date: "2026-10-16", StartTime: "07:00", EndTime: "11:30",
	})
	if err != nil {
		t.Fatalf("AddTimeEntry() failed: %v", err)
	}
	if e.TotalHours != 4.5 {
		t.Errorf("TotalHours = %v, want 4.5", e.TotalHours)
	}
	if e.WorkerName != "Luigi Bianchi" || e.SiteName != "Residenza Le Querce" {
		t.Errorf("view names = %q / %q", e.WorkerName, e.SiteName)
	}

	_, err = db.AddTimeEntry(ctx, "demo", types.TimeEntry{WorkerID: 2, SiteID: 77, Date: "2026-10-16", StartTime: "07:00"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("AddTimeEntry with unknown site error = %v, want ErrNotFound", err)
	}

	stats, _ := db.DashboardStats(ctx, "demo")
	if stats.TodayHours != 12.5 {
		t.Errorf("TodayHours = %v, want 12.5", stats.TodayHours)
	}
}

// TestUpdateTimeEntry tests patching a time entry
func TestUpdateTimeEntry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	e, err := db.UpdateTimeEntry(ctx, "demo", 1, types.TimeEntryPatch{Status: types.Ptr(types.EntryPending)})
	if err != nil {
		t.Fatalf("UpdateTimeEntry() failed: %v", err)
	}
	if e.Status != types.EntryPending || e.WorkerName != "Mario Rossi" {
		t.Errorf("updated entry = %+v", e)
	}

	if _, err := db.UpdateTimeEntry(ctx, "demo", 42, types.TimeEntryPatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTimeEntry(42) error = %v, want ErrNotFound", err)
	}
}

// TestPayments tests add and update of payments
func TestPayments(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p, err := db.AddPayment(ctx, "demo", types.Payment{WorkerID: 2, Week: "2026-W42", Hours: 38, HourlyRate: 18.5})
	if err != nil {
		t.Fatalf("AddPayment() failed: %v", err)
	}
	if p.TotalAmount != 703 {
		t.Errorf("TotalAmount = %v, want 703", p.TotalAmount)
	}

	p, err = db.UpdatePayment(ctx, "demo", p.ID, types.PaymentPatch{
		Status:   types.Ptr(types.PaymentPaid),
		PaidDate: types.Ptr("2026-10-17"),
	})
	if err != nil {
		t.Fatalf("UpdatePayment() failed: %v", err)
	}
	if p.Status != types.PaymentPaid {
		t.Errorf("Status = %q, want %q", p.Status, types.PaymentPaid)
	}

	if _, err := db.AddPayment(ctx, "demo", types.Payment{WorkerID: 9, Week: "2026-W42"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddPayment for unknown worker error = %v, want ErrNotFound", err)
	}

	stats, _ := db.DashboardStats(ctx, "demo")
	if stats.PendingPayments != 1 {
		t.Errorf("PendingPayments = %d, want 1", stats.PendingPayments)
	}
}

// TestImport_KeepsCreatedAt tests that imported records keep their stamp
func TestImport_KeepsCreatedAt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	remoteTime := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	w, err := db.ImportWorker(ctx, "demo", types.Worker{
		ID: 7, Name: "Remote", Email: "remote@example.com", Status: types.WorkerActive, CreatedAt: remoteTime,
	})
	if err != nil {
		t.Fatalf("ImportWorker() failed: %v", err)
	}
	if w.ID == 7 {
		t.Error("ImportWorker kept the foreign id")
	}
	if !w.CreatedAt.Equal(remoteTime) {
		t.Errorf("CreatedAt = %v, want %v", w.CreatedAt, remoteTime)
	}

	s, err := db.ImportSite(ctx, "demo", types.Site{Name: "X", Address: "Y"})
	if err != nil {
		t.Fatalf("ImportSite() failed: %v", err)
	}
	if !s.CreatedAt.Equal(fixedNow) {
		t.Errorf("zero created_at not stamped: %v", s.CreatedAt)
	}
}

// TestReplace_OverwritesAll tests that Replace keeps the id and takes the rest
func TestReplace_OverwritesAll(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	later := fixedNow.Add(time.Hour)
	w, err := db.ReplaceWorker(ctx, "demo", 1, types.Worker{
		ID: 55, Name: "Mario Rossi", Email: "mario.rossi@edilcheck.it", Role: "Geometra",
		Status: types.WorkerActive, HourlyRate: 30, CreatedAt: later,
	})
	if err != nil {
		t.Fatalf("ReplaceWorker() failed: %v", err)
	}
	if w.ID != 1 || w.Role != "Geometra" || !w.CreatedAt.Equal(later) {
		t.Errorf("replaced worker = %+v", w)
	}

	if _, err := db.ReplacePayment(ctx, "demo", 404, types.Payment{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReplacePayment(404) error = %v, want ErrNotFound", err)
	}
}

// TestSave_RoundTrip tests that Save replaces the whole container
func TestSave_RoundTrip(t *testing.T) {
	db := setupTestDB(t)

	c := &types.Container{Workers: []types.Worker{{ID: 3, Name: "Solo", Email: "solo@example.com"}}}
	if err := db.Save("empty", c); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := db.Load("empty")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(got.Workers) != 1 || len(got.Sites) != 0 {
		t.Errorf("counts = %v", got.Counts())
	}
	if got.NextID != 4 {
		t.Errorf("NextID = %d, want 4", got.NextID)
	}
}

// TestDuplicateKeys tests that adds and updates cannot give two records of
// one collection the same business key
func TestDuplicateKeys(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Seed: workers 1 and 2, site 1, time entry 1 (worker 1, today 08:00),
	// payment 1 (worker 1, this week).
	if _, err := db.AddWorker(ctx, "demo", types.Worker{Name: "Doppione", Email: "mario.rossi@edilcheck.it"}); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("AddWorker with taken email error = %v, want ErrDuplicateKey", err)
	}
	if _, err := db.UpdateWorker(ctx, "demo", 2, types.WorkerPatch{Email: types.Ptr("mario.rossi@edilcheck.it")}); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("UpdateWorker to taken email error = %v, want ErrDuplicateKey", err)
	}
	if _, err := db.UpdateWorker(ctx, "demo", 1, types.WorkerPatch{Phone: types.Ptr("+39 000")}); err != nil {
		t.Errorf("UpdateWorker keeping its own email failed: %v", err)
	}

	if _, err := db.AddSite(ctx, "demo", types.Site{Name: "Residenza Le Querce", Address: "Via Roma 45, Milano"}); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("AddSite with taken name and address error = %v, want ErrDuplicateKey", err)
	}
	if _, err := db.AddSite(ctx, "demo", types.Site{Name: "Residenza Le Querce", Address: "Via Po 1"}); err != nil {
		t.Errorf("AddSite with a different address failed: %v", err)
	}

	today := fixedNow.Format(types.DateLayout)
	_, err := db.AddTimeEntry(ctx, "demo", types.TimeEntry{WorkerID: 1, SiteID: 1, Date: today, StartTime: "08:00", EndTime: "12:00"})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("AddTimeEntry with taken key error = %v, want ErrDuplicateKey", err)
	}
	e, err := db.AddTimeEntry(ctx, "demo", types.TimeEntry{WorkerID: 1, SiteID: 1, Date: today, StartTime: "13:00", EndTime: "17:00"})
	if err != nil {
		t.Fatalf("AddTimeEntry() failed: %v", err)
	}
	if _, err := db.UpdateTimeEntry(ctx, "demo", e.ID, types.TimeEntryPatch{StartTime: types.Ptr("08:00")}); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("UpdateTimeEntry to taken key error = %v, want ErrDuplicateKey", err)
	}

	year, wk := fixedNow.ISOWeek()
	week := fmt.Sprintf("%d-W%02d", year, wk)
	if _, err := db.AddPayment(ctx, "demo", types.Payment{WorkerID: 1, Week: week, Hours: 40, HourlyRate: 25}); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("AddPayment with taken key error = %v, want ErrDuplicateKey", err)
	}
	p, err := db.AddPayment(ctx, "demo", types.Payment{WorkerID: 2, Week: week, Hours: 40, HourlyRate: 18.5})
	if err != nil {
		t.Fatalf("AddPayment() failed: %v", err)
	}
	if _, err := db.UpdatePayment(ctx, "demo", p.ID, types.PaymentPatch{WorkerID: types.Ptr(int64(1))}); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("UpdatePayment to taken key error = %v, want ErrDuplicateKey", err)
	}

	c, _ := db.Load("demo")
	counts := c.Counts()
	if counts["workers"] != 2 || counts["sites"] != 2 || counts["timeEntries"] != 2 || counts["payments"] != 2 {
		t.Errorf("counts = %v, want 2 of each", counts)
	}
}

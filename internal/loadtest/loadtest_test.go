package loadtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/edilcheck/edilcheck/internal/types"
)

// Friday, ISO week 42.
var now = time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC)

func setupTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()

	td, err := CreateTestDatabase(context.Background(), filepath.Join(t.TempDir(), "load.db"),
		Options{Workers: 6, Sites: 3, Days: 14}, now)
	if err != nil {
		t.Fatalf("CreateTestDatabase() failed: %v", err)
	}
	t.Cleanup(func() { _ = td.Close() })
	return td
}

func TestGenerate(t *testing.T) {
	c := Generate(Options{Workers: 10, Sites: 4, Days: 21}, now)

	if len(c.Workers) != 10 || len(c.Sites) != 4 {
		t.Fatalf("Generate() = %d workers, %d sites, want 10 and 4", len(c.Workers), len(c.Sites))
	}
	if len(c.TimeEntries) == 0 || len(c.Payments) == 0 {
		t.Fatal("Generate() produced no entries or payments")
	}

	seen := map[int64]bool{}
	for _, e := range c.TimeEntries {
		if seen[e.ID] {
			t.Fatalf("duplicate id %d", e.ID)
		}
		seen[e.ID] = true
		if c.WorkerIndex(e.WorkerID) < 0 || c.SiteIndex(e.SiteID) < 0 {
			t.Fatalf("entry %d references a missing worker or site", e.ID)
		}
		day, err := time.Parse(types.DateLayout, e.Date)
		if err != nil {
			t.Fatalf("entry %d has bad date %q", e.ID, e.Date)
		}
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Errorf("entry %d falls on a weekend (%s)", e.ID, e.Date)
		}
	}

	for _, p := range c.Payments {
		due := p.Status == types.PaymentDue
		if due != (p.Week == "2026-W42") {
			t.Errorf("payment %d for %s has status %s", p.ID, p.Week, p.Status)
		}
	}

	again := Generate(Options{Workers: 10, Sites: 4, Days: 21}, now)
	if len(again.TimeEntries) != len(c.TimeEntries) || again.TimeEntries[0] != c.TimeEntries[0] {
		t.Error("Generate() is not deterministic")
	}
}

func TestRunConcurrentReads(t *testing.T) {
	td := setupTestDatabase(t)

	stats, err := td.RunConcurrentReads(context.Background(), 4, 10)
	if err != nil {
		t.Fatalf("RunConcurrentReads() failed: %v", err)
	}
	if stats.TotalQueries != 40 {
		t.Errorf("TotalQueries = %d, want 40", stats.TotalQueries)
	}
	if stats.Errors != 0 {
		t.Errorf("Errors = %d, want 0", stats.Errors)
	}
	if stats.Min > stats.P50 || stats.P50 > stats.Max {
		t.Errorf("inconsistent percentiles: %+v", stats)
	}
}

func TestRunConcurrentWrites(t *testing.T) {
	td := setupTestDatabase(t)
	before := td.TimeEntries

	stats, err := td.RunConcurrentWrites(context.Background(), 4, 5)
	if err != nil {
		t.Fatalf("RunConcurrentWrites() failed: %v", err)
	}
	if stats.Errors != 0 {
		t.Errorf("Errors = %d, want 0", stats.Errors)
	}
	if td.TimeEntries != before+20 {
		t.Errorf("TimeEntries = %d, want %d", td.TimeEntries, before+20)
	}
}

func TestComputeLatencyStats(t *testing.T) {
	var durations []time.Duration
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}

	s := computeLatencyStats(durations)
	if s.Min != time.Millisecond || s.Max != 100*time.Millisecond {
		t.Errorf("Min/Max = %v/%v", s.Min, s.Max)
	}
	if s.P50 != 51*time.Millisecond {
		t.Errorf("P50 = %v, want 51ms", s.P50)
	}
	if s.TotalQueries != 100 {
		t.Errorf("TotalQueries = %d, want 100", s.TotalQueries)
	}

	if empty := computeLatencyStats(nil); empty.TotalQueries != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}

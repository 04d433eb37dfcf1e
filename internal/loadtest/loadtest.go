// Package loadtest measures the local store under concurrent use.
//
// It fills a scratch database with a generated crew (workers, sites, a
// history of time entries and weekly payments) and then runs concurrent
// readers and writers against it, the way several dashboard clients and a
// background sync would.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/edilcheck/edilcheck/internal/localdb"
	"github.com/edilcheck/edilcheck/internal/types"
)

// Account owns the generated data.
const Account = "loadtest@edilcheck.local"

// Options sizes the generated dataset.
type Options struct {
	Workers int
	Sites   int
	// Days of history; every active worker logs one entry per weekday.
	Days int
}

// DefaultOptions returns a mid-sized crew.
func DefaultOptions() Options {
	return Options{Workers: 40, Sites: 8, Days: 90}
}

// TestDatabase is a populated scratch database.
type TestDatabase struct {
	DB          *localdb.DB
	Workers     int
	Sites       int
	TimeEntries int
	Payments    int
}

// LatencyStats captures performance metrics from a run.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
	Durations    []time.Duration
}

// CreateTestDatabase creates a database at dbPath holding a generated
// dataset ending at now.
func CreateTestDatabase(ctx context.Context, dbPath string, opts Options, now time.Time) (*TestDatabase, error) {
	db, err := localdb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	c := Generate(opts, now)
	if err := db.SaveContext(ctx, Account, c); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to save dataset: %w", err)
	}

	return &TestDatabase{
		DB:          db,
		Workers:     len(c.Workers),
		Sites:       len(c.Sites),
		TimeEntries: len(c.TimeEntries),
		Payments:    len(c.Payments),
	}, nil
}

// Close closes the test database connection.
func (td *TestDatabase) Close() error {
	if td.DB != nil {
		return td.DB.Close()
	}
	return nil
}

// Generate builds a deterministic dataset: about 80% of workers and 60% of
// sites active, weekday entries for active workers over opts.Days, and one
// payment per worker and ISO week, settled except for the current week.
func Generate(opts Options, now time.Time) *types.Container {
	rng := rand.New(rand.NewSource(42))
	roles := []string{"Muratore", "Carpentiere", "Elettricista", "Idraulico", "Manovale"}
	start := now.AddDate(0, 0, -opts.Days)

	c := &types.Container{NextID: 1}

	for i := 0; i < opts.Workers; i++ {
		status := types.WorkerActive
		if rng.Float64() > 0.8 {
			status = types.WorkerInactive
		}
		c.Workers = append(c.Workers, types.Worker{
			ID:         c.AllocateID(),
			Name:       fmt.Sprintf("Operaio %03d", i),
			Role:       roles[i%len(roles)],
			Phone:      fmt.Sprintf("+39 333 %07d", i),
			Email:      fmt.Sprintf("operaio%03d@edilcheck.local", i),
			Status:     status,
			HourlyRate: 14 + float64(rng.Intn(10)),
			CreatedAt:  start.Add(time.Duration(i) * time.Minute),
		})
	}

	for i := 0; i < opts.Sites; i++ {
		status := types.SiteActive
		if rng.Float64() > 0.6 {
			status = types.SiteCompleted
		}
		c.Sites = append(c.Sites, types.Site{
			ID:        c.AllocateID(),
			Name:      fmt.Sprintf("Cantiere %02d", i),
			Owner:     fmt.Sprintf("Committente %02d", i),
			Address:   fmt.Sprintf("Via Roma %d, Milano", i+1),
			Status:    status,
			StartDate: start.Format(types.DateLayout),
			CreatedAt: start.Add(time.Duration(i) * time.Minute),
		})
	}
	if len(c.Sites) == 0 {
		return c
	}

	weekly := map[[2]int64]float64{} // (worker, week index) -> hours
	weeks := map[int64]string{}
	for d := 0; d <= opts.Days; d++ {
		day := start.AddDate(0, 0, d)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		year, week := day.ISOWeek()
		weekKey := int64(year*100 + week)
		weeks[weekKey] = fmt.Sprintf("%d-W%02d", year, week)

		for _, w := range c.Workers {
			if w.Status != types.WorkerActive {
				continue
			}
			site := c.Sites[rng.Intn(len(c.Sites))]
			end := 16 + rng.Intn(3)
			hours := float64(end - 8)
			c.TimeEntries = append(c.TimeEntries, types.TimeEntry{
				ID:         c.AllocateID(),
				WorkerID:   w.ID,
				SiteID:     site.ID,
				Date:       day.Format(types.DateLayout),
				StartTime:  "08:00",
				EndTime:    fmt.Sprintf("%02d:00", end),
				TotalHours: hours,
				Status:     types.EntryConfirmed,
				CreatedAt:  day.Add(time.Duration(end) * time.Hour),
			})
			weekly[[2]int64{w.ID, weekKey}] += hours
		}
	}

	year, week := now.ISOWeek()
	current := int64(year*100 + week)
	keys := make([][2]int64, 0, len(weekly))
	for k := range weekly {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][1] != keys[j][1] {
			return keys[i][1] < keys[j][1]
		}
		return keys[i][0] < keys[j][0]
	})
	for _, k := range keys {
		w := c.Workers[c.WorkerIndex(k[0])]
		hours := weekly[k]
		overtime := max(0, hours-40)
		p := types.Payment{
			ID:          c.AllocateID(),
			WorkerID:    w.ID,
			Week:        weeks[k[1]],
			Hours:       hours - overtime,
			Overtime:    overtime,
			HourlyRate:  w.HourlyRate,
			TotalAmount: hours * w.HourlyRate,
			Status:      types.PaymentPaid,
			Method:      "Bonifico",
			CreatedAt:   now,
		}
		if k[1] == current {
			p.Status = types.PaymentDue
			p.Method = ""
		} else {
			p.PaidDate = now.Format(types.DateLayout)
		}
		c.Payments = append(c.Payments, p)
	}
	return c
}

// RunConcurrentReads simulates numClients dashboard clients, each issuing
// queriesPerClient reads that cycle through stats, time entries and
// payments.
func (td *TestDatabase) RunConcurrentReads(ctx context.Context, numClients, queriesPerClient int) (*LatencyStats, error) {
	queries := []func(ctx context.Context) error{
		func(ctx context.Context) error {
			_, err := td.DB.DashboardStats(ctx, Account)
			return err
		},
		func(ctx context.Context) error {
			_, err := td.DB.TimeEntries(ctx, Account)
			return err
		},
		func(ctx context.Context) error {
			_, err := td.DB.Payments(ctx, Account)
			return err
		},
	}

	return run(numClients, queriesPerClient, func(client, j int) error {
		return queries[(client+j)%len(queries)](ctx)
	})
}

// RunConcurrentWrites has numClients clients each add entriesPerClient time
// entries, then checks that every entry landed with a distinct id.
func (td *TestDatabase) RunConcurrentWrites(ctx context.Context, numClients, entriesPerClient int) (*LatencyStats, error) {
	workers, err := td.DB.Workers(ctx, Account)
	if err != nil {
		return nil, err
	}
	sites, err := td.DB.Sites(ctx, Account)
	if err != nil {
		return nil, err
	}
	if len(workers) == 0 || len(sites) == 0 {
		return nil, fmt.Errorf("dataset has no workers or sites")
	}

	before, err := td.DB.TimeEntries(ctx, Account)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	ids := make(map[int64]bool)

	// Each write gets its own worker and day, a year past the generated
	// history, so no two writes share a business key.
	base := time.Now().AddDate(1, 0, 0)
	stats, err := run(numClients, entriesPerClient, func(client, j int) error {
		n := client*entriesPerClient + j
		e := types.TimeEntry{
			WorkerID:   workers[n%len(workers)].ID,
			SiteID:     sites[j%len(sites)].ID,
			Date:       base.AddDate(0, 0, n/len(workers)).Format(types.DateLayout),
			StartTime:  "07:30",
			EndTime:    "12:00",
			TotalHours: 4.5,
			Status:     types.EntryPending,
		}
		view, err := td.DB.AddTimeEntry(ctx, Account, e)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if ids[view.ID] {
			return fmt.Errorf("id %d allocated twice", view.ID)
		}
		ids[view.ID] = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	after, err := td.DB.TimeEntries(ctx, Account)
	if err != nil {
		return nil, err
	}
	if want := len(before) + stats.TotalQueries - stats.Errors; len(after) != want {
		return stats, fmt.Errorf("lost writes: %d time entries, want %d", len(after), want)
	}
	td.TimeEntries = len(after)
	return stats, nil
}

// run fans op out over numClients goroutines and aggregates latencies.
func run(numClients, perClient int, op func(client, j int) error) (*LatencyStats, error) {
	var wg sync.WaitGroup

	resultsChan := make(chan []time.Duration, numClients)
	errorsChan := make(chan error, numClients*perClient)

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()

			durations := make([]time.Duration, 0, perClient)
			for j := 0; j < perClient; j++ {
				start := time.Now()
				err := op(client, j)
				durations = append(durations, time.Since(start))
				if err != nil {
					errorsChan <- fmt.Errorf("client %d op %d failed: %w", client, j, err)
				}
			}
			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	var all []time.Duration
	for durations := range resultsChan {
		all = append(all, durations...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no operations completed")
	}

	stats := computeLatencyStats(all)
	var firstErr error
	for err := range errorsChan {
		stats.Errors++
		if firstErr == nil {
			firstErr = err
		}
	}
	if stats.Errors == stats.TotalQueries {
		return stats, firstErr
	}
	return stats, nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(durations)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(durations),
		Durations:    sorted,
	}
}

// PrintStats writes latency statistics to w.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "  Total:         %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}

// GetStats returns the dataset size.
func (td *TestDatabase) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"workers":      td.Workers,
		"sites":        td.Sites,
		"time_entries": td.TimeEntries,
		"payments":     td.Payments,
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/edilcheck/edilcheck/internal/loadtest"
	"github.com/edilcheck/edilcheck/internal/ui"
	"github.com/spf13/cobra"
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Measure local database latency under concurrent use",
	Long: `Create a scratch database with a generated crew, then run concurrent readers
(stats, time entries, payments) and concurrent writers (new time entries)
against it and report latency percentiles. Your own data is not touched.

Examples:
  # Default crew: 40 workers, 8 sites, 90 days of entries
  edil loadtest

  # Bigger crew, more clients
  edil loadtest --workers 200 --days 365 --clients 50
`,
	Run:     runLoadtest,
	GroupID: "advanced",
}

func init() {
	defaults := loadtest.DefaultOptions()
	loadtestCmd.Flags().Int("workers", defaults.Workers, "Workers in the generated crew")
	loadtestCmd.Flags().Int("sites", defaults.Sites, "Job sites in the generated dataset")
	loadtestCmd.Flags().Int("days", defaults.Days, "Days of time entry history")
	loadtestCmd.Flags().Int("clients", 20, "Concurrent clients")
	loadtestCmd.Flags().Int("queries", 25, "Operations per client")
	loadtestCmd.Flags().Bool("keep", false, "Keep the scratch database and print its path")
	rootCmd.AddCommand(loadtestCmd)
}

func runLoadtest(cmd *cobra.Command, args []string) {
	opts := loadtest.Options{}
	opts.Workers, _ = cmd.Flags().GetInt("workers")
	opts.Sites, _ = cmd.Flags().GetInt("sites")
	opts.Days, _ = cmd.Flags().GetInt("days")
	clients, _ := cmd.Flags().GetInt("clients")
	queries, _ := cmd.Flags().GetInt("queries")
	keep, _ := cmd.Flags().GetBool("keep")

	if opts.Workers <= 0 || opts.Sites <= 0 || opts.Days <= 0 {
		fatalf("--workers, --sites and --days must be positive")
	}
	if clients <= 0 || queries <= 0 {
		fatalf("--clients and --queries must be positive")
	}

	dir, err := os.MkdirTemp("", "edil-loadtest-")
	if err != nil {
		fatalf("failed to create scratch directory: %v", err)
	}
	if !keep {
		defer func() { _ = os.RemoveAll(dir) }()
	}

	ctx := context.Background()
	start := time.Now()
	td, err := loadtest.CreateTestDatabase(ctx, filepath.Join(dir, "edil.db"), opts, start)
	if err != nil {
		fatalf("%v", err)
	}
	defer func() { _ = td.Close() }()

	reads, err := td.RunConcurrentReads(ctx, clients, queries)
	if err != nil {
		fatalf("read phase failed: %v", err)
	}
	writes, err := td.RunConcurrentWrites(ctx, clients, queries)
	if err != nil {
		fatalf("write phase failed: %v", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"dataset": td.GetStats(),
			"reads":   latencyJSON(reads),
			"writes":  latencyJSON(writes),
		})
		return
	}

	fmt.Println(ui.RenderAccent("Dataset"))
	fmt.Printf("  %d workers, %d sites, %d time entries, %d payments (generated in %s)\n",
		td.Workers, td.Sites, td.TimeEntries, td.Payments, time.Since(start).Round(time.Millisecond))
	fmt.Println(ui.RenderAccent(fmt.Sprintf("Reads (%d clients)", clients)))
	reads.PrintStats(os.Stdout)
	fmt.Println(ui.RenderAccent(fmt.Sprintf("Writes (%d clients)", clients)))
	writes.PrintStats(os.Stdout)
	if keep {
		fmt.Printf("\nScratch database kept at %s\n", filepath.Join(dir, "edil.db"))
	}
}

func latencyJSON(s *loadtest.LatencyStats) map[string]interface{} {
	return map[string]interface{}{
		"total":  s.TotalQueries,
		"errors": s.Errors,
		"min_ms": float64(s.Min.Microseconds()) / 1000,
		"p50_ms": float64(s.P50.Microseconds()) / 1000,
		"p95_ms": float64(s.P95.Microseconds()) / 1000,
		"p99_ms": float64(s.P99.Microseconds()) / 1000,
		"max_ms": float64(s.Max.Microseconds()) / 1000,
	}
}

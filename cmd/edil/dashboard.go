package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edilcheck/edilcheck/internal/config"
	"github.com/edilcheck/edilcheck/internal/daemon"
	"github.com/edilcheck/edilcheck/internal/dashboard"
	"github.com/edilcheck/edilcheck/internal/database"
	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start the real-time WebSocket dashboard",
	Long: `Start a WebSocket dashboard server reporting on the local data.

WebSocket messages include:
- stats: active workers, active sites, pending payments and hours today
- sync_status: a sync pass started, finished or failed
- backup_status: the backup server became reachable or unreachable

HTTP endpoints:
  GET  /api/stats     current counters
  POST /api/sync      run a sync pass now

The config file is watched while the dashboard runs; changes to account, mode
or remote credentials apply without a restart. Counters are pushed again
whenever the local database is written, including by other edil commands.

Example usage:
  edil dashboard                          # Start on dashboard.port (default 8080)
  edil dashboard --port 9000
  edil dashboard --host 0.0.0.0           # Listen on every interface

Only same-origin pages, or hosts listed in dashboard.origin_patterns, may
open the WebSocket or POST /api/sync from a browser.`,
	Run: func(cmd *cobra.Command, args []string) {
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		refresh, _ := cmd.Flags().GetDuration("refresh")

		s := openService()

		host := cfg.Dashboard.Host
		if cmd.Flags().Changed("host") {
			host, _ = cmd.Flags().GetString("host")
		}

		server := dashboard.NewServer(&dashboard.Config{
			Port:           port,
			Host:           host,
			OriginPatterns: cfg.Dashboard.OriginPatterns,
			Logger:         logOut.Logger("dashboard"),
		})
		handler := dashboard.NewHandler(server, s, logOut.Logger("dashboard"))
		detach := handler.Attach()
		defer detach()

		if err := server.Start(); err != nil {
			fatalf("failed to start dashboard: %v", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if _, err := handler.RefreshStats(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load stats: %v\n", err)
		}

		if cfg.File != "" {
			stopWatch := watchConfig(ctx, cfg.File, s, func() {
				if _, err := handler.RefreshStats(ctx); err != nil {
					logOut.Logger("dashboard").Printf("Error refreshing stats: %v", err)
				}
			})
			defer stopWatch()
		}
		watcher, err := daemon.NewWithConfig(handler, cfg.DataPath, &daemon.Config{
			RefreshInterval: refresh,
			Logger:          logOut.Logger("daemon"),
		})
		if err != nil {
			fatalf("%v", err)
		}
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logOut.Logger("daemon").Printf("WARNING: live counters disabled: %v", err)
			}
		}()

		fmt.Printf("Dashboard server started on http://%s\n", server.GetAddr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.GetAddr())
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fatalf("error during shutdown: %v", err)
		}
		fmt.Println("Dashboard server stopped")
	},
}

// watchConfig reloads the config file when it changes, applies the new
// settings to s and calls applied.
func watchConfig(ctx context.Context, path string, s *database.Service, applied func()) (stop func()) {
	logger := logOut.Logger("config")

	w, err := config.NewWatcher(path)
	if err != nil {
		logger.Printf("WARNING: config reload disabled: %v", err)
		return func() {}
	}
	if err := w.Start(); err != nil {
		logger.Printf("WARNING: config reload disabled: %v", err)
		return func() {}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-w.Changes():
				if !ok {
					return
				}
				next, err := config.Load(path)
				if err != nil {
					logger.Printf("WARNING: ignoring config change: %v", err)
					continue
				}
				mode, err := database.ParseMode(next.Mode)
				if err != nil {
					logger.Printf("WARNING: ignoring config change: %v", err)
					continue
				}
				s.Configure(database.Settings{
					Account:  next.Account,
					Mode:     mode,
					Email:    next.Remote.Email,
					Password: next.Remote.Password,
				})
				logger.Printf("Applied config from %s (account=%s mode=%s)", path, s.Account(), mode)
				applied()
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				logger.Printf("WARNING: config watcher: %v", err)
			}
		}
	}()

	return func() { _ = w.Stop() }
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8080, "Port to listen on (default dashboard.port)")
	dashboardCmd.Flags().String("host", "", "Address to bind (default dashboard.host, 127.0.0.1)")
	dashboardCmd.Flags().Duration("refresh", daemon.DefaultConfig().RefreshInterval, "Also refresh counters this often (0 disables)")

	rootCmd.AddCommand(dashboardCmd)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/edilcheck/edilcheck/internal/backupserver"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Run the backup server",
	Long: `Run the Edil-Check backup server. It keeps one copy of the records per
registered account in SQLite (a file path or file: DSN) or libSQL (libsql://,
http:// or https:// DSN) and serves the REST API used by "edil sync",
"edil backup" and "edil restore".

Clients authenticate with the X-User-Email and X-User-Password headers, or with
a bearer token from POST /api/auth/login.

Example usage:
  edil serve                          # listen on server.addr (default :3002)
  edil serve --addr :8081 --dsn ./backup.db`,
	Run: func(cmd *cobra.Command, args []string) {
		addr := cfg.Server.Addr
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			addr = v
		}
		dsn := cfg.Server.DSN
		if v, _ := cmd.Flags().GetString("dsn"); v != "" {
			dsn = v
		}

		st, err := backupserver.OpenStore(dsn)
		if err != nil {
			fatalf("%v", err)
		}
		defer func() { _ = st.Close() }()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := st.InitSchema(ctx); err != nil {
			fatalf("%v", err)
		}

		srv := backupserver.New(st, backupserver.Options{
			JWTSecret:      cfg.Server.JWTSecret,
			TokenTTL:       cfg.Server.TokenTTL,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Logger:         logOut.Logger("server"),
		})

		fmt.Printf("Backup server listening on %s (store %s)\n", addr, dsn)
		fmt.Println("Press Ctrl+C to stop...")

		if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			_ = st.Close()
			os.Exit(1)
		}
		fmt.Println("Backup server stopped")
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default server.addr)")
	serveCmd.Flags().String("dsn", "", "Store DSN (default server.dsn)")

	rootCmd.AddCommand(serveCmd)
}

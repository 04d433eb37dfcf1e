package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/edilcheck/edilcheck/internal/config"
	"github.com/edilcheck/edilcheck/internal/database"
	"github.com/edilcheck/edilcheck/internal/localdb"
	"github.com/edilcheck/edilcheck/internal/logging"
	"github.com/edilcheck/edilcheck/internal/remote"
	"github.com/edilcheck/edilcheck/internal/ui"
	"github.com/spf13/cobra"
)

// defaultAccount scopes local data when neither account nor remote.email
// is configured.
const defaultAccount = "local"

var (
	cfgFile     string
	accountFlag string
	verbose     bool
	noColor     bool
	jsonOutput  bool

	cfg    *config.Config
	logOut *logging.Output

	store  *localdb.DB
	client *remote.Client
	svc    *database.Service
)

var rootCmd = &cobra.Command{
	Use:   "edil",
	Short: "Edil-Check: crews, job sites, hours and payments, local-first",
	Long: `Edil-Check keeps workers, job sites, time entries and payments in a local
SQLite database. In local-with-backup mode the data is also reconciled with a
backup server (see "edil serve") by business key, newest created_at winning.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || !ui.IsTerminal(os.Stdout) {
			ui.DisableColor()
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		logOut, err = logging.Setup(logging.Options{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Verbose:    verbose,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to set up logging: %v\n", err)
			os.Exit(1)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeService()
		if logOut != nil {
			_ = logOut.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./edil.yaml or ~/.edilcheck/edil.yaml)")
	rootCmd.PersistentFlags().StringVar(&accountFlag, "account", "", "Account to work on (default: account, else remote.email)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Also write logs to stderr")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "records", Title: "Records:"},
		&cobra.Group{ID: "sync", Title: "Backup and sync:"},
		&cobra.Group{ID: "data", Title: "Import and export:"},
		&cobra.Group{ID: "advanced", Title: "Servers:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// account returns the account from --account or the config.
func account() string {
	if accountFlag != "" {
		return accountFlag
	}
	if cfg.Account != "" {
		return cfg.Account
	}
	return defaultAccount
}

// newClient builds the backup server client from the config.
func newClient() *remote.Client {
	c := remote.New(cfg.Remote.Host, cfg.Remote.Port, remote.WithTimeout(cfg.Remote.Timeout))
	if cfg.Remote.Email != "" && cfg.Remote.Password != "" {
		c.SetCredentials(cfg.Remote.Email, cfg.Remote.Password)
	}
	return c
}

// openService opens the local store and builds the data service. Exits on
// failure.
func openService() *database.Service {
	if svc != nil {
		return svc
	}

	mode, err := database.ParseMode(cfg.Mode)
	if err != nil {
		fatalf("%v", err)
	}

	store, err = localdb.Open(cfg.DataPath)
	if err != nil {
		fatalf("opening local database: %v", err)
	}
	if err := store.InitSchema(); err != nil {
		fatalf("initializing schema: %v", err)
	}

	client = newClient()
	svc = database.New(store,
		database.WithRemote(client),
		database.WithAccount(account()),
		database.WithMode(mode),
		database.WithLogger(logOut.Logger("database")),
	)
	return svc
}

func closeService() {
	if svc != nil {
		svc.Close()
		svc = nil
	}
	if store != nil {
		_ = store.Close()
		store = nil
	}
}

// commandContext bounds a one-shot command.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Minute)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderFail("Error:"), fmt.Sprintf(format, args...))
	closeService()
	os.Exit(1)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("failed to encode output: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/edilcheck/edilcheck/internal/database"
	"github.com/edilcheck/edilcheck/internal/remote"
	"github.com/edilcheck/edilcheck/internal/types"
	"github.com/edilcheck/edilcheck/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "records",
	Short:   "Show dashboard counters",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		stats, err := openService().DashboardStats(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(stats)
			return
		}
		fmt.Println(ui.RenderAccent("Edil-Check " + account()))
		fmt.Printf("  Active workers:    %d\n", stats.ActiveWorkers)
		fmt.Printf("  Active sites:      %d\n", stats.ActiveSites)
		fmt.Printf("  Pending payments:  %d\n", stats.PendingPayments)
		fmt.Printf("  Hours today:       %s\n", hours(stats.TodayHours))
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show mode, server availability and sync state",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()
		s := openService()

		available := false
		if s.Mode() == database.ModeLocalWithBackup {
			available = s.Probe(ctx)
		}

		if jsonOutput {
			printJSON(map[string]interface{}{
				"account":         s.Account(),
				"mode":            s.Mode(),
				"server":          client.BaseURL(),
				"remoteAvailable": available,
				"credentials":     client.HasCredentials(),
			})
			return
		}

		fmt.Printf("Account:  %s\n", s.Account())
		fmt.Printf("Mode:     %s\n", s.Mode())
		fmt.Printf("Data:     %s\n", cfg.DataPath)
		if s.Mode() == database.ModeLocalOnly {
			fmt.Println(ui.RenderMuted("Backup server not used in local-only mode"))
			return
		}
		server := ui.RenderFail("unreachable")
		if available {
			server = ui.RenderPass("online")
		}
		fmt.Printf("Server:   %s (%s)\n", client.BaseURL(), server)
		if !client.HasCredentials() {
			fmt.Println(ui.RenderWarn("Credentials not set: configure remote.email and remote.password"))
		}
	},
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Reconcile local data with the backup server",
	Long: `Run one reconciliation pass. Records are matched by business key in both
directions; when both sides hold a record the newer created_at wins.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		result, err := openService().Sync(ctx)
		if err != nil {
			fatalf("sync failed: %v", err)
		}
		if jsonOutput {
			printJSON(result)
			return
		}

		fmt.Printf("%s Sync complete in %s\n", ui.RenderPass("✓"), result.Duration.Round(time.Millisecond))
		rows := make([][]string, 0, len(result.Collections))
		for _, name := range []string{"workers", "sites", "timeEntries", "payments"} {
			c := result.Collections[name]
			rows = append(rows, []string{
				name,
				fmt.Sprint(c.Created), fmt.Sprint(c.Updated),
				fmt.Sprint(c.Pulled), fmt.Sprint(c.PulledUpdated),
				fmt.Sprint(c.Failed),
			})
		}
		fmt.Println(ui.Table([]string{"Collection", "Pushed", "Updated remote", "Pulled", "Updated local", "Failed"}, rows))
		if result.Failed > 0 {
			fmt.Println(ui.RenderWarn(fmt.Sprintf("%d records failed; see the log for details", result.Failed)))
		}
	},
}

var backupCmd = &cobra.Command{
	Use:     "backup",
	GroupID: "sync",
	Short:   "Overwrite the server copy with the local data",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		if err := openService().Backup(ctx); err != nil {
			fatalf("backup failed: %v", err)
		}
		fmt.Printf("%s Backup uploaded to %s\n", ui.RenderPass("✓"), client.BaseURL())
	},
}

var restoreCmd = &cobra.Command{
	Use:     "restore",
	GroupID: "sync",
	Short:   "Pull the server copy into the local database",
	Long: `Merge the server copy into the local data. Records whose business key
already exists locally are kept as they are. With --replace the local data is
overwritten by the server copy.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		replace, _ := cmd.Flags().GetBool("replace")
		result, err := openService().Restore(ctx, replace)
		if err != nil {
			fatalf("restore failed: %v", err)
		}
		if jsonOutput {
			printJSON(result)
			return
		}
		verb := "Merged"
		if result.Replaced {
			verb = "Replaced local data with"
		}
		fmt.Printf("%s %s %d records (workers %d, sites %d, time entries %d, payments %d)\n",
			ui.RenderPass("✓"), verb, result.Total(), result.Workers, result.Sites, result.TimeEntries, result.Payments)
		if result.Skipped > 0 {
			fmt.Println(ui.RenderMuted(fmt.Sprintf("Skipped %d records already present locally", result.Skipped)))
		}
	},
}

var remoteCmd = &cobra.Command{
	Use:     "remote",
	GroupID: "sync",
	Short:   "Check the backup server and credentials",
}

var remoteTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check that the backup server answers",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		c := newClient()
		if !c.TestConnection(ctx) {
			fatalf("backup server at %s is not reachable", c.BaseURL())
		}
		fmt.Printf("%s Backup server at %s is online\n", ui.RenderPass("✓"), c.BaseURL())
	},
}

var remoteLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify credentials against the backup server",
	Long: `Verify an email and password against the backup server. Missing values are
prompted for on a terminal. With --register the account is created first.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		cred := types.Credentials{Email: cfg.Remote.Email, Password: cfg.Remote.Password}
		if v, _ := cmd.Flags().GetString("email"); v != "" {
			cred.Email = v
		}
		register, _ := cmd.Flags().GetBool("register")
		if register {
			cred.Name, _ = cmd.Flags().GetString("name")
		}

		if cred.Email == "" || cred.Password == "" {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				fatalf("email and password required: set remote.email and remote.password")
			}
			if err := promptCredentials(&cred); err != nil {
				fatalf("%v", err)
			}
		}
		cred.Email = strings.ToLower(strings.TrimSpace(cred.Email))

		c := newClient()
		if register {
			if err := cred.Validate(); err != nil {
				fatalf("%v", err)
			}
			if _, err := c.Register(ctx, cred); err != nil {
				fatalf("registration failed: %v", err)
			}
		}

		c.SetCredentials(cred.Email, cred.Password)
		user, err := c.Me(ctx)
		if err != nil {
			var rerr *remote.Error
			if errors.As(err, &rerr) && rerr.StatusCode == 401 {
				fatalf("invalid email or password")
			}
			fatalf("login failed: %v", err)
		}

		fmt.Printf("%s Logged in as %s\n", ui.RenderPass("✓"), user.Email)
		if cfg.Remote.Email != user.Email || cfg.Remote.Password != cred.Password {
			fmt.Println(ui.RenderMuted("Save the credentials with EDIL_REMOTE_EMAIL and EDIL_REMOTE_PASSWORD, or remote.email and remote.password in " + configHint()))
		}
	},
}

func promptCredentials(cred *types.Credentials) error {
	fields := []huh.Field{
		huh.NewInput().Title("Email").Value(&cred.Email),
		huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&cred.Password),
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}
	return nil
}

func configHint() string {
	if cfg.File != "" {
		return cfg.File
	}
	return "edil.yaml"
}

func init() {
	restoreCmd.Flags().Bool("replace", false, "Overwrite local data instead of merging")

	remoteLoginCmd.Flags().String("email", "", "Account email (default remote.email)")
	remoteLoginCmd.Flags().Bool("register", false, "Create the account before logging in")
	remoteLoginCmd.Flags().String("name", "", "Display name for --register")
	remoteCmd.AddCommand(remoteTestCmd, remoteLoginCmd)

	rootCmd.AddCommand(statsCmd, statusCmd, syncCmd, backupCmd, restoreCmd, remoteCmd)
}

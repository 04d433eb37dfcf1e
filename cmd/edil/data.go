package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edilcheck/edilcheck/internal/export"
	"github.com/edilcheck/edilcheck/internal/snapshot"
	"github.com/edilcheck/edilcheck/internal/types"
	"github.com/edilcheck/edilcheck/internal/ui"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "data",
	Short:   "Write all records to a JSON, JSONL, YAML or XLSX file",
	Long: `Write the account's workers, sites, time entries and payments to a file.
The format is taken from --format or the output file's extension. Without -o
the text formats are written to stdout.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		output, _ := cmd.Flags().GetString("output")
		formatArg, _ := cmd.Flags().GetString("format")

		var (
			format export.Format
			err    error
		)
		switch {
		case formatArg != "":
			format, err = export.ParseFormat(formatArg)
		case output != "":
			format, err = export.FormatFromPath(output)
		default:
			format = export.FormatJSON
		}
		if err != nil {
			fatalf("%v", err)
		}

		c, err := openService().Container(ctx)
		if err != nil {
			fatalf("%v", err)
		}

		if output == "" {
			if format == export.FormatXLSX {
				fatalf("xlsx export needs an output file (-o)")
			}
			if err := export.Write(os.Stdout, c, format); err != nil {
				fatalf("%v", err)
			}
			return
		}

		if err := export.WriteFile(output, c, format); err != nil {
			fatalf("%v", err)
		}
		counts := c.Counts()
		fmt.Fprintf(os.Stderr, "%s Exported %d workers, %d sites, %d time entries, %d payments to %s\n",
			ui.RenderPass("✓"), counts["workers"], counts["sites"], counts["timeEntries"], counts["payments"], output)
	},
}

var importCmd = &cobra.Command{
	Use:     "import FILE",
	GroupID: "data",
	Short:   "Replace all records with the contents of a file",
	Long: `Replace the account's records with those in FILE (json, jsonl, yaml or
xlsx, by extension). The local data is overwritten; run "edil export" first to
keep a copy.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		c, err := export.ReadFile(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		if err := openService().ReplaceAll(ctx, c); err != nil {
			fatalf("%v", err)
		}
		counts := c.Counts()
		fmt.Printf("%s Imported %d workers, %d sites, %d time entries, %d payments\n",
			ui.RenderPass("✓"), counts["workers"], counts["sites"], counts["timeEntries"], counts["payments"])
	},
}

var snapshotCmd = &cobra.Command{
	Use:     "snapshot",
	GroupID: "data",
	Short:   "Store and retrieve timestamped snapshots",
	Long: `Snapshots are JSON copies of the account's records kept in the S3 bucket
snapshot.bucket, or in the directory snapshot.dir when no bucket is set.`,
}

var snapshotPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload a snapshot of the local data",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		snaps := openSnapshots(ctx)
		c, err := openService().Container(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		key, err := snaps.Push(ctx, account(), c)
		if err != nil {
			fatalf("failed to push snapshot: %v", err)
		}
		fmt.Printf("%s Snapshot stored as %s\n", ui.RenderPass("✓"), key)
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the account's snapshots",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		keys, err := openSnapshots(ctx).List(ctx, account())
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(keys)
			return
		}
		if len(keys) == 0 {
			fmt.Println(ui.RenderMuted("No snapshots"))
			return
		}
		for _, k := range keys {
			fmt.Println(k)
		}
	},
}

var snapshotPullCmd = &cobra.Command{
	Use:   "pull [KEY]",
	Short: "Replace local data with a snapshot (default the newest)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		snaps := openSnapshots(ctx)

		var (
			key string
			c   *types.Container
			err error
		)
		if len(args) == 1 {
			key = args[0]
			c, err = snaps.Get(ctx, key)
		} else {
			key, c, err = snaps.Latest(ctx, account())
		}
		if err != nil {
			fatalf("%v", err)
		}
		if err := openService().ReplaceAll(ctx, c); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Local data replaced with %s\n", ui.RenderPass("✓"), key)
	},
}

// openSnapshots picks the S3 bucket or the local snapshot directory.
func openSnapshots(ctx context.Context) *snapshot.Snapshots {
	if cfg.Snapshot.Bucket != "" {
		store, err := snapshot.NewS3Store(ctx, cfg.Snapshot.Bucket, cfg.Snapshot.Region)
		if err != nil {
			fatalf("%v", err)
		}
		return snapshot.New(store, cfg.Snapshot.Prefix)
	}

	dir := cfg.Snapshot.Dir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(cfg.DataPath), "snapshots")
	}
	return snapshot.New(snapshot.NewDirStore(dir), cfg.Snapshot.Prefix)
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Output file")
	exportCmd.Flags().StringP("format", "f", "", "json, jsonl, yaml or xlsx (default from -o extension, else json)")

	snapshotCmd.AddCommand(snapshotPushCmd, snapshotListCmd, snapshotPullCmd)
	rootCmd.AddCommand(exportCmd, importCmd, snapshotCmd)
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"photosync/internal/api"
	"photosync/internal/cancel"
	"photosync/internal/config"
	"photosync/internal/ledger"
	"photosync/internal/logging"
	"photosync/internal/preflight"
	"photosync/internal/progress"
	"photosync/internal/syncer"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var (
		albumNames   []string
		force        bool
		dryRun       bool
		resumeFailed bool
		concurrency  int
		maxRetries   int
		sizeLimitMB  int64
		destDir      string
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "sync [album...]",
		Short: "Download albums from the remote library",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if destDir != "" {
				expanded, err := config.ExpandPath(destDir)
				if err != nil {
					return fmt.Errorf("resolve --dest: %w", err)
				}
				cfg.Sync.DestinationDir = expanded
				if err := cfg.EnsureDirectories(); err != nil {
					return err
				}
			}
			albumNames = append(albumNames, args...)

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}

			client := api.NewClient(cfg)

			if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg, client)); len(failed) > 0 {
				var lines []string
				for _, r := range failed {
					lines = append(lines, fmt.Sprintf("%s: %s", r.Name, r.Detail))
				}
				return fmt.Errorf("preflight failed:\n  %s", strings.Join(lines, "\n  "))
			}

			release, err := syncer.AcquireRunLock(cfg)
			if err != nil {
				return err
			}
			defer release()

			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			token := cancel.New()
			stopSignals := cancel.NotifySignals(token, func() {
				// Second interrupt: flush the ledger and terminate.
				_ = store.Close()
				release()
				os.Exit(exitInterrupted)
			})
			defer stopSignals()

			tracker := progress.NewTracker(progress.NewConsoleSink(cmd.OutOrStdout()), 0)

			opts := syncer.OptionsFromConfig(cfg)
			opts.Force = force
			opts.DryRun = dryRun
			opts.ResumeFailedOnly = resumeFailed
			opts.Verbose = verbose
			if cmd.Flags().Changed("concurrency") {
				opts.Concurrency = concurrency
			}
			if cmd.Flags().Changed("max-retries") {
				if maxRetries < 1 || maxRetries > config.MaxRetriesCeiling {
					return fmt.Errorf("--max-retries must be between 1 and %d", config.MaxRetriesCeiling)
				}
				opts.MaxRetries = maxRetries
			}
			if cmd.Flags().Changed("size-limit-mb") {
				opts.SizeLimitBytes = sizeLimitMB * 1024 * 1024
			}

			s := syncer.New(cfg, client, store, tracker, token, logger)
			reports, runErr := s.Run(cmd.Context(), opts, albumNames)

			out := cmd.OutOrStdout()
			for _, report := range reports {
				printReport(out, report)
			}
			return runErr
		},
	}

	cmd.Flags().StringSliceVarP(&albumNames, "album", "a", nil, "Album title or ID to sync (repeatable; default all)")
	cmd.Flags().BoolVar(&force, "force", false, "Re-download assets even when a matching local file exists")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be downloaded without writing anything")
	cmd.Flags().BoolVar(&resumeFailed, "resume-failed", false, "Only retry assets recorded as failed")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Concurrent downloads (1-50)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Attempts per asset (1-10)")
	cmd.Flags().Int64Var(&sizeLimitMB, "size-limit-mb", 0, "Skip assets larger than this many MB (0 = unlimited)")
	cmd.Flags().StringVar(&destDir, "dest", "", "Destination directory (overrides the configured one)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log each downloaded asset")

	return cmd
}

func printReport(out io.Writer, report *syncer.Report) {
	status := "done"
	if report.Cancelled {
		status = "cancelled"
	}
	fmt.Fprintf(out, "\n%s (%s): %d succeeded, %d skipped, %d failed, %s transferred in %s\n",
		report.AlbumTitle,
		status,
		report.Counts.Succeeded,
		report.Counts.Skipped,
		report.Counts.Failed,
		humanize.IBytes(uint64(report.TransferredBytes)),
		report.Duration.Round(time.Millisecond),
	)

	if len(report.Failures) == 0 {
		return
	}
	rows := make([][]string, 0, len(report.Failures))
	for _, failure := range report.Failures {
		rows = append(rows, []string{failure.Name, failure.AssetID, failure.Error})
	}
	fmt.Fprintln(out, renderTable([]string{"NAME", "ASSET ID", "ERROR"}, rows))
	if report.MoreFailures > 0 {
		fmt.Fprintf(out, "...and %d more failures; rerun with --resume-failed\n", report.MoreFailures)
	}
}

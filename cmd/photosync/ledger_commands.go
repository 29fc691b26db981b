package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"photosync/internal/config"
	"photosync/internal/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and maintain the download ledger",
	}

	ledgerCmd.AddCommand(newLedgerStatsCommand(ctx))
	ledgerCmd.AddCommand(newLedgerFailedCommand(ctx))
	ledgerCmd.AddCommand(newLedgerCleanupCommand(ctx))
	ledgerCmd.AddCommand(newLedgerBackupCommand(ctx))
	ledgerCmd.AddCommand(newLedgerBackupsCommand(ctx))
	ledgerCmd.AddCommand(newLedgerRestoreCommand(ctx))

	return ledgerCmd
}

func withStore(ctx *commandContext, fn func(cfg *config.Config, store *ledger.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := ledger.Open(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

func newLedgerStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show outcome counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(_ *config.Config, store *ledger.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}

				rows := [][]string{
					{"downloaded", strconv.Itoa(stats[ledger.StatusDownloaded])},
					{"failed", strconv.Itoa(stats[ledger.StatusFailed])},
					{"skipped", strconv.Itoa(stats[ledger.StatusSkipped])},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"STATUS", "COUNT"}, rows, 2))
				return nil
			})
		},
	}
}

func newLedgerFailedCommand(ctx *commandContext) *cobra.Command {
	var albumID string

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List assets recorded as failed for an album",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(albumID) == "" {
				return fmt.Errorf("--album is required")
			}
			return withStore(ctx, func(_ *config.Config, store *ledger.Store) error {
				ids, err := store.ListFailed(cmd.Context(), albumID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					fmt.Fprintln(out, "No failed assets recorded")
					return nil
				}
				for _, id := range ids {
					fmt.Fprintln(out, id)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&albumID, "album", "a", "", "Album ID to inspect")
	return cmd
}

func newLedgerCleanupCommand(ctx *commandContext) *cobra.Command {
	var (
		days       int
		onlyFailed bool
		albumID    string
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete ledger rows older than the retention horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(cfg *config.Config, store *ledger.Store) error {
				retention := days
				if !cmd.Flags().Changed("days") {
					retention = cfg.Sync.LedgerRetentionDays
				}
				deleted, err := store.Purge(cmd.Context(), retention, onlyFailed, strings.TrimSpace(albumID))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d ledger rows older than %d days\n", deleted, retention)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Age threshold in days (default from config)")
	cmd.Flags().BoolVar(&onlyFailed, "only-failed", false, "Only delete failed rows")
	cmd.Flags().StringVarP(&albumID, "album", "a", "", "Restrict cleanup to one album ID")
	return cmd
}

func newLedgerBackupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a point-in-time copy of the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(_ *config.Config, store *ledger.Store) error {
				path, err := store.Backup(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", path)
				return nil
			})
		},
	}
}

func newLedgerBackupsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List ledger backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(_ *config.Config, store *ledger.Store) error {
				backups, err := store.ListBackups()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(backups) == 0 {
					fmt.Fprintln(out, "No backups found")
					return nil
				}
				rows := make([][]string, 0, len(backups))
				for _, backup := range backups {
					rows = append(rows, []string{
						backup.Name,
						humanize.IBytes(uint64(backup.Size)),
						backup.CreatedAt.Format(time.RFC3339),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"NAME", "SIZE", "CREATED"}, rows, 2))
				return nil
			})
		},
	}
}

func newLedgerRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup>",
		Short: "Replace the live ledger with a backup",
		Long:  "Replace the live ledger with the named backup. The current ledger is snapshotted first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(cfg *config.Config, store *ledger.Store) error {
				target := args[0]
				if !filepath.IsAbs(target) && !strings.ContainsRune(target, filepath.Separator) {
					target = filepath.Join(cfg.BackupDir(), target)
				}
				if err := store.Restore(cmd.Context(), target); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ledger restored from %s\n", target)
				return nil
			})
		},
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mamadbah2/vitrine/internal/app"
	"github.com/mamadbah2/vitrine/internal/domain/models"
)

func newBackupCmd(opts *options) *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage encrypted ledger snapshots",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Snapshot the current ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				scope := opts.Scope()
				record, err := a.Backups.CreateBackup(ctx, scope, a.Production.LedgerPath(scope))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%d bytes)\n", record.FileName, record.EncryptedSize)
				return nil
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(_ context.Context, a *app.App) error {
				records, err := a.Backups.ListBackups(opts.Scope())
				if err != nil {
					return err
				}
				return printBackups(cmd.OutOrStdout(), records)
			})
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify [name]",
		Short: "Check a snapshot's size and checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(_ context.Context, a *app.App) error {
				scope := opts.Scope()
				record, err := a.Backups.Find(scope, args[0])
				if err != nil {
					return err
				}
				if !a.Backups.VerifyIntegrity(scope, *record) {
					return fmt.Errorf("%w: %s", models.ErrIntegrity, record.FileName)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is intact\n", record.FileName)
				return nil
			})
		},
	}

	restoreCmd := &cobra.Command{
		Use:   "restore [name]",
		Short: "Replace the ledger with a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				scope := opts.Scope()
				record, err := a.Backups.Find(scope, args[0])
				if err != nil {
					return err
				}
				if err := a.Production.RestoreBackup(ctx, scope, *record); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ledger of %s restored from %s\n", scope, record.FileName)
				return nil
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [name]",
		Short: "Remove a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(_ context.Context, a *app.App) error {
				scope := opts.Scope()
				record, err := a.Backups.Find(scope, args[0])
				if err != nil {
					return err
				}
				return a.Backups.DeleteBackup(scope, *record)
			})
		},
	}

	backupCmd.AddCommand(createCmd, listCmd, verifyCmd, restoreCmd, deleteCmd)
	return backupCmd
}

func printBackups(out io.Writer, records []models.BackupRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(out, "no backups")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCREATED\tSIZE\tSOURCE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.FileName, r.Timestamp.Local().Format(time.DateTime), r.OriginalSize, r.SourceName)
	}
	return w.Flush()
}

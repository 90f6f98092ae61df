package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mamadbah2/vitrine/internal/app"
	"github.com/mamadbah2/vitrine/internal/domain/models"
	"github.com/mamadbah2/vitrine/internal/service/production"
)

func newLedgerCmd(opts *options) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and maintain the production ledger of a scope",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print today's production map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				session, err := a.Production.Open(ctx, opts.Scope())
				if err != nil {
					return err
				}
				return printSession(cmd.OutOrStdout(), session)
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Blank the day's quantities, keeping the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Production.ClearDay(ctx, opts.Scope()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ledger of %s cleared\n", opts.Scope())
				return nil
			})
		},
	}

	regenerateCmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Rebuild the ledger from the default catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				m, err := a.Production.Regenerate(ctx, opts.Scope())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ledger of %s regenerated with %d products\n", opts.Scope(), len(m.Items))
				return nil
			})
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the ledger into the export directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(_ context.Context, a *app.App) error {
				home, _ := os.UserHomeDir()
				scope := opts.Scope()
				path, err := a.Reporting.ExportLedger(scope, a.Production.LedgerPath(scope), home)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}

	ledgerCmd.AddCommand(showCmd, clearCmd, regenerateCmd, exportCmd)
	return ledgerCmd
}

func printSession(out io.Writer, session *production.Session) error {
	m := session.Map
	fmt.Fprintf(out, "%s  %s %s  next slot %d (%s)\n\n", session.Scope, m.Weekday, m.Date, session.NextSlot, session.Source)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"CATEGORY", "PRODUCT"}
	for i := 1; i <= models.MaxSlots; i++ {
		header = append(header, fmt.Sprintf("SLOT %d", i))
	}
	header = append(header, "LOSSES", "SURPLUS")
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, item := range m.Items {
		cols := []string{item.Category, item.Product}
		for i := 1; i <= models.MaxSlots; i++ {
			slot, ok := item.SlotAt(i)
			if !ok || !slot.Filled() {
				cols = append(cols, "-")
				continue
			}
			cols = append(cols, fmt.Sprintf("%d@%s", slot.Quantity, slot.Timestamp))
		}
		cols = append(cols, fmt.Sprint(item.Losses), fmt.Sprint(item.Surplus))
		fmt.Fprintln(w, strings.Join(cols, "\t"))
	}
	return w.Flush()
}

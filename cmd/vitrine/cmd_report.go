package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mamadbah2/vitrine/internal/app"
)

func newReportCmd(opts *options) *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Production report delivery",
	}

	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Mail the ledger to the configured recipients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Production.SendReport(ctx, opts.Scope()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "report of %s sent\n", opts.Scope())
				return nil
			})
		},
	}

	reportCmd.AddCommand(sendCmd)
	return reportCmd
}

func newCacheCmd(opts *options) *cobra.Command {
	var all bool

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Daily cache maintenance",
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop cached state so the next read comes from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(_ context.Context, a *app.App) error {
				if all {
					return a.Cache.ClearAll()
				}
				return a.Cache.ClearScope(opts.Scope())
			})
		},
	}
	clearCmd.Flags().BoolVar(&all, "all", false, "clear every scope")

	cacheCmd.AddCommand(clearCmd)
	return cacheCmd
}

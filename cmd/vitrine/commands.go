package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mamadbah2/vitrine/internal/app"
	"github.com/mamadbah2/vitrine/internal/config"
	"github.com/mamadbah2/vitrine/internal/domain/models"
	"github.com/mamadbah2/vitrine/pkg/logger"
)

// options are the persistent flags shared by every command.
type options struct {
	envFile string
	scope   string
}

func (o *options) Scope() models.Scope {
	return models.NewScope(o.scope)
}

// bootstrap loads the configuration and wires the application. The caller
// must Close the returned App.
func (o *options) bootstrap(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	base, err := logger.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(base)

	a, err := app.New(ctx, cfg, base)
	if err != nil {
		_ = base.Sync()
		return nil, err
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "vitrine",
		Short: "Daily production ledger for the bakery counter",
		Long: `vitrine keeps each store's daily production map in a spreadsheet ledger,
caches the working day, and keeps encrypted snapshots of the ledger.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "path to a .env file (defaults to ./.env when present)")
	root.PersistentFlags().StringVar(&opts.scope, "scope", "", "user or store the command applies to")

	root.AddCommand(
		newServeCmd(opts),
		newLedgerCmd(opts),
		newBackupCmd(opts),
		newReportCmd(opts),
		newCacheCmd(opts),
	)
	return root
}

// withApp runs fn against a freshly wired App and closes it afterwards.
func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := opts.bootstrap(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			a.Logger.Error("failed to close application", zap.Error(err))
		}
		_ = a.Logger.Sync()
	}()

	return fn(ctx, a)
}

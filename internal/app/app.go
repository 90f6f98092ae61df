// Package app wires the storage, services and HTTP surface from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/vitrine/internal/config"
	"github.com/mamadbah2/vitrine/internal/repository/cache"
	"github.com/mamadbah2/vitrine/internal/repository/mongodb"
	"github.com/mamadbah2/vitrine/internal/repository/sheets"
	"github.com/mamadbah2/vitrine/internal/scheduler"
	"github.com/mamadbah2/vitrine/internal/security"
	"github.com/mamadbah2/vitrine/internal/server/handlers"
	"github.com/mamadbah2/vitrine/internal/server/router"
	"github.com/mamadbah2/vitrine/internal/service/backup"
	"github.com/mamadbah2/vitrine/internal/service/production"
	"github.com/mamadbah2/vitrine/internal/service/reporting"
	"github.com/mamadbah2/vitrine/pkg/clients/mailrelay"
	"github.com/mamadbah2/vitrine/pkg/logger"
)

const connectTimeout = 10 * time.Second

// App holds every long-lived component.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Encryption *security.Service
	Cache      *cache.DailyCache
	Backups    *backup.Manager
	Reporting  *reporting.Service
	Production *production.Service

	db      *badger.DB
	closers []func(context.Context) error
}

// New builds the application. External services are only contacted when
// configured.
func New(ctx context.Context, cfg *config.Config, base *zap.Logger) (*App, error) {
	if base == nil {
		base = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: base}

	keys := security.NewFileKeyStore(cfg.Cache.KeyFile, logger.Named(base, "security.keys"))
	if !keys.Available() {
		base.Warn("encryption key unavailable, rollover keeps plaintext copies and encrypted cache is disabled", zap.Error(keys.Err()))
	}
	a.Encryption = security.NewService(keys, logger.Named(base, "security"))

	db, err := cache.Open(cache.Config{
		Path:       cfg.Cache.Dir,
		SyncWrites: true,
		Logger:     logger.Named(base, "badger"),
	})
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })

	var cacheOpts []cache.Option
	if cfg.Cache.Encrypted {
		cacheOpts = append(cacheOpts, cache.WithEncryption(a.Encryption, cfg.Cache.AllowPlaintext))
	}
	a.Cache = cache.New(db, logger.Named(base, "cache"), cacheOpts...)

	a.Backups = backup.NewManager(backup.Config{
		Dir:       cfg.BackupDir(),
		Retention: cfg.Backup.Retention,
		Interval:  cfg.Backup.Interval,
	}, a.Encryption, logger.Named(base, "backup"))

	var mailer reporting.Mailer
	if cfg.Mail.RelayURL != "" {
		mailer = mailrelay.NewClient(cfg.Mail)
	}
	a.Reporting = reporting.NewService(mailer, cfg.Mail.Recipients, cfg.Settings(), logger.Named(base, "svc.reporting"))

	opts := []production.Option{
		production.WithBackups(a.Backups),
		production.WithReporter(a.Reporting),
	}

	if cfg.MongoDB.URI != "" {
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		mongoRepo, err := mongodb.NewMongoDBRepository(connectCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName)
		cancel()
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("init mongodb repository: %w", err)
		}
		a.closers = append(a.closers, mongoRepo.Close)
		opts = append(opts, production.WithArchive(mongoRepo))
	}

	if cfg.Sheets.SpreadsheetID != "" {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, logger.Named(base, "repo.sheets"))
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("init sheets repository: %w", err)
		}
		opts = append(opts, production.WithMirror(sheets.NewMirror(sheetsRepo, logger.Named(base, "repo.sheets.mirror"))))
	}

	a.Production = production.NewService(production.Config{
		DataDir:        cfg.Storage.DataDir,
		LedgerFileName: cfg.Storage.LedgerFileName,
		AutoRollover:   cfg.Storage.AutoRollover,
		AutoEmail:      cfg.Reporting.AutoEmail,
	}, a.Cache, logger.Named(base, "svc.production"), opts...)

	if cfg.Cache.Encrypted {
		a.migrateCache()
	}

	return a, nil
}

// migrateCache re-seals plaintext entries left by a build without encryption.
func (a *App) migrateCache() {
	if !a.Encryption.IsAvailable() {
		return
	}
	scopes, err := a.Production.Scopes()
	if err != nil {
		a.Logger.Warn("cannot list scopes for cache migration", zap.Error(err))
		return
	}
	for _, scope := range scopes {
		if _, err := a.Cache.MigrateToEncrypted(scope); err != nil {
			a.Logger.Warn("cache migration failed", zap.String("scope", scope.String()), zap.Error(err))
		}
	}
}

// Router builds the HTTP engine.
func (a *App) Router() *gin.Engine {
	home, err := os.UserHomeDir()
	if err != nil {
		a.Logger.Warn("home directory unknown, documents and downloads exports unavailable", zap.Error(err))
	}
	return router.New(
		handlers.NewProductionHandler(a.Production, a.Reporting, home, logger.Named(a.Logger, "handlers.production")),
		handlers.NewBackupHandler(a.Backups, a.Production, logger.Named(a.Logger, "handlers.backup")),
		logger.Named(a.Logger, "router"),
	)
}

// Scheduler builds the cron jobs.
func (a *App) Scheduler() *scheduler.Scheduler {
	return scheduler.NewScheduler(scheduler.Config{
		BackupSchedule: a.Config.Backup.CheckSchedule,
		ReportSchedule: a.Config.Reporting.CronSchedule,
		Location:       a.Config.Location(),
		AutoBackup:     a.Config.Backup.Auto,
		AutoEmail:      a.Config.Reporting.AutoEmail,
	}, a.Production, a.Backups, logger.Named(a.Logger, "scheduler"))
}

// Close waits for background work and releases resources in reverse order.
func (a *App) Close(ctx context.Context) error {
	if a.Production != nil {
		a.Production.Wait()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

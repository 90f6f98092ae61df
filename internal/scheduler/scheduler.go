package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/vitrine/internal/domain/models"
)

const jobTimeout = 2 * time.Minute

// Production exposes the scopes and ledgers the jobs work on.
type Production interface {
	Scopes() ([]models.Scope, error)
	LedgerPath(scope models.Scope) string
	SendReport(ctx context.Context, scope models.Scope) error
}

// BackupRunner creates snapshots when they are due.
type BackupRunner interface {
	AutoBackupIfDue(ctx context.Context, scope models.Scope, ledgerPath string) (bool, error)
}

// Config selects the job schedules.
type Config struct {
	BackupSchedule string
	ReportSchedule string
	Location       *time.Location
	AutoBackup     bool
	AutoEmail      bool
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron       *cron.Cron
	cfg        Config
	production Production
	backups    BackupRunner
	logger     *zap.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(cfg Config, production Production, backups BackupRunner, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(cfg.Location)),
		cfg:        cfg,
		production: production,
		backups:    backups,
		logger:     logger,
	}
}

// Start registers the enabled jobs, runs the backup check once and starts the cron loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("location", s.cfg.Location.String()))

	if s.cfg.AutoBackup {
		if _, err := s.cron.AddFunc(s.cfg.BackupSchedule, s.job("backup check", s.RunBackups)); err != nil {
			return fmt.Errorf("schedule backup check %q: %w", s.cfg.BackupSchedule, err)
		}
	}
	if s.cfg.AutoEmail {
		if _, err := s.cron.AddFunc(s.cfg.ReportSchedule, s.job("daily report", s.SendReports)); err != nil {
			return fmt.Errorf("schedule daily report %q: %w", s.cfg.ReportSchedule, err)
		}
	}

	if s.cfg.AutoBackup {
		s.job("startup backup check", s.RunBackups)()
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) job(name string, run func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if err := run(ctx); err != nil {
			s.logger.Error(name+" failed", zap.Error(err))
		}
	}
}

// RunBackups creates a snapshot for every scope whose last one is older than
// the backup interval.
func (s *Scheduler) RunBackups(ctx context.Context) error {
	scopes, err := s.production.Scopes()
	if err != nil {
		return err
	}

	created := 0
	for _, scope := range scopes {
		ok, err := s.backups.AutoBackupIfDue(ctx, scope, s.production.LedgerPath(scope))
		if err != nil {
			s.logger.Error("automatic backup failed", zap.String("scope", scope.String()), zap.Error(err))
			continue
		}
		if ok {
			created++
		}
	}

	s.logger.Info("backup check finished", zap.Int("scopes", len(scopes)), zap.Int("created", created))
	return nil
}

// SendReports mails the ledger of every scope.
func (s *Scheduler) SendReports(ctx context.Context) error {
	scopes, err := s.production.Scopes()
	if err != nil {
		return err
	}

	for _, scope := range scopes {
		if err := s.production.SendReport(ctx, scope); err != nil {
			s.logger.Error("failed to send daily report", zap.String("scope", scope.String()), zap.Error(err))
			continue
		}
		s.logger.Info("daily report sent", zap.String("scope", scope.String()))
	}
	return nil
}

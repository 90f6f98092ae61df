package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mamadbah2/vitrine/internal/domain/models"
)

type fakeProduction struct {
	mu      sync.Mutex
	scopes  []models.Scope
	sent    []models.Scope
	sendErr map[models.Scope]error
}

func (f *fakeProduction) Scopes() ([]models.Scope, error) { return f.scopes, nil }

func (f *fakeProduction) LedgerPath(scope models.Scope) string {
	return "/data/" + scope.String() + "/mapa_producao.xlsx"
}

func (f *fakeProduction) SendReport(_ context.Context, scope models.Scope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErr[scope]; err != nil {
		return err
	}
	f.sent = append(f.sent, scope)
	return nil
}

type fakeBackups struct {
	mu    sync.Mutex
	paths []string
	fail  models.Scope
}

func (f *fakeBackups) AutoBackupIfDue(ctx context.Context, scope models.Scope, ledgerPath string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return false, errors.New("job without deadline")
	}
	if scope == f.fail {
		return false, models.ErrStorageUnavailable
	}
	f.paths = append(f.paths, ledgerPath)
	return true, nil
}

func TestStartRunsBackupCheckAndStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	production := &fakeProduction{scopes: []models.Scope{"loja-1", "loja-2"}}
	backups := &fakeBackups{}

	s := NewScheduler(Config{
		BackupSchedule: "@every 1h",
		ReportSchedule: "0 21 * * *",
		Location:       time.UTC,
		AutoBackup:     true,
		AutoEmail:      true,
	}, production, backups, nil)

	require.NoError(t, s.Start())
	s.Stop()

	assert.Equal(t, []string{"/data/loja-1/mapa_producao.xlsx", "/data/loja-2/mapa_producao.xlsx"}, backups.paths)
	assert.Len(t, s.cron.Entries(), 2)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(Config{BackupSchedule: "every tuesday", AutoBackup: true}, &fakeProduction{}, &fakeBackups{}, nil)
	assert.Error(t, s.Start())
}

func TestDisabledJobsAreNotScheduled(t *testing.T) {
	defer goleak.VerifyNone(t)

	backups := &fakeBackups{}
	s := NewScheduler(Config{BackupSchedule: "@every 1h", ReportSchedule: "0 21 * * *"}, &fakeProduction{scopes: []models.Scope{"loja-1"}}, backups, nil)

	require.NoError(t, s.Start())
	s.Stop()

	assert.Empty(t, s.cron.Entries())
	assert.Empty(t, backups.paths)
}

func TestRunBackupsContinuesAfterFailure(t *testing.T) {
	backups := &fakeBackups{fail: "loja-1"}
	s := NewScheduler(Config{}, &fakeProduction{scopes: []models.Scope{"loja-1", "loja-2"}}, backups, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, s.RunBackups(ctx))
	assert.Equal(t, []string{"/data/loja-2/mapa_producao.xlsx"}, backups.paths)
}

func TestSendReportsContinuesAfterFailure(t *testing.T) {
	production := &fakeProduction{
		scopes:  []models.Scope{"loja-1", "loja-2"},
		sendErr: map[models.Scope]error{"loja-1": errors.New("relay down")},
	}
	s := NewScheduler(Config{}, production, &fakeBackups{}, nil)

	require.NoError(t, s.SendReports(context.Background()))
	assert.Equal(t, []models.Scope{"loja-2"}, production.sent)
}

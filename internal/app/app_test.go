package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/vitrine/internal/config"
	"github.com/mamadbah2/vitrine/internal/domain/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Server:    config.ServerConfig{Port: "0"},
		Storage:   config.StorageConfig{DataDir: dir, LedgerFileName: "mapa_producao.xlsx", AutoRollover: true, ExportDir: config.ExportDefault},
		Cache:     config.CacheConfig{Dir: filepath.Join(dir, "cache"), Encrypted: true, KeyFile: filepath.Join(dir, "keys", "device.key")},
		Backup:    config.BackupConfig{Retention: 5, Interval: 24 * time.Hour, CheckSchedule: "@every 1h", Auto: true},
		Mail:      config.MailConfig{Timeout: 10 * time.Second},
		Reporting: config.ReportingConfig{CronSchedule: "0 21 * * *", Timezone: "UTC"},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewWiresLocalComponents(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close(ctx)) }()

	assert.True(t, a.Encryption.IsAvailable())

	first := models.DefaultCatalog()[0].Products[0]
	session, err := a.Production.ConfirmSlot(ctx, "loja-1", map[string]int{first: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, session.NextSlot)

	created, err := a.Backups.AutoBackupIfDue(ctx, "loja-1", a.Production.LedgerPath("loja-1"))
	require.NoError(t, err)
	assert.True(t, created)

	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/scopes/loja-1/backups", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	_, err = os.Stat(filepath.Join(cfg.Storage.DataDir, "loja-1", "mapa_producao.xlsx"))
	assert.NoError(t, err)
}

func TestSchedulerHonoursToggles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.Auto = false
	ctx := context.Background()

	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close(ctx)) }()

	s := a.Scheduler()
	require.NoError(t, s.Start())
	s.Stop()
}

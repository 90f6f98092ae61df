package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/vitrine/internal/config"
	"github.com/mamadbah2/vitrine/internal/domain/models"
	"github.com/mamadbah2/vitrine/internal/repository/cache"
	"github.com/mamadbah2/vitrine/internal/security"
	"github.com/mamadbah2/vitrine/internal/server/handlers"
	"github.com/mamadbah2/vitrine/internal/service/backup"
	"github.com/mamadbah2/vitrine/internal/service/production"
	"github.com/mamadbah2/vitrine/internal/service/reporting"
)

type testServer struct {
	engine    *gin.Engine
	exportDir string
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	dir := t.TempDir()
	clock := time.Date(2026, time.October, 19, 8, 30, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	db, err := cache.Open(cache.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	enc := security.NewService(security.NewFileKeyStore(filepath.Join(dir, "keys", "device.key"), nil), nil)
	backups := backup.NewManager(backup.Config{Dir: filepath.Join(dir, "backups")}, enc, nil, backup.WithClock(now))

	exportDir := filepath.Join(dir, "export")
	reports := reporting.NewService(nil, nil, config.Settings{ExportDir: exportDir}, nil, reporting.WithClock(now))

	svc := production.NewService(
		production.Config{
			DataDir:      filepath.Join(dir, "data"),
			AutoRollover: true,
			Catalog: []models.CatalogSection{
				{Category: "CROISSANTS", Products: []string{"Croissant", "Croissant Misto"}},
			},
		},
		cache.New(db, nil, cache.WithEncryption(enc, false), cache.WithClock(now)),
		nil,
		production.WithClock(now),
		production.WithBackups(backups),
		production.WithReporter(reports),
	)
	t.Cleanup(svc.Wait)

	engine := New(
		handlers.NewProductionHandler(svc, reports, "/home/ana", nil),
		handlers.NewBackupHandler(backups, svc, nil),
		nil,
	)
	return &testServer{engine: engine, exportDir: exportDir}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

const base = "/v1/scopes/loja-1"

func TestHealthAndMetrics(t *testing.T) {
	s := setupServer(t)

	w := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))

	w = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProductionDay(t *testing.T) {
	s := setupServer(t)

	w := s.do(t, http.MethodGet, base+"/production", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session := decode[production.Session](t, w)
	assert.Equal(t, 1, session.NextSlot)
	assert.Equal(t, "19/10/2026", session.Map.Date)

	w = s.do(t, http.MethodPost, base+"/slots", gin.H{"quantities": gin.H{"Croissant": 12}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session = decode[production.Session](t, w)
	assert.Equal(t, 2, session.NextSlot)
	assert.Equal(t, 12, session.Map.Item("Croissant").TotalProduced())

	w = s.do(t, http.MethodPost, base+"/slots", gin.H{"quantities": gin.H{"Bolo Rei": 1}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base+"/slots", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, base+"/items/Croissant/reconciliation", gin.H{"losses": 10, "surplus": 5})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	rejected := decode[struct {
		Violations []struct {
			Product  string `json:"product"`
			Produced int    `json:"produced"`
		} `json:"violations"`
	}](t, w)
	require.Len(t, rejected.Violations, 1)
	assert.Equal(t, "Croissant", rejected.Violations[0].Product)
	assert.Equal(t, 12, rejected.Violations[0].Produced)

	w = s.do(t, http.MethodPut, base+"/items/Croissant/reconciliation", gin.H{"losses": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, base+"/items/Croissant/reconciliation", gin.H{"losses": 2, "surplus": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	item := decode[models.ProductionItem](t, w)
	assert.Equal(t, 2, item.Losses)

	w = s.do(t, http.MethodPost, base+"/reconciliation/commit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, base+"/ledger/file", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "mapa_producao.xlsx")
	assert.NotZero(t, w.Body.Len())

	w = s.do(t, http.MethodPost, base+"/ledger/export", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	exported := decode[map[string]string](t, w)
	assert.FileExists(t, exported["path"])
	assert.Equal(t, s.exportDir, filepath.Dir(exported["path"]))

	w = s.do(t, http.MethodPost, base+"/report", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(t, http.MethodPost, base+"/ledger/clear", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, base+"/production", nil)
	session = decode[production.Session](t, w)
	assert.Zero(t, session.Map.Item("Croissant").TotalProduced())

	w = s.do(t, http.MethodPost, base+"/ledger/regenerate", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLedgerFileMissing(t *testing.T) {
	s := setupServer(t)

	w := s.do(t, http.MethodGet, "/v1/scopes/nobody/ledger/file", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBackups(t *testing.T) {
	s := setupServer(t)

	w := s.do(t, http.MethodPost, base+"/backups", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "no ledger yet")

	w = s.do(t, http.MethodPost, base+"/slots", gin.H{"quantities": gin.H{"Croissant": 12}})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, base+"/backups", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	record := decode[models.BackupRecord](t, w)

	w = s.do(t, http.MethodPost, base+"/slots", gin.H{"quantities": gin.H{"Croissant": 6}})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, base+"/backups", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[struct {
		Backups []models.BackupRecord `json:"backups"`
	}](t, w)
	require.Len(t, listed.Backups, 1)
	assert.Equal(t, record.FileName, listed.Backups[0].FileName)

	w = s.do(t, http.MethodPost, fmt.Sprintf("%s/backups/%s/verify", base, record.FileName), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["valid"])

	w = s.do(t, http.MethodPost, fmt.Sprintf("%s/backups/%s/restore", base, record.FileName), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, base+"/production", nil)
	session := decode[production.Session](t, w)
	assert.Equal(t, 12, session.Map.Item("Croissant").TotalProduced())

	w = s.do(t, http.MethodDelete, fmt.Sprintf("%s/backups/%s", base, record.FileName), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodPost, fmt.Sprintf("%s/backups/%s/verify", base, record.FileName), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

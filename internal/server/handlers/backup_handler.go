package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/vitrine/internal/domain/models"
)

// BackupService is the snapshot surface used over HTTP.
type BackupService interface {
	ListBackups(scope models.Scope) ([]models.BackupRecord, error)
	CreateBackup(ctx context.Context, scope models.Scope, ledgerPath string) (*models.BackupRecord, error)
	Find(scope models.Scope, fileName string) (*models.BackupRecord, error)
	VerifyIntegrity(scope models.Scope, record models.BackupRecord) bool
	DeleteBackup(scope models.Scope, record models.BackupRecord) error
}

// Restorer swaps a scope's ledger for a snapshot.
type Restorer interface {
	LedgerPath(scope models.Scope) string
	RestoreBackup(ctx context.Context, scope models.Scope, record models.BackupRecord) error
}

// BackupHandler exposes encrypted ledger snapshots.
type BackupHandler struct {
	backups  BackupService
	restorer Restorer
	logger   *zap.Logger
}

// NewBackupHandler constructs the HTTP handler adapter.
func NewBackupHandler(backups BackupService, restorer Restorer, logger *zap.Logger) *BackupHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupHandler{backups: backups, restorer: restorer, logger: logger}
}

// List returns the snapshots of a scope, newest first.
func (h *BackupHandler) List(c *gin.Context) {
	records, err := h.backups.ListBackups(scopeParam(c))
	if err != nil {
		writeError(c, h.logger, "failed to list backups", err)
		return
	}
	if records == nil {
		records = []models.BackupRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"backups": records})
}

// Create snapshots the current ledger.
func (h *BackupHandler) Create(c *gin.Context) {
	scope := scopeParam(c)
	record, err := h.backups.CreateBackup(c.Request.Context(), scope, h.restorer.LedgerPath(scope))
	if err != nil {
		writeError(c, h.logger, "failed to create backup", err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// Verify checks a snapshot's size and checksum.
func (h *BackupHandler) Verify(c *gin.Context) {
	scope := scopeParam(c)
	record, err := h.backups.Find(scope, c.Param("name"))
	if err != nil {
		writeError(c, h.logger, "backup lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"file_name": record.FileName, "valid": h.backups.VerifyIntegrity(scope, *record)})
}

// Restore replaces the ledger with a snapshot.
func (h *BackupHandler) Restore(c *gin.Context) {
	scope := scopeParam(c)
	record, err := h.backups.Find(scope, c.Param("name"))
	if err != nil {
		writeError(c, h.logger, "backup lookup failed", err)
		return
	}
	if err := h.restorer.RestoreBackup(c.Request.Context(), scope, *record); err != nil {
		writeError(c, h.logger, "failed to restore backup", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": record.FileName})
}

// Delete removes a snapshot.
func (h *BackupHandler) Delete(c *gin.Context) {
	scope := scopeParam(c)
	record, err := h.backups.Find(scope, c.Param("name"))
	if err != nil {
		writeError(c, h.logger, "backup lookup failed", err)
		return
	}
	if err := h.backups.DeleteBackup(scope, *record); err != nil {
		writeError(c, h.logger, "failed to delete backup", err)
		return
	}
	c.Status(http.StatusNoContent)
}

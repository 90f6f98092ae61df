package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/vitrine/internal/domain/models"
	"github.com/mamadbah2/vitrine/internal/service/production"
)

// ProductionService is the production surface used over HTTP.
type ProductionService interface {
	Open(ctx context.Context, scope models.Scope) (*production.Session, error)
	ConfirmSlot(ctx context.Context, scope models.Scope, quantities map[string]int) (*production.Session, error)
	SetReconciliation(ctx context.Context, scope models.Scope, product string, losses, surplus int) (*models.ProductionItem, error)
	CommitReconciliation(ctx context.Context, scope models.Scope) (*production.Session, error)
	ClearDay(ctx context.Context, scope models.Scope) error
	Regenerate(ctx context.Context, scope models.Scope) (*models.ProductionMap, error)
	SendReport(ctx context.Context, scope models.Scope) error
	LedgerPath(scope models.Scope) string
}

// Exporter copies a ledger to the export directory.
type Exporter interface {
	ExportLedger(scope models.Scope, ledgerPath, home string) (string, error)
}

// ProductionHandler exposes the production day of a scope.
type ProductionHandler struct {
	svc      ProductionService
	exporter Exporter
	home     string
	logger   *zap.Logger
}

// NewProductionHandler constructs the HTTP handler adapter. home resolves the
// documents and downloads export directories.
func NewProductionHandler(svc ProductionService, exporter Exporter, home string, logger *zap.Logger) *ProductionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductionHandler{svc: svc, exporter: exporter, home: home, logger: logger}
}

type confirmSlotRequest struct {
	Quantities map[string]int `json:"quantities" binding:"required"`
}

type reconciliationRequest struct {
	Losses  *int `json:"losses" binding:"required"`
	Surplus *int `json:"surplus" binding:"required"`
}

// Get returns today's session.
func (h *ProductionHandler) Get(c *gin.Context) {
	session, err := h.svc.Open(c.Request.Context(), scopeParam(c))
	if err != nil {
		writeError(c, h.logger, "failed to open production day", err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// ConfirmSlot records the next production slot.
func (h *ProductionHandler) ConfirmSlot(c *gin.Context) {
	var req confirmSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid slot payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	session, err := h.svc.ConfirmSlot(c.Request.Context(), scopeParam(c), req.Quantities)
	if err != nil {
		writeError(c, h.logger, "failed to confirm slot", err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// SetReconciliation stores the losses and surplus of one product.
func (h *ProductionHandler) SetReconciliation(c *gin.Context) {
	var req reconciliationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid reconciliation payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	item, err := h.svc.SetReconciliation(c.Request.Context(), scopeParam(c), c.Param("product"), *req.Losses, *req.Surplus)
	if err != nil {
		writeError(c, h.logger, "reconciliation rejected", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// CommitReconciliation writes the day's reconciliation to the ledger.
func (h *ProductionHandler) CommitReconciliation(c *gin.Context) {
	session, err := h.svc.CommitReconciliation(c.Request.Context(), scopeParam(c))
	if err != nil {
		writeError(c, h.logger, "failed to commit reconciliation", err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// ClearLedger blanks the day.
func (h *ProductionHandler) ClearLedger(c *gin.Context) {
	if err := h.svc.ClearDay(c.Request.Context(), scopeParam(c)); err != nil {
		writeError(c, h.logger, "failed to clear ledger", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RegenerateLedger rebuilds the ledger from the catalog.
func (h *ProductionHandler) RegenerateLedger(c *gin.Context) {
	m, err := h.svc.Regenerate(c.Request.Context(), scopeParam(c))
	if err != nil {
		writeError(c, h.logger, "failed to regenerate ledger", err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// DownloadLedger streams the ledger file.
func (h *ProductionHandler) DownloadLedger(c *gin.Context) {
	path := h.svc.LedgerPath(scopeParam(c))
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ledger not found"})
			return
		}
		writeError(c, h.logger, "failed to stat ledger", err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// ExportLedger copies the ledger into the configured export directory.
func (h *ProductionHandler) ExportLedger(c *gin.Context) {
	scope := scopeParam(c)
	target, err := h.exporter.ExportLedger(scope, h.svc.LedgerPath(scope), h.home)
	if err != nil {
		writeError(c, h.logger, "failed to export ledger", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": target})
}

// SendReport mails the ledger now.
func (h *ProductionHandler) SendReport(c *gin.Context) {
	if err := h.svc.SendReport(c.Request.Context(), scopeParam(c)); err != nil {
		writeError(c, h.logger, "failed to send report", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

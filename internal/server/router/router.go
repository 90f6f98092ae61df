package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mamadbah2/vitrine/internal/server/handlers"
)

const requestIDHeader = "X-Request-ID"

// New wires the Gin engine with required routes and middlewares.
func New(production *handlers.ProductionHandler, backups *handlers.BackupHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	scoped := r.Group("/v1/scopes/:scope")
	{
		scoped.GET("/production", production.Get)
		scoped.POST("/slots", production.ConfirmSlot)
		scoped.PUT("/items/:product/reconciliation", production.SetReconciliation)
		scoped.POST("/reconciliation/commit", production.CommitReconciliation)
		scoped.POST("/ledger/clear", production.ClearLedger)
		scoped.POST("/ledger/regenerate", production.RegenerateLedger)
		scoped.GET("/ledger/file", production.DownloadLedger)
		scoped.POST("/ledger/export", production.ExportLedger)
		scoped.POST("/report", production.SendReport)

		scoped.GET("/backups", backups.List)
		scoped.POST("/backups", backups.Create)
		scoped.POST("/backups/:name/verify", backups.Verify)
		scoped.POST("/backups/:name/restore", backups.Restore)
		scoped.DELETE("/backups/:name", backups.Delete)
	}

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		c.Next()

		logger.Info("request completed",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("scope", c.Param("scope")),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

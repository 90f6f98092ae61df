package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/vitrine/internal/domain/models"
	"github.com/mamadbah2/vitrine/internal/service/backup"
	"github.com/mamadbah2/vitrine/internal/service/production"
	"github.com/mamadbah2/vitrine/internal/service/reporting"
)

type violationResponse struct {
	Product  string `json:"product"`
	Losses   int    `json:"losses"`
	Surplus  int    `json:"surplus"`
	Produced int    `json:"produced"`
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvariantViolation), errors.Is(err, models.ErrIntegrity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrInvalidSlot),
		errors.Is(err, models.ErrUnknownProduct),
		errors.Is(err, production.ErrInvalidQuantity),
		errors.Is(err, production.ErrNothingToConfirm):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrSlotAlreadyFilled), errors.Is(err, production.ErrStaleLedger):
		return http.StatusConflict
	case errors.Is(err, backup.ErrBackupNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrStorageUnavailable), errors.Is(err, reporting.ErrMailUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
	} else {
		logger.Warn(msg, zap.Error(err))
	}

	body := gin.H{"error": err.Error()}
	if violations := models.Violations(err); len(violations) > 0 {
		out := make([]violationResponse, 0, len(violations))
		for _, v := range violations {
			out = append(out, violationResponse{Product: v.Product, Losses: v.Losses, Surplus: v.Surplus, Produced: v.Produced})
		}
		body["violations"] = out
	}
	c.JSON(status, body)
}

func scopeParam(c *gin.Context) models.Scope {
	return models.NewScope(c.Param("scope"))
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mamadbah2/vitrine/internal/domain/models"
	"github.com/mamadbah2/vitrine/internal/service/backup"
	"github.com/mamadbah2/vitrine/internal/service/production"
	"github.com/mamadbah2/vitrine/internal/service/reporting"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"violation", &models.InvariantViolation{Product: "Croissant", Losses: 9, Produced: 4}, http.StatusUnprocessableEntity},
		{"integrity", fmt.Errorf("restore: %w", models.ErrIntegrity), http.StatusUnprocessableEntity},
		{"unknown product", fmt.Errorf("%w: %q", models.ErrUnknownProduct, "Bolo Rei"), http.StatusBadRequest},
		{"negative quantity", production.ErrInvalidQuantity, http.StatusBadRequest},
		{"slot filled", models.ErrSlotAlreadyFilled, http.StatusConflict},
		{"previous day ledger", fmt.Errorf("%w: ledger is dated 19/10/2026", production.ErrStaleLedger), http.StatusConflict},
		{"missing backup", backup.ErrBackupNotFound, http.StatusNotFound},
		{"storage", models.ErrStorageUnavailable, http.StatusServiceUnavailable},
		{"mail", reporting.ErrMailUnavailable, http.StatusServiceUnavailable},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}

package sheets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/vitrine/internal/domain/models"
)

// MirrorRange is where confirmed slots are appended.
const MirrorRange = "Producao!A:G"

// Mirror copies confirmed production slots to a shared spreadsheet. It is a
// secondary copy; the local ledger stays authoritative.
type Mirror struct {
	repo   Repository
	logger *zap.Logger
}

// NewMirror wires a mirror on top of repo.
func NewMirror(repo Repository, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{repo: repo, logger: logger}
}

// RecordSlot appends one row per product filled in slotIndex.
func (m *Mirror) RecordSlot(ctx context.Context, scope models.Scope, pm *models.ProductionMap, slotIndex int) error {
	rows := SlotRows(scope, pm, slotIndex)
	if len(rows) == 0 {
		return nil
	}
	if err := m.repo.AppendRows(ctx, MirrorRange, rows); err != nil {
		return fmt.Errorf("mirror slot %d: %w", slotIndex, err)
	}
	m.logger.Debug("slot mirrored",
		zap.String("scope", scope.String()),
		zap.Int("slot", slotIndex),
		zap.Int("rows", len(rows)))
	return nil
}

// SlotRows renders the items filled in slotIndex as
// date, time, scope, category, product, slot, quantity.
func SlotRows(scope models.Scope, pm *models.ProductionMap, slotIndex int) [][]interface{} {
	if pm == nil {
		return nil
	}
	var rows [][]interface{}
	for _, item := range pm.Items {
		slot, ok := item.SlotAt(slotIndex)
		if !ok || !slot.Filled() {
			continue
		}
		rows = append(rows, []interface{}{
			pm.Date,
			slot.Timestamp,
			scope.String(),
			item.Category,
			item.Product,
			slotIndex,
			slot.Quantity,
		})
	}
	return rows
}

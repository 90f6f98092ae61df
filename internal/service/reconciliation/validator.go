package reconciliation

import (
	"errors"

	"github.com/mamadbah2/vitrine/internal/domain/models"
	"github.com/mamadbah2/vitrine/internal/metrics"
)

// Validate reports whether losses plus surplus fit within what the item produced.
func Validate(item models.ProductionItem, losses, surplus int) bool {
	if losses < 0 || surplus < 0 {
		return false
	}
	produced := item.TotalProduced()
	return losses <= produced && surplus <= produced-losses
}

// Check returns an *models.InvariantViolation when Validate fails.
func Check(item models.ProductionItem, losses, surplus int) error {
	if Validate(item, losses, surplus) {
		return nil
	}
	metrics.ReconciliationRejectionsTotal.Inc()
	return &models.InvariantViolation{
		Product:  item.Product,
		Losses:   losses,
		Surplus:  surplus,
		Produced: item.TotalProduced(),
	}
}

// CheckMap checks the stored losses and surplus of every item and joins all violations.
func CheckMap(m *models.ProductionMap) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, item := range m.Items {
		if err := Check(item, item.Losses, item.Surplus); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

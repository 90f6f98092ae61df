package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionItemSlots(t *testing.T) {
	item := ProductionItem{Product: "PASTEL DE NATA"}

	require.NoError(t, item.SetSlot(3, ProductionSlot{Quantity: 7, Timestamp: "11:00"}))
	assert.Len(t, item.Slots, 3)
	assert.False(t, item.Slots[0].Filled())
	assert.Equal(t, 7, item.TotalProduced())

	slot, ok := item.SlotAt(3)
	require.True(t, ok)
	assert.Equal(t, "11:00", slot.Timestamp)

	_, ok = item.SlotAt(4)
	assert.False(t, ok)

	err := item.SetSlot(6, ProductionSlot{Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestProductionMapValidateRejectsDuplicates(t *testing.T) {
	m := &ProductionMap{Items: []ProductionItem{
		{Category: "PÃO", Product: "BAGUETE"},
		{Category: "PÃO", Product: "BAGUETE"},
	}}

	assert.ErrorIs(t, m.Validate(), ErrDecode)
}

func TestProductionMapCloneIsDeep(t *testing.T) {
	m := &ProductionMap{Date: "19/10/2026", Items: []ProductionItem{
		{Product: "BAGUETE", Slots: []ProductionSlot{{Quantity: 4, Timestamp: "07:00"}}},
	}}

	clone := m.Clone()
	clone.Items[0].Slots[0].Quantity = 99

	assert.Equal(t, 4, m.Items[0].Slots[0].Quantity)
}

func TestDefaultCatalogHasUniqueProducts(t *testing.T) {
	m := NewProductionMap(DefaultCatalog())

	require.NoError(t, m.Validate())
	assert.Equal(t, "PASTELARIA", m.Items[0].Category)
	assert.NotNil(t, m.Item("CROISSANT SIMPLES"))
}

func TestNewScope(t *testing.T) {
	tests := map[string]Scope{
		"":                 AnonymousScope,
		"  ":               AnonymousScope,
		"ana@padaria.pt":   "ana@padaria.pt",
		"../../etc/passwd": "_.._etc_passwd",
		"loja 1":           "loja_1",
		"...":              AnonymousScope,
	}

	for raw, want := range tests {
		t.Run(fmt.Sprintf("%q", raw), func(t *testing.T) {
			assert.Equal(t, want, NewScope(raw))
		})
	}
}

func TestFormatting(t *testing.T) {
	monday := time.Date(2026, time.October, 19, 8, 30, 0, 0, time.UTC)

	assert.Equal(t, "19/10/2026", FormatDate(monday))
	assert.Equal(t, "08:30", FormatTime(monday))
	assert.Equal(t, "Segunda-feira", FormatWeekday(monday))
	assert.Equal(t, "Sábado", FormatWeekday(monday.AddDate(0, 0, 5)))
}

func TestViolations(t *testing.T) {
	a := &InvariantViolation{Product: "A", Losses: 3, Produced: 1}
	b := &InvariantViolation{Product: "B", Surplus: 2}

	joined := fmt.Errorf("commit: %w", errors.Join(a, b))

	got := Violations(joined)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Product)
	assert.Equal(t, "B", got[1].Product)
	assert.ErrorIs(t, joined, ErrInvariantViolation)
	assert.Nil(t, Violations(errors.New("other")))
}

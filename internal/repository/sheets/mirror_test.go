package sheets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/vitrine/internal/domain/models"
)

type fakeRepo struct {
	ranges []string
	rows   [][]interface{}
	err    error
}

func (f *fakeRepo) AppendRows(_ context.Context, sheetRange string, rows [][]interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.ranges = append(f.ranges, sheetRange)
	f.rows = append(f.rows, rows...)
	return nil
}

func sampleMap() *models.ProductionMap {
	return &models.ProductionMap{Date: "19/10/2026", Items: []models.ProductionItem{
		{Category: "CROISSANTS", Product: "Croissant", Slots: []models.ProductionSlot{{Quantity: 12, Timestamp: "08:30"}, {Quantity: 6, Timestamp: "11:00"}}},
		{Category: "CROISSANTS", Product: "Croissant Misto", Slots: []models.ProductionSlot{{Quantity: 4, Timestamp: "08:30"}}},
		{Category: "PASTELARIA", Product: "Pastel de Nata"},
	}}
}

func TestRecordSlotAppendsFilledItems(t *testing.T) {
	repo := &fakeRepo{}
	mirror := NewMirror(repo, nil)

	require.NoError(t, mirror.RecordSlot(context.Background(), "loja-1", sampleMap(), 2))

	assert.Equal(t, []string{MirrorRange}, repo.ranges)
	assert.Equal(t, [][]interface{}{
		{"19/10/2026", "11:00", "loja-1", "CROISSANTS", "Croissant", 2, 6},
	}, repo.rows)
}

func TestRecordSlotSkipsEmptySlot(t *testing.T) {
	repo := &fakeRepo{}
	require.NoError(t, NewMirror(repo, nil).RecordSlot(context.Background(), "loja-1", sampleMap(), 3))
	assert.Empty(t, repo.ranges)
}

func TestRecordSlotWrapsErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	err := NewMirror(&fakeRepo{err: boom}, nil).RecordSlot(context.Background(), "loja-1", sampleMap(), 1)
	assert.ErrorIs(t, err, boom)
}

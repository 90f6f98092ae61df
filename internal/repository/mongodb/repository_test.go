package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/mamadbah2/vitrine/internal/domain/models"
)

func TestReportFilterKeysOnScopeAndDate(t *testing.T) {
	report := models.DailyReport{Scope: "loja-1", Date: "19/10/2026", TotalProduced: 40}

	assert.Equal(t, bson.D{{Key: "scope", Value: "loja-1"}, {Key: "date", Value: "19/10/2026"}}, reportFilter(report))
}

func TestDailyReportBSONShape(t *testing.T) {
	report := models.DailyReport{
		Scope:         "loja-1",
		Date:          "19/10/2026",
		Weekday:       "Segunda-feira",
		TotalProduced: 18,
		TotalLosses:   2,
		Items:         []models.ItemSummary{{Category: "CROISSANTS", Product: "Croissant", Produced: 18, Losses: 2}},
		CreatedAt:     time.Date(2026, time.October, 19, 21, 0, 0, 0, time.UTC),
	}

	raw, err := bson.Marshal(report)
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, "loja-1", doc["scope"])
	assert.Equal(t, int32(18), doc["total_produced"])
	assert.Contains(t, doc, "created_at")

	items, ok := doc["items"].(bson.A)
	require.True(t, ok)
	assert.Len(t, items, 1)
}

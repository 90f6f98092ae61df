package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/vitrine/internal/domain/models"
	"github.com/mamadbah2/vitrine/internal/service/production"
)

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"serve"},
		{"ledger", "show"},
		{"ledger", "export"},
		{"backup", "restore"},
		{"report", "send"},
		{"cache", "clear"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestScopeFlagIsNormalised(t *testing.T) {
	opts := &options{scope: " ana silva@padaria.pt "}
	assert.Equal(t, models.Scope("ana_silva@padaria.pt"), opts.Scope())

	assert.Equal(t, models.AnonymousScope, (&options{}).Scope())
}

func TestPrintSession(t *testing.T) {
	var out bytes.Buffer
	session := &production.Session{
		Scope:    "loja-1",
		NextSlot: 2,
		Source:   "cache",
		Map: &models.ProductionMap{Date: "19/10/2026", Weekday: "Segunda-feira", Items: []models.ProductionItem{
			{Category: "CROISSANTS", Product: "Croissant", Slots: []models.ProductionSlot{{Quantity: 12, Timestamp: "08:30"}}, Losses: 1},
		}},
	}

	require.NoError(t, printSession(&out, session))
	assert.Contains(t, out.String(), "loja-1  Segunda-feira 19/10/2026  next slot 2 (cache)")
	assert.Contains(t, out.String(), "12@08:30")
}

func TestPrintBackups(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printBackups(&out, nil))
	assert.Equal(t, "no backups\n", out.String())

	out.Reset()
	require.NoError(t, printBackups(&out, []models.BackupRecord{{
		FileName:     "backup_1.enc",
		SourceName:   "mapa_producao.xlsx",
		OriginalSize: 2048,
		Timestamp:    time.Date(2026, time.October, 19, 6, 0, 0, 0, time.UTC),
	}}))
	assert.Contains(t, out.String(), "backup_1.enc")
	assert.Contains(t, out.String(), "2048")
}

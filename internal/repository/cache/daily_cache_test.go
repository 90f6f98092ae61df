package cache

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/vitrine/internal/domain/models"
	"github.com/mamadbah2/vitrine/internal/security"
)

const scope = models.Scope("ana@padaria.pt")

type fixture struct {
	db    *badger.DB
	cache *DailyCache
	clock time.Time
}

func setupFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fx := &fixture{db: db, clock: time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)}
	base := []Option{WithClock(func() time.Time { return fx.clock })}
	fx.cache = New(db, nil, append(base, opts...)...)
	return fx
}

func (fx *fixture) nextDay() {
	fx.clock = fx.clock.AddDate(0, 0, 1)
}

func (fx *fixture) rawMap(t *testing.T) []byte {
	t.Helper()
	var raw []byte
	require.NoError(t, fx.db.View(func(txn *badger.Txn) error {
		var err error
		raw, err = getBytes(txn, mapKey(scope))
		return err
	}))
	return raw
}

func sampleMap() *models.ProductionMap {
	return &models.ProductionMap{Date: "19/10/2026", Weekday: "Segunda-feira", Items: []models.ProductionItem{
		{Category: "CROISSANTS", Product: "CROISSANT SIMPLES", Slots: []models.ProductionSlot{{Quantity: 12, Timestamp: "08:30"}}, Losses: 1},
		{Category: "PÃO", Product: "BAGUETE"},
	}}
}

func newEncryption(t *testing.T) *security.Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.key")
	return security.NewService(security.NewFileKeyStore(path, nil), nil)
}

func TestSaveAndLoadSameDay(t *testing.T) {
	fx := setupFixture(t)

	require.NoError(t, fx.cache.Save(scope, sampleMap()))

	got, ok, err := fx.cache.Load(scope)
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(sampleMap(), got); diff != "" {
		t.Fatalf("cached map mismatch (-want +got):\n%s", diff)
	}

	_, ok, err = fx.cache.Load(models.Scope("someone-else"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadEvictsYesterdaysEntry(t *testing.T) {
	fx := setupFixture(t)
	require.NoError(t, fx.cache.Save(scope, sampleMap()))
	require.NoError(t, fx.cache.SaveIndex(scope, 3))

	fx.nextDay()

	got, ok, err := fx.cache.Load(scope)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Nil(t, fx.rawMap(t), "stale entry must be removed")

	index, err := fx.cache.LoadIndex(scope)
	require.NoError(t, err)
	assert.Equal(t, 1, index)
}

func TestLoadRejectsMapFromAnotherDay(t *testing.T) {
	fx := setupFixture(t)

	m := sampleMap()
	m.Date = "18/10/2026"
	require.NoError(t, fx.cache.Save(scope, m))

	_, ok, err := fx.cache.Load(scope)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, fx.rawMap(t))
}

func TestSaveRejectsInvariantViolation(t *testing.T) {
	fx := setupFixture(t)

	m := sampleMap()
	m.Items[0].Surplus = 20

	assert.ErrorIs(t, fx.cache.Save(scope, m), models.ErrInvariantViolation)
	assert.Nil(t, fx.rawMap(t))
}

func TestSlotIndex(t *testing.T) {
	fx := setupFixture(t)

	index, err := fx.cache.LoadIndex(scope)
	require.NoError(t, err)
	assert.Equal(t, 1, index)

	require.NoError(t, fx.cache.SaveIndex(scope, 4))
	index, err = fx.cache.LoadIndex(scope)
	require.NoError(t, err)
	assert.Equal(t, 4, index)

	assert.ErrorIs(t, fx.cache.SaveIndex(scope, 0), models.ErrInvalidSlot)
	assert.ErrorIs(t, fx.cache.SaveIndex(scope, 6), models.ErrInvalidSlot)
}

func TestSaveIndexOnNewDayDropsStaleMap(t *testing.T) {
	fx := setupFixture(t)
	require.NoError(t, fx.cache.Save(scope, sampleMap()))

	fx.nextDay()
	require.NoError(t, fx.cache.SaveIndex(scope, 2))

	_, ok, err := fx.cache.Load(scope)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEncryptedCache(t *testing.T) {
	enc := newEncryption(t)
	fx := setupFixture(t, WithEncryption(enc, false))

	require.NoError(t, fx.cache.Save(scope, sampleMap()))

	raw := fx.rawMap(t)
	assert.False(t, json.Valid(raw), "payload must not be stored as plaintext")

	got, ok, err := fx.cache.Load(scope)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleMap(), got)
}

func TestEncryptedCacheReadsLegacyPlaintext(t *testing.T) {
	enc := newEncryption(t)
	plain := setupFixture(t)
	require.NoError(t, plain.cache.Save(scope, sampleMap()))

	encrypted := New(plain.db, nil, WithEncryption(enc, false), WithClock(func() time.Time { return plain.clock }))

	got, ok, err := encrypted.Load(scope)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleMap(), got)

	assert.False(t, json.Valid(plain.rawMap(t)), "legacy entry should be re-encrypted after the first read")
}

func TestEncryptedCacheTreatsGarbageAsMiss(t *testing.T) {
	enc := newEncryption(t)
	fx := setupFixture(t, WithEncryption(enc, false))
	require.NoError(t, fx.cache.SaveIndex(scope, 1))
	require.NoError(t, fx.db.Update(func(txn *badger.Txn) error {
		return txn.Set(mapKey(scope), []byte("\x00garbage"))
	}))

	_, ok, err := fx.cache.Load(scope)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, fx.rawMap(t))
}

func TestMigrateToEncrypted(t *testing.T) {
	enc := newEncryption(t)
	plain := setupFixture(t)
	require.NoError(t, plain.cache.Save(scope, sampleMap()))

	encrypted := New(plain.db, nil, WithEncryption(enc, false), WithClock(func() time.Time { return plain.clock }))

	migrated, err := encrypted.MigrateToEncrypted(scope)
	require.NoError(t, err)
	assert.True(t, migrated)

	migrated, err = encrypted.MigrateToEncrypted(scope)
	require.NoError(t, err)
	assert.False(t, migrated)

	_, err = plain.cache.MigrateToEncrypted(scope)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}

func TestClearScopeAndAll(t *testing.T) {
	fx := setupFixture(t)
	other := models.Scope("loja-2")
	require.NoError(t, fx.cache.Save(scope, sampleMap()))
	require.NoError(t, fx.cache.Save(other, sampleMap()))

	require.NoError(t, fx.cache.ClearScope(scope))
	_, ok, err := fx.cache.Load(scope)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = fx.cache.Load(other)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, fx.cache.ClearAll())
	_, ok, err = fx.cache.Load(other)
	require.NoError(t, err)
	assert.False(t, ok)
}

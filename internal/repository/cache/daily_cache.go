package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/mamadbah2/vitrine/internal/domain/models"
	"github.com/mamadbah2/vitrine/internal/metrics"
	"github.com/mamadbah2/vitrine/internal/service/reconciliation"
)

const keyPrefix = "production:"

// Encryptor seals cache payloads. Implemented by security.Service.
type Encryptor interface {
	IsAvailable() bool
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(blob []byte) ([]byte, error)
}

// DailyCache is the same-day fast path for production maps. Entries stamped
// with another day are evicted on read.
type DailyCache struct {
	db             *badger.DB
	enc            Encryptor
	allowPlaintext bool
	now            func() time.Time
	logger         *zap.Logger
}

// Option customises a DailyCache.
type Option func(*DailyCache)

// WithEncryption seals stored maps with enc. When allowPlaintext is set, saves
// proceed unencrypted while the key store is unavailable.
func WithEncryption(enc Encryptor, allowPlaintext bool) Option {
	return func(c *DailyCache) {
		c.enc = enc
		c.allowPlaintext = allowPlaintext
	}
}

// WithClock overrides the clock deciding what "today" is.
func WithClock(now func() time.Time) Option {
	return func(c *DailyCache) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a cache over an open badger database.
func New(db *badger.DB, logger *zap.Logger, opts ...Option) *DailyCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &DailyCache{db: db, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func mapKey(scope models.Scope) []byte  { return []byte(keyPrefix + scope.String() + ":map") }
func dateKey(scope models.Scope) []byte { return []byte(keyPrefix + scope.String() + ":date") }
func slotKey(scope models.Scope) []byte { return []byte(keyPrefix + scope.String() + ":slot") }

func (c *DailyCache) today() string {
	return models.FormatDate(c.now())
}

// Save stores m for scope and stamps today's date.
func (c *DailyCache) Save(scope models.Scope, m *models.ProductionMap) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := reconciliation.CheckMap(m); err != nil {
		return err
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal production map: %w", err)
	}

	stored, err := c.seal(payload)
	if err != nil {
		return err
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(mapKey(scope), stored); err != nil {
			return err
		}
		return txn.Set(dateKey(scope), []byte(c.today()))
	})
	if err != nil {
		return fmt.Errorf("%w: save cache entry: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

// Load returns today's map for scope. A missing or stale entry is reported as
// ok=false; stale entries are evicted.
func (c *DailyCache) Load(scope models.Scope) (*models.ProductionMap, bool, error) {
	var stamped string
	var raw []byte

	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		if stamped, err = getString(txn, dateKey(scope)); err != nil {
			return err
		}
		raw, err = getBytes(txn, mapKey(scope))
		return err
	})
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("%w: read cache entry: %v", models.ErrStorageUnavailable, err)
	}

	today := c.today()
	if stamped != today {
		if stamped != "" || raw != nil {
			c.logger.Info("evicting stale cache entry",
				zap.String("scope", scope.String()),
				zap.String("stamped", stamped),
				zap.String("today", today))
			if err := c.evict(scope, mapKey(scope), slotKey(scope)); err != nil {
				return nil, false, err
			}
			metrics.CacheLookupsTotal.WithLabelValues("stale").Inc()
			return nil, false, nil
		}
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false, nil
	}

	if raw == nil {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false, nil
	}

	m, ok := c.open(scope, raw)
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false, nil
	}

	if m.Date != "" && m.Date != today {
		c.logger.Info("evicting cached map from another day",
			zap.String("scope", scope.String()),
			zap.String("map_date", m.Date))
		if err := c.evict(scope, mapKey(scope), slotKey(scope)); err != nil {
			return nil, false, err
		}
		metrics.CacheLookupsTotal.WithLabelValues("stale").Inc()
		return nil, false, nil
	}

	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return m, true, nil
}

// SaveIndex records the next production slot to fill.
func (c *DailyCache) SaveIndex(scope models.Scope, index int) error {
	if index < 1 || index > models.MaxSlots {
		return fmt.Errorf("%w: %d", models.ErrInvalidSlot, index)
	}

	today := c.today()
	err := c.db.Update(func(txn *badger.Txn) error {
		stamped, err := getString(txn, dateKey(scope))
		if err != nil {
			return err
		}
		if stamped != today {
			if err := txn.Delete(mapKey(scope)); err != nil {
				return err
			}
		}
		if err := txn.Set(slotKey(scope), []byte(strconv.Itoa(index))); err != nil {
			return err
		}
		return txn.Set(dateKey(scope), []byte(today))
	})
	if err != nil {
		return fmt.Errorf("%w: save slot index: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

// LoadIndex returns the next production slot to fill, 1 when nothing was
// recorded today.
func (c *DailyCache) LoadIndex(scope models.Scope) (int, error) {
	var stamped, raw string
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		if stamped, err = getString(txn, dateKey(scope)); err != nil {
			return err
		}
		raw, err = getString(txn, slotKey(scope))
		return err
	})
	if err != nil {
		return 1, fmt.Errorf("%w: read slot index: %v", models.ErrStorageUnavailable, err)
	}

	if stamped != c.today() {
		if raw != "" {
			if err := c.evict(scope, mapKey(scope), slotKey(scope)); err != nil {
				return 1, err
			}
		}
		return 1, nil
	}

	index, err := strconv.Atoi(raw)
	if err != nil || index < 1 || index > models.MaxSlots {
		return 1, nil
	}
	return index, nil
}

// ClearScope removes every cache entry of scope.
func (c *DailyCache) ClearScope(scope models.Scope) error {
	return c.evict(scope, mapKey(scope), dateKey(scope), slotKey(scope))
}

// ClearAll removes the cache entries of every scope.
func (c *DailyCache) ClearAll() error {
	prefix := []byte(keyPrefix)
	var keys [][]byte

	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: list cache entries: %v", models.ErrStorageUnavailable, err)
	}

	if err := c.evict(models.Scope("*"), keys...); err != nil {
		return err
	}
	c.logger.Info("cache cleared", zap.Int("keys", len(keys)))
	return nil
}

// MigrateToEncrypted re-seals a plaintext entry of scope. It reports whether
// an entry was rewritten.
func (c *DailyCache) MigrateToEncrypted(scope models.Scope) (bool, error) {
	if c.enc == nil || !c.enc.IsAvailable() {
		return false, fmt.Errorf("%w: encryption not available", models.ErrStorageUnavailable)
	}

	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		raw, err = getBytes(txn, mapKey(scope))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%w: read cache entry: %v", models.ErrStorageUnavailable, err)
	}
	if raw == nil {
		return false, nil
	}
	if _, err := c.enc.Decrypt(raw); err == nil {
		return false, nil
	}

	var m models.ProductionMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return false, fmt.Errorf("cache entry is neither encrypted nor plaintext: %w", err)
	}
	if err := c.rewrite(scope, &m); err != nil {
		return false, err
	}
	c.logger.Info("cache entry migrated to encrypted storage", zap.String("scope", scope.String()))
	return true, nil
}

// seal applies encryption when configured.
func (c *DailyCache) seal(payload []byte) ([]byte, error) {
	if c.enc == nil {
		return payload, nil
	}
	if !c.enc.IsAvailable() {
		if !c.allowPlaintext {
			return nil, fmt.Errorf("%w: cache encryption unavailable", models.ErrStorageUnavailable)
		}
		c.logger.Warn("cache encryption unavailable, storing plaintext")
		return payload, nil
	}
	return c.enc.Encrypt(payload)
}

// open decrypts and decodes a stored entry. Entries written before encryption
// was enabled are accepted as plaintext and re-sealed. Anything else is
// dropped.
func (c *DailyCache) open(scope models.Scope, raw []byte) (*models.ProductionMap, bool) {
	if c.enc != nil && c.enc.IsAvailable() {
		plaintext, err := c.enc.Decrypt(raw)
		if err == nil {
			var m models.ProductionMap
			if err := json.Unmarshal(plaintext, &m); err == nil {
				return &m, true
			}
			c.logger.Warn("decrypted cache entry is not a production map", zap.String("scope", scope.String()))
			c.dropCorrupt(scope)
			return nil, false
		}

		var m models.ProductionMap
		if err := json.Unmarshal(raw, &m); err != nil {
			c.logger.Warn("cache entry unreadable, treating as miss", zap.String("scope", scope.String()), zap.Error(err))
			c.dropCorrupt(scope)
			return nil, false
		}
		c.logger.Info("read legacy plaintext cache entry, re-encrypting", zap.String("scope", scope.String()))
		if err := c.rewrite(scope, &m); err != nil {
			c.logger.Warn("re-encrypting cache entry failed", zap.String("scope", scope.String()), zap.Error(err))
		}
		return &m, true
	}

	var m models.ProductionMap
	if err := json.Unmarshal(raw, &m); err != nil {
		if c.enc != nil {
			c.logger.Warn("cache entry may be encrypted but key store is unavailable", zap.String("scope", scope.String()))
			return nil, false
		}
		c.logger.Warn("cache entry unreadable, treating as miss", zap.String("scope", scope.String()), zap.Error(err))
		c.dropCorrupt(scope)
		return nil, false
	}
	return &m, true
}

func (c *DailyCache) rewrite(scope models.Scope, m *models.ProductionMap) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal production map: %w", err)
	}
	sealed, err := c.seal(payload)
	if err != nil {
		return err
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(mapKey(scope), sealed)
	})
	if err != nil {
		return fmt.Errorf("%w: rewrite cache entry: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

func (c *DailyCache) dropCorrupt(scope models.Scope) {
	if err := c.evict(scope, mapKey(scope)); err != nil {
		c.logger.Warn("dropping unreadable cache entry failed", zap.String("scope", scope.String()), zap.Error(err))
	}
}

func (c *DailyCache) evict(scope models.Scope, keys ...[]byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: evict cache entry for %s: %v", models.ErrStorageUnavailable, scope, err)
	}
	return nil
}

func getBytes(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func getString(txn *badger.Txn, key []byte) (string, error) {
	value, err := getBytes(txn, key)
	return string(value), err
}

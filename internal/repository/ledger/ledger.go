package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/mamadbah2/vitrine/internal/domain/models"
	"github.com/mamadbah2/vitrine/internal/metrics"
	"github.com/mamadbah2/vitrine/internal/service/reconciliation"
	"github.com/mamadbah2/vitrine/pkg/atomicfile"
)

// FileName is the ledger file name used inside each scope directory.
const FileName = "mapa_producao.xlsx"

const filePerm = 0o640

// Repository is the ledger surface consumed by the production and backup services.
type Repository interface {
	Path() string
	Exists() bool
	LoadOrInitialize() (*models.ProductionMap, error)
	WriteSlot(m *models.ProductionMap, slotIndex int) error
	WriteReconciliation(m *models.ProductionMap) error
	Clear() error
	Regenerate() (*models.ProductionMap, error)
	ReadBytes() ([]byte, error)
}

// Ledger is the spreadsheet file holding one scope's production for the day.
// One Ledger value must own a given path; writes are serialised through mu.
type Ledger struct {
	path    string
	catalog []models.CatalogSection
	now     func() time.Time
	logger  *zap.Logger

	mu sync.Mutex
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithCatalog replaces the default catalog used for new ledgers.
func WithCatalog(catalog []models.CatalogSection) Option {
	return func(l *Ledger) {
		l.catalog = catalog
	}
}

// WithClock overrides the clock used to stamp dates and times.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// New returns a ledger stored at path.
func New(path string, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Ledger{
		path:    path,
		catalog: models.DefaultCatalog(),
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// Exists reports whether the ledger file is present.
func (l *Ledger) Exists() bool {
	_, err := os.Stat(l.path)
	return err == nil
}

// LoadOrInitialize decodes the ledger, creating the default catalog when the
// file is missing. A file that cannot be decoded is moved aside and replaced
// with a fresh catalog.
func (l *Ledger) LoadOrInitialize() (m *models.ProductionMap, err error) {
	defer observe("load", &err)()

	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Info("ledger not found, creating default catalog", zap.String("path", l.path))
		return l.initializeLocked()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read ledger: %v", models.ErrStorageUnavailable, err)
	}

	m, err = l.decodeLocked(data)
	if errors.Is(err, models.ErrDecode) {
		quarantined := l.path + ".corrupt-" + strconv.FormatInt(l.now().UnixMilli(), 10)
		l.logger.Error("ledger could not be decoded, reinitializing",
			zap.String("path", l.path),
			zap.String("quarantined_as", quarantined),
			zap.Error(err))
		if renameErr := os.Rename(l.path, quarantined); renameErr != nil {
			return nil, fmt.Errorf("%w: quarantine corrupt ledger: %v", models.ErrStorageUnavailable, renameErr)
		}
		return l.initializeLocked()
	}
	return m, err
}

// decodeLocked decodes data and rewrites legacy layouts in canonical form.
func (l *Ledger) decodeLocked(data []byte) (*models.ProductionMap, error) {
	f, err := openWorkbook(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, lay, err := decodeWorkbook(f)
	if err != nil {
		return nil, err
	}

	if lay != canonicalLayout {
		l.logger.Warn("migrating ledger to canonical layout",
			zap.String("path", l.path),
			zap.String("from", lay.name),
			zap.Int("items", len(m.Items)))
		if err := l.writeMapLocked(m); err != nil {
			return nil, fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return m, nil
}

// WriteSlot records slot slotIndex of every item of m into its row, along
// with the item's losses and surplus, and stamps today's date and weekday.
// Rows whose product is not in m keep their content.
func (l *Ledger) WriteSlot(m *models.ProductionMap, slotIndex int) error {
	if slotIndex < 1 || slotIndex > models.MaxSlots {
		return fmt.Errorf("%w: %d", models.ErrInvalidSlot, slotIndex)
	}
	if err := validateForWrite(m); err != nil {
		return err
	}

	return l.update("write_slot", func(f *excelize.File, sheet string, rows map[string]int) error {
		now := l.now()
		lay := canonicalLayout
		set := cellSetter{f: f, sheet: sheet}

		for _, item := range m.Items {
			r, ok := rows[item.Product]
			if !ok {
				l.logger.Debug("product not in ledger, skipping", zap.String("product", item.Product))
				continue
			}

			if slot, ok := item.SlotAt(slotIndex); ok && slot.Filled() {
				stamp := slot.Timestamp
				if stamp == "" {
					stamp = models.FormatTime(now)
				}
				set.num(lay.quantityCol(slotIndex), r, slot.Quantity)
				set.str(lay.timestampCol(slotIndex), r, stamp)
			}
			set.num(lay.lossesCol, r, item.Losses)
			set.num(lay.surplusCol, r, item.Surplus)
		}

		set.str(lay.headerCol, dateRow, models.FormatDate(now))
		set.str(lay.headerCol, weekdayRow, models.FormatWeekday(now))
		return set.err
	})
}

// WriteReconciliation writes only the losses and surplus columns of every item of m.
func (l *Ledger) WriteReconciliation(m *models.ProductionMap) error {
	if err := validateForWrite(m); err != nil {
		return err
	}

	return l.update("write_reconciliation", func(f *excelize.File, sheet string, rows map[string]int) error {
		set := cellSetter{f: f, sheet: sheet}
		for _, item := range m.Items {
			r, ok := rows[item.Product]
			if !ok {
				l.logger.Debug("product not in ledger, skipping", zap.String("product", item.Product))
				continue
			}
			set.num(canonicalLayout.lossesCol, r, item.Losses)
			set.num(canonicalLayout.surplusCol, r, item.Surplus)
		}
		return set.err
	})
}

// Clear blanks every data cell and the header date and weekday, keeping the catalog rows.
func (l *Ledger) Clear() error {
	return l.update("clear", func(f *excelize.File, sheet string, rows map[string]int) error {
		lay := canonicalLayout
		set := cellSetter{f: f, sheet: sheet}
		for _, r := range rows {
			for _, col := range lay.dataCols() {
				set.blank(col, r)
			}
		}
		set.blank(lay.headerCol, dateRow)
		set.blank(lay.headerCol, weekdayRow)
		return set.err
	})
}

// Regenerate deletes the ledger and writes the default catalog from scratch.
func (l *Ledger) Regenerate() (m *models.ProductionMap, err error) {
	defer observe("regenerate", &err)()

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: remove ledger: %v", models.ErrStorageUnavailable, err)
	}
	l.logger.Info("ledger regenerated", zap.String("path", l.path))
	return l.initializeLocked()
}

// ReadBytes returns the current ledger file content.
func (l *Ledger) ReadBytes() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read ledger: %v", models.ErrStorageUnavailable, err)
	}
	return data, nil
}

// update performs one read-modify-write cycle on the ledger file. The file is
// created from the catalog when missing and migrated when in a legacy layout.
func (l *Ledger) update(op string, apply func(f *excelize.File, sheet string, rows map[string]int) error) (err error) {
	defer observe(op, &err)()

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.openCanonicalLocked()
	if err != nil {
		return err
	}
	defer f.Close()

	sheet, err := firstSheet(f)
	if err != nil {
		return err
	}

	rows, err := productRows(f, sheet)
	if err != nil {
		return err
	}

	if err := apply(f, sheet, rows); err != nil {
		return err
	}

	return l.saveLocked(f)
}

func (l *Ledger) openCanonicalLocked() (*excelize.File, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("ledger missing on write, creating default catalog", zap.String("path", l.path))
		if _, err := l.initializeLocked(); err != nil {
			return nil, err
		}
		data, err = os.ReadFile(l.path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read ledger: %v", models.ErrStorageUnavailable, err)
	}

	f, err := openWorkbook(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	sheet, err := firstSheet(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: read rows: %v", models.ErrDecode, err)
	}
	lay, err := detectLayout(rows)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if lay == canonicalLayout {
		return f, nil
	}

	m, err := decodeRows(rows, lay)
	_ = f.Close()
	if err != nil {
		return nil, err
	}
	l.logger.Warn("migrating ledger to canonical layout before write",
		zap.String("path", l.path),
		zap.String("from", lay.name))
	return encodeWorkbook(m)
}

// productRows indexes catalog rows by product name.
func productRows(f *excelize.File, sheet string) (map[string]int, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read rows: %v", models.ErrDecode, err)
	}

	index := make(map[string]int)
	for r := firstCatalogRow; r < len(rows); r++ {
		product := cellAt(rows, r, productCol)
		if product == "" {
			continue
		}
		if _, dup := index[product]; dup {
			return nil, fmt.Errorf("%w: duplicate product %q at row %d", models.ErrDecode, product, r+1)
		}
		index[product] = r
	}
	return index, nil
}

func (l *Ledger) initializeLocked() (*models.ProductionMap, error) {
	m := models.NewProductionMap(l.catalog)
	if err := l.writeMapLocked(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (l *Ledger) writeMapLocked(m *models.ProductionMap) error {
	f, err := encodeWorkbook(m)
	if err != nil {
		return err
	}
	defer f.Close()
	return l.saveLocked(f)
}

func (l *Ledger) saveLocked(f *excelize.File) error {
	err := atomicfile.Write(l.path, filePerm, func(w io.Writer) error {
		return f.Write(w)
	})
	if atomicfile.Replaced(err) {
		if err != nil {
			l.logger.Warn("ledger written but directory not synced", zap.String("path", l.path), zap.Error(err))
		}
		return nil
	}
	return fmt.Errorf("%w: write ledger: %v", models.ErrStorageUnavailable, err)
}

func validateForWrite(m *models.ProductionMap) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return reconciliation.CheckMap(m)
}

func observe(op string, errp *error) func() {
	start := time.Now()
	return func() {
		metrics.LedgerOperationsTotal.WithLabelValues(op, metrics.Status(*errp)).Inc()
		metrics.LedgerWriteDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

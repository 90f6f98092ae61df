package production

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/vitrine/internal/domain/models"
	"github.com/mamadbah2/vitrine/internal/repository/ledger"
	"github.com/mamadbah2/vitrine/internal/service/reconciliation"
	"github.com/mamadbah2/vitrine/internal/service/reporting"
	"github.com/mamadbah2/vitrine/pkg/atomicfile"
)

const backgroundTimeout = 2 * time.Minute

var (
	// ErrInvalidQuantity marks a negative production quantity.
	ErrInvalidQuantity = errors.New("invalid production quantity")
	// ErrNothingToConfirm marks a slot confirmation without any positive quantity.
	ErrNothingToConfirm = errors.New("no quantities to confirm")
	// ErrStaleLedger marks a ledger still holding a previous day while rollover is off.
	ErrStaleLedger = errors.New("ledger holds a previous day")
)

// Cache is the daily cache consumed by the service.
type Cache interface {
	Save(scope models.Scope, m *models.ProductionMap) error
	Load(scope models.Scope) (*models.ProductionMap, bool, error)
	SaveIndex(scope models.Scope, index int) error
	LoadIndex(scope models.Scope) (int, error)
	ClearScope(scope models.Scope) error
}

// Backups snapshots and restores ledgers.
type Backups interface {
	CreateBackup(ctx context.Context, scope models.Scope, ledgerPath string) (*models.BackupRecord, error)
	Restore(ctx context.Context, scope models.Scope, record models.BackupRecord, target string) error
}

// Archive stores end-of-day reports.
type Archive interface {
	SaveDailyReport(ctx context.Context, report models.DailyReport) error
}

// Mirror copies confirmed slots to a secondary store.
type Mirror interface {
	RecordSlot(ctx context.Context, scope models.Scope, m *models.ProductionMap, slotIndex int) error
}

// Reporter mails a ledger.
type Reporter interface {
	SendLedger(ctx context.Context, scope models.Scope, m *models.ProductionMap, fileName string, content []byte) error
}

// Config locates ledgers and toggles automatic behaviour.
type Config struct {
	DataDir        string
	LedgerFileName string
	AutoRollover   bool
	AutoEmail      bool
	// Catalog seeds new ledgers. Nil means models.DefaultCatalog.
	Catalog []models.CatalogSection
}

// Session is the state of a scope's production day.
type Session struct {
	Scope    models.Scope          `json:"scope"`
	Map      *models.ProductionMap `json:"production_map"`
	NextSlot int                   `json:"next_slot"`
	Source   string                `json:"source"`
}

// Service orchestrates the cache, the ledger and their collaborators for
// every scope. Operations on one scope are serialised.
type Service struct {
	cfg      Config
	cache    Cache
	backups  Backups
	archive  Archive
	mirror   Mirror
	reporter Reporter
	now      func() time.Time
	logger   *zap.Logger

	mu      sync.Mutex
	ledgers map[models.Scope]*ledger.Ledger
	locks   map[models.Scope]*sync.Mutex

	wg sync.WaitGroup
}

// Option customises a Service.
type Option func(*Service)

// WithBackups enables day rollover snapshots and restores.
func WithBackups(b Backups) Option {
	return func(s *Service) { s.backups = b }
}

// WithArchive enables daily report archiving.
func WithArchive(a Archive) Option {
	return func(s *Service) { s.archive = a }
}

// WithMirror enables slot mirroring.
func WithMirror(m Mirror) Option {
	return func(s *Service) { s.mirror = m }
}

// WithReporter enables mailing ledgers.
func WithReporter(r Reporter) Option {
	return func(s *Service) { s.reporter = r }
}

// WithClock overrides the clock used for dates, slot times and ledgers.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a production service.
func NewService(cfg Config, cache Cache, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LedgerFileName == "" {
		cfg.LedgerFileName = ledger.FileName
	}

	s := &Service{
		cfg:     cfg,
		cache:   cache,
		now:     time.Now,
		logger:  logger,
		ledgers: make(map[models.Scope]*ledger.Ledger),
		locks:   make(map[models.Scope]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LedgerPath returns where the ledger of scope lives.
func (s *Service) LedgerPath(scope models.Scope) string {
	return filepath.Join(s.cfg.DataDir, scope.String(), s.cfg.LedgerFileName)
}

// Ledger returns the ledger of scope.
func (s *Service) Ledger(scope models.Scope) *ledger.Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.ledgers[scope]; ok {
		return l
	}
	opts := []ledger.Option{ledger.WithClock(s.now)}
	if s.cfg.Catalog != nil {
		opts = append(opts, ledger.WithCatalog(s.cfg.Catalog))
	}
	l := ledger.New(s.LedgerPath(scope), s.logger.Named("ledger").With(zap.String("scope", scope.String())), opts...)
	s.ledgers[scope] = l
	return l
}

func (s *Service) lock(scope models.Scope) func() {
	s.mu.Lock()
	m, ok := s.locks[scope]
	if !ok {
		m = &sync.Mutex{}
		s.locks[scope] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Scopes lists the scopes that have a ledger on disk.
func (s *Service) Scopes() ([]models.Scope, error) {
	entries, err := os.ReadDir(s.cfg.DataDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list scopes: %v", models.ErrStorageUnavailable, err)
	}

	var scopes []models.Scope
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		scope := models.Scope(entry.Name())
		if _, err := os.Stat(s.LedgerPath(scope)); err == nil {
			scopes = append(scopes, scope)
		}
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i] < scopes[j] })
	return scopes, nil
}

// Open returns today's session for scope, from the cache when possible and
// from the ledger otherwise. A ledger left over from a previous day is backed
// up and cleared when rollover is enabled and refused with ErrStaleLedger
// otherwise.
func (s *Service) Open(ctx context.Context, scope models.Scope) (*Session, error) {
	defer s.lock(scope)()
	return s.openLocked(ctx, scope)
}

func (s *Service) openLocked(ctx context.Context, scope models.Scope) (*Session, error) {
	m, ok, err := s.cache.Load(scope)
	if err != nil {
		s.logger.Warn("cache unavailable, reading ledger", zap.String("scope", scope.String()), zap.Error(err))
	}
	if ok {
		index, err := s.cache.LoadIndex(scope)
		if err != nil {
			s.logger.Warn("slot index unavailable", zap.String("scope", scope.String()), zap.Error(err))
		}
		return &Session{Scope: scope, Map: m, NextSlot: max(index, nextSlot(m)), Source: "cache"}, nil
	}

	l := s.Ledger(scope)
	m, err = l.LoadOrInitialize()
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	now := s.now()
	today := models.FormatDate(now)
	if m.Date != "" && m.Date != today {
		if !s.cfg.AutoRollover {
			return nil, fmt.Errorf("%w: ledger is dated %s, clear or regenerate it", ErrStaleLedger, m.Date)
		}
		if m, err = s.rolloverLocked(ctx, scope, l, m.Date); err != nil {
			return nil, err
		}
	}
	m.StampDay(now)

	index := nextSlot(m)
	if err := s.cache.Save(scope, m); err != nil {
		s.logger.Warn("failed to cache production map", zap.String("scope", scope.String()), zap.Error(err))
	} else if err := s.cache.SaveIndex(scope, index); err != nil {
		s.logger.Warn("failed to cache slot index", zap.String("scope", scope.String()), zap.Error(err))
	}

	return &Session{Scope: scope, Map: m, NextSlot: index, Source: "ledger"}, nil
}

// rolloverLocked snapshots yesterday's ledger and clears it for today. The
// ledger is only cleared once a snapshot exists. Without a usable key the
// snapshot is a plaintext copy next to the ledger.
func (s *Service) rolloverLocked(ctx context.Context, scope models.Scope, l *ledger.Ledger, previous string) (*models.ProductionMap, error) {
	if s.backups != nil {
		record, err := s.backups.CreateBackup(ctx, scope, l.Path())
		switch {
		case err == nil:
			s.logger.Info("previous day backed up", zap.String("scope", scope.String()), zap.String("backup", record.FileName))
		case errors.Is(err, models.ErrStorageUnavailable):
			path, copyErr := s.keepPreviousDay(l, previous)
			if copyErr != nil {
				return nil, fmt.Errorf("back up ledger of %s before rollover: %w", previous, errors.Join(err, copyErr))
			}
			s.logger.Warn("encrypted backup unavailable, previous day kept as plaintext copy",
				zap.String("scope", scope.String()),
				zap.String("copy", path),
				zap.Error(err))
		default:
			return nil, fmt.Errorf("back up ledger of %s before rollover: %w", previous, err)
		}
	} else {
		s.logger.Warn("no backup manager, clearing previous day without snapshot", zap.String("scope", scope.String()))
	}

	if err := l.Clear(); err != nil {
		return nil, fmt.Errorf("clear ledger for new day: %w", err)
	}
	s.logger.Info("ledger rolled over", zap.String("scope", scope.String()), zap.String("previous_date", previous))
	return l.LoadOrInitialize()
}

// PreviousDayPath is where the plaintext copy of a ledger dated previous is kept.
func PreviousDayPath(ledgerPath, previous string) string {
	suffix := strings.ReplaceAll(previous, "/", "-")
	if day, err := time.Parse(models.DateLayout, previous); err == nil {
		suffix = day.Format("20060102")
	}
	return ledgerPath + ".previous-" + suffix
}

func (s *Service) keepPreviousDay(l *ledger.Ledger, previous string) (string, error) {
	data, err := l.ReadBytes()
	if err != nil {
		return "", err
	}
	path := PreviousDayPath(l.Path(), previous)
	if err := atomicfile.WriteBytes(path, data, 0o640); !atomicfile.Replaced(err) {
		return "", fmt.Errorf("%w: keep previous day: %v", models.ErrStorageUnavailable, err)
	}
	return path, nil
}

// ConfirmSlot records quantities, keyed by product, in the next production
// slot. Products with a zero quantity are left untouched.
func (s *Service) ConfirmSlot(ctx context.Context, scope models.Scope, quantities map[string]int) (*Session, error) {
	defer s.lock(scope)()

	session, err := s.openLocked(ctx, scope)
	if err != nil {
		return nil, err
	}
	index := session.NextSlot

	positive := 0
	for product, quantity := range quantities {
		item := session.Map.Item(product)
		if item == nil {
			return nil, fmt.Errorf("%w: %q", models.ErrUnknownProduct, product)
		}
		if quantity < 0 {
			return nil, fmt.Errorf("%w: %s=%d", ErrInvalidQuantity, product, quantity)
		}
		if quantity == 0 {
			continue
		}
		if slot, ok := item.SlotAt(index); ok && slot.Filled() {
			return nil, fmt.Errorf("%w: %s slot %d", models.ErrSlotAlreadyFilled, product, index)
		}
		positive++
	}
	if positive == 0 {
		return nil, ErrNothingToConfirm
	}

	updated := session.Map.Clone()
	stamp := models.FormatTime(s.now())
	for product, quantity := range quantities {
		if quantity == 0 {
			continue
		}
		if err := updated.Item(product).SetSlot(index, models.ProductionSlot{Quantity: quantity, Timestamp: stamp}); err != nil {
			return nil, err
		}
	}

	if err := s.Ledger(scope).WriteSlot(updated, index); err != nil {
		return nil, fmt.Errorf("write slot %d: %w", index, err)
	}

	next := min(index+1, models.MaxSlots)
	if err := s.cache.Save(scope, updated); err != nil {
		s.logger.Warn("failed to cache confirmed slot", zap.String("scope", scope.String()), zap.Error(err))
	}
	if err := s.cache.SaveIndex(scope, next); err != nil {
		s.logger.Warn("failed to cache slot index", zap.String("scope", scope.String()), zap.Error(err))
	}

	s.logger.Info("production slot confirmed",
		zap.String("scope", scope.String()),
		zap.Int("slot", index),
		zap.Int("products", positive))

	if s.mirror != nil {
		snapshot := updated.Clone()
		s.background("slot mirror", func(ctx context.Context) error {
			return s.mirror.RecordSlot(ctx, scope, snapshot, index)
		})
	}

	return &Session{Scope: scope, Map: updated, NextSlot: next, Source: session.Source}, nil
}

// SetReconciliation records the losses and surplus of one product. A value
// pair exceeding production is rejected and the stored state is unchanged.
func (s *Service) SetReconciliation(ctx context.Context, scope models.Scope, product string, losses, surplus int) (*models.ProductionItem, error) {
	defer s.lock(scope)()

	session, err := s.openLocked(ctx, scope)
	if err != nil {
		return nil, err
	}

	item := session.Map.Item(product)
	if item == nil {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownProduct, product)
	}
	if err := reconciliation.Check(*item, losses, surplus); err != nil {
		return nil, err
	}

	updated := session.Map.Clone()
	target := updated.Item(product)
	target.Losses = losses
	target.Surplus = surplus

	if err := s.cache.Save(scope, updated); err != nil {
		return nil, fmt.Errorf("save reconciliation: %w", err)
	}

	result := target.Clone()
	return &result, nil
}

// CommitReconciliation writes the day's losses and surplus to the ledger,
// archives the daily report and, when enabled, mails the ledger.
func (s *Service) CommitReconciliation(ctx context.Context, scope models.Scope) (*Session, error) {
	defer s.lock(scope)()

	session, err := s.openLocked(ctx, scope)
	if err != nil {
		return nil, err
	}
	if err := reconciliation.CheckMap(session.Map); err != nil {
		return nil, err
	}

	if err := s.Ledger(scope).WriteReconciliation(session.Map); err != nil {
		return nil, fmt.Errorf("write reconciliation: %w", err)
	}
	s.logger.Info("reconciliation committed", zap.String("scope", scope.String()), zap.String("date", session.Map.Date))

	if s.archive != nil {
		report := models.NewDailyReport(scope, session.Map, s.now())
		if err := s.archive.SaveDailyReport(ctx, report); err != nil {
			s.logger.Warn("failed to archive daily report", zap.String("scope", scope.String()), zap.Error(err))
		}
	}

	if s.cfg.AutoEmail && s.reporter != nil {
		snapshot := session.Map.Clone()
		s.background("automatic report", func(ctx context.Context) error {
			return s.sendLedger(ctx, scope, snapshot)
		})
	}

	return session, nil
}

// SendReport mails the current ledger of scope.
func (s *Service) SendReport(ctx context.Context, scope models.Scope) error {
	session, err := s.Open(ctx, scope)
	if err != nil {
		return err
	}
	return s.sendLedger(ctx, scope, session.Map)
}

func (s *Service) sendLedger(ctx context.Context, scope models.Scope, m *models.ProductionMap) error {
	if s.reporter == nil {
		return fmt.Errorf("%w: reporting disabled", reporting.ErrMailUnavailable)
	}
	l := s.Ledger(scope)
	content, err := l.ReadBytes()
	if err != nil {
		return err
	}
	return s.reporter.SendLedger(ctx, scope, m, filepath.Base(l.Path()), content)
}

// ClearDay blanks the ledger of scope and drops its cache entries.
func (s *Service) ClearDay(_ context.Context, scope models.Scope) error {
	defer s.lock(scope)()

	if err := s.Ledger(scope).Clear(); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	if err := s.cache.ClearScope(scope); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	s.logger.Info("production day cleared", zap.String("scope", scope.String()))
	return nil
}

// Regenerate rebuilds the ledger of scope from the catalog.
func (s *Service) Regenerate(_ context.Context, scope models.Scope) (*models.ProductionMap, error) {
	defer s.lock(scope)()

	m, err := s.Ledger(scope).Regenerate()
	if err != nil {
		return nil, fmt.Errorf("regenerate ledger: %w", err)
	}
	if err := s.cache.ClearScope(scope); err != nil {
		return nil, fmt.Errorf("clear cache: %w", err)
	}
	return m, nil
}

// RestoreBackup replaces the ledger of scope with a snapshot and drops the
// cached state derived from the old file.
func (s *Service) RestoreBackup(ctx context.Context, scope models.Scope, record models.BackupRecord) error {
	if s.backups == nil {
		return errors.New("backups are not configured")
	}

	defer s.lock(scope)()

	if err := s.backups.Restore(ctx, scope, record, s.LedgerPath(scope)); err != nil {
		return err
	}
	if err := s.cache.ClearScope(scope); err != nil {
		return fmt.Errorf("clear cache after restore: %w", err)
	}
	return nil
}

// Wait blocks until background mirror and mail tasks finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) background(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.logger.Warn(name+" failed", zap.Error(err))
		}
	}()
}

// nextSlot is one past the highest slot filled by any item, capped at MaxSlots.
func nextSlot(m *models.ProductionMap) int {
	highest := 0
	if m != nil {
		for _, item := range m.Items {
			for i := len(item.Slots); i > highest; i-- {
				if item.Slots[i-1].Filled() {
					highest = i
					break
				}
			}
		}
	}
	return min(highest+1, models.MaxSlots)
}

package backup

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/vitrine/internal/domain/models"
	"github.com/mamadbah2/vitrine/internal/metrics"
	"github.com/mamadbah2/vitrine/pkg/atomicfile"
)

const (
	blobPrefix      = "backup_"
	blobSuffix      = ".enc"
	metaSuffix      = ".meta"
	tombstoneSuffix = ".deleting"
	lastBackupFile  = "last_backup"

	// DefaultRetention is the number of snapshots kept per scope.
	DefaultRetention = 5
	// DefaultInterval is the minimum spacing of automatic backups.
	DefaultInterval = 24 * time.Hour
)

// ErrBackupNotFound is returned when a named snapshot does not exist.
var ErrBackupNotFound = errors.New("backup not found")

// Encryptor seals snapshot payloads. Implemented by security.Service.
type Encryptor interface {
	IsAvailable() bool
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(blob []byte) ([]byte, error)
}

// Config controls where snapshots live and how many are kept.
type Config struct {
	// Dir is the root directory; each scope gets a sub-directory.
	Dir       string
	Retention int
	Interval  time.Duration
}

// Manager creates, rotates, verifies and restores encrypted ledger snapshots.
type Manager struct {
	cfg    Config
	enc    Encryptor
	now    func() time.Time
	logger *zap.Logger

	mu sync.Mutex
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides the clock used for names and the automatic window.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager wires a backup manager.
func NewManager(cfg Config, enc Encryptor, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retention < 1 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	m := &Manager{cfg: cfg, enc: enc, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) scopeDir(scope models.Scope) string {
	return filepath.Join(m.cfg.Dir, scope.String())
}

// CreateBackup encrypts the ledger at ledgerPath into a new snapshot and
// applies the retention policy. The ledger itself is only read.
func (m *Manager) CreateBackup(ctx context.Context, scope models.Scope, ledgerPath string) (*models.BackupRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(ctx, scope, ledgerPath)
}

func (m *Manager) createLocked(ctx context.Context, scope models.Scope, ledgerPath string) (rec *models.BackupRecord, err error) {
	defer func() {
		metrics.BackupOperationsTotal.WithLabelValues("create", metrics.Status(err)).Inc()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.enc == nil || !m.enc.IsAvailable() {
		return nil, fmt.Errorf("%w: encryption unavailable, backup skipped", models.ErrStorageUnavailable)
	}

	data, err := os.ReadFile(ledgerPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read ledger: %v", models.ErrStorageUnavailable, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("ledger %s is empty", ledgerPath)
	}

	blob, err := m.enc.Encrypt(data)
	if err != nil {
		return nil, fmt.Errorf("encrypt ledger: %w", err)
	}
	sum := sha256.Sum256(blob)

	dir := m.scopeDir(scope)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create backup directory: %v", models.ErrStorageUnavailable, err)
	}

	ts := m.now()
	name := m.uniqueName(dir, ts)
	blobPath := filepath.Join(dir, name)

	if err := m.writeFile(blobPath, blob); err != nil {
		return nil, fmt.Errorf("%w: write backup blob: %v", models.ErrStorageUnavailable, err)
	}

	record := &models.BackupRecord{
		FileName:      name,
		SourceName:    filepath.Base(ledgerPath),
		OriginalSize:  int64(len(data)),
		EncryptedSize: int64(len(blob)),
		Checksum:      hex.EncodeToString(sum[:]),
		Timestamp:     ts,
		SchemaVersion: models.BackupSchemaVersion,
	}

	meta, err := json.MarshalIndent(record, "", "  ")
	if err == nil {
		err = m.writeFile(blobPath+metaSuffix, meta)
	}
	if err != nil {
		if rmErr := os.Remove(blobPath); rmErr != nil {
			m.logger.Error("failed to remove blob after metadata failure", zap.String("blob", blobPath), zap.Error(rmErr))
		}
		return nil, fmt.Errorf("%w: write backup metadata: %v", models.ErrStorageUnavailable, err)
	}

	metrics.BackupSizeBytes.Set(float64(record.EncryptedSize))
	m.logger.Info("backup created",
		zap.String("scope", scope.String()),
		zap.String("file", name),
		zap.Int64("original_size", record.OriginalSize),
		zap.Int64("encrypted_size", record.EncryptedSize))

	if err := m.rotateLocked(scope); err != nil {
		m.logger.Warn("backup rotation failed", zap.String("scope", scope.String()), zap.Error(err))
	}
	return record, nil
}

// uniqueName derives the blob name from ts, bumping it when a snapshot with
// the same timestamp already exists.
func (m *Manager) uniqueName(dir string, ts time.Time) string {
	n := ts.UnixNano()
	for {
		name := blobPrefix + strconv.FormatInt(n, 10) + blobSuffix
		if _, err := os.Stat(filepath.Join(dir, name)); errors.Is(err, os.ErrNotExist) {
			return name
		}
		n++
	}
}

// ListBackups returns the snapshots of scope, newest first. Interrupted
// deletions are completed and unpaired files are removed on the way.
func (m *Manager) ListBackups(scope models.Scope) ([]models.BackupRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(scope)
}

func (m *Manager) listLocked(scope models.Scope) ([]models.BackupRecord, error) {
	dir := m.scopeDir(scope)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list backups: %v", models.ErrStorageUnavailable, err)
	}

	blobs := make(map[string]bool)
	metas := make(map[string]bool)
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, metaSuffix+tombstoneSuffix):
			blobName := strings.TrimSuffix(name, metaSuffix+tombstoneSuffix)
			m.logger.Warn("completing interrupted backup deletion", zap.String("file", blobName))
			m.removeQuietly(filepath.Join(dir, blobName), filepath.Join(dir, name))
		case strings.HasSuffix(name, blobSuffix+metaSuffix):
			metas[strings.TrimSuffix(name, metaSuffix)] = true
		case strings.HasPrefix(name, blobPrefix) && strings.HasSuffix(name, blobSuffix):
			blobs[name] = true
		}
	}

	var records []models.BackupRecord
	for blobName := range metas {
		if !blobs[blobName] {
			m.logger.Warn("removing backup metadata without blob", zap.String("file", blobName))
			m.removeQuietly(filepath.Join(dir, blobName+metaSuffix))
			continue
		}
		record, err := readRecord(filepath.Join(dir, blobName+metaSuffix))
		if err != nil {
			m.logger.Warn("removing backup with unreadable metadata", zap.String("file", blobName), zap.Error(err))
			m.removeQuietly(filepath.Join(dir, blobName), filepath.Join(dir, blobName+metaSuffix))
			continue
		}
		records = append(records, *record)
	}
	for blobName := range blobs {
		if !metas[blobName] {
			m.logger.Warn("removing backup blob without metadata", zap.String("file", blobName))
			m.removeQuietly(filepath.Join(dir, blobName))
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].FileName > records[j].FileName
		}
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// Latest returns the newest snapshot of scope, or nil when there is none.
func (m *Manager) Latest(scope models.Scope) (*models.BackupRecord, error) {
	records, err := m.ListBackups(scope)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

// Find loads the metadata of the named snapshot.
func (m *Manager) Find(scope models.Scope, fileName string) (*models.BackupRecord, error) {
	if !validName(fileName) {
		return nil, fmt.Errorf("%w: %q", ErrBackupNotFound, fileName)
	}
	dir := m.scopeDir(scope)
	if _, err := os.Stat(filepath.Join(dir, fileName)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, fileName)
	}
	record, err := readRecord(filepath.Join(dir, fileName+metaSuffix))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, fileName)
	}
	return record, err
}

func (m *Manager) rotateLocked(scope models.Scope) error {
	records, err := m.listLocked(scope)
	if err != nil {
		return err
	}
	if len(records) <= m.cfg.Retention {
		return nil
	}

	var errs []error
	for _, record := range records[m.cfg.Retention:] {
		if err := m.deleteLocked(scope, record); err != nil {
			errs = append(errs, err)
			continue
		}
		m.logger.Info("old backup rotated out", zap.String("scope", scope.String()), zap.String("file", record.FileName))
	}
	return errors.Join(errs...)
}

// VerifyIntegrity checks the on-disk blob against the recorded size and checksum.
func (m *Manager) VerifyIntegrity(scope models.Scope, record models.BackupRecord) bool {
	_, err := m.verify(scope, record)
	metrics.BackupOperationsTotal.WithLabelValues("verify", metrics.Status(err)).Inc()
	if err != nil {
		m.logger.Warn("backup failed integrity check",
			zap.String("scope", scope.String()),
			zap.String("file", record.FileName),
			zap.Error(err))
		return false
	}
	return true
}

// verify returns the blob content once size and checksum match.
func (m *Manager) verify(scope models.Scope, record models.BackupRecord) ([]byte, error) {
	if !validName(record.FileName) {
		return nil, fmt.Errorf("%w: invalid backup name %q", models.ErrIntegrity, record.FileName)
	}

	blob, err := os.ReadFile(filepath.Join(m.scopeDir(scope), record.FileName))
	if err != nil {
		return nil, fmt.Errorf("%w: read backup blob: %v", models.ErrIntegrity, err)
	}
	if int64(len(blob)) != record.EncryptedSize {
		return nil, fmt.Errorf("%w: size %d, recorded %d", models.ErrIntegrity, len(blob), record.EncryptedSize)
	}

	want, err := hex.DecodeString(record.Checksum)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed checksum: %v", models.ErrIntegrity, err)
	}
	got := sha256.Sum256(blob)
	if subtle.ConstantTimeCompare(want, got[:]) != 1 {
		return nil, fmt.Errorf("%w: checksum mismatch", models.ErrIntegrity)
	}
	return blob, nil
}

// Restore verifies and decrypts a snapshot into target. On any failure the
// target is left as it was.
func (m *Manager) Restore(ctx context.Context, scope models.Scope, record models.BackupRecord, target string) (err error) {
	defer func() {
		metrics.BackupOperationsTotal.WithLabelValues("restore", metrics.Status(err)).Inc()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	blob, err := m.verify(scope, record)
	if err != nil {
		return err
	}
	if m.enc == nil || !m.enc.IsAvailable() {
		return fmt.Errorf("%w: encryption unavailable, restore refused", models.ErrStorageUnavailable)
	}

	plaintext, err := m.enc.Decrypt(blob)
	if err != nil {
		return fmt.Errorf("decrypt backup %s: %w", record.FileName, err)
	}
	if len(plaintext) == 0 {
		return fmt.Errorf("%w: backup %s decrypted to nothing", models.ErrIntegrity, record.FileName)
	}

	if err := atomicfile.WriteBytes(target, plaintext, 0o640); !atomicfile.Replaced(err) {
		return fmt.Errorf("%w: write restored ledger: %v", models.ErrStorageUnavailable, err)
	} else if err != nil {
		m.logger.Warn("ledger restored but directory not synced", zap.String("target", target), zap.Error(err))
	}

	m.logger.Info("backup restored",
		zap.String("scope", scope.String()),
		zap.String("file", record.FileName),
		zap.String("target", target))
	return nil
}

// DeleteBackup removes a snapshot and its metadata together.
func (m *Manager) DeleteBackup(scope models.Scope, record models.BackupRecord) (err error) {
	defer func() {
		metrics.BackupOperationsTotal.WithLabelValues("delete", metrics.Status(err)).Inc()
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(scope, record)
}

// deleteLocked first renames the metadata to a tombstone so that a crash
// midway leaves a state listLocked knows how to finish.
func (m *Manager) deleteLocked(scope models.Scope, record models.BackupRecord) error {
	if !validName(record.FileName) {
		return fmt.Errorf("%w: %q", ErrBackupNotFound, record.FileName)
	}

	dir := m.scopeDir(scope)
	blobPath := filepath.Join(dir, record.FileName)
	metaPath := blobPath + metaSuffix
	tombstone := metaPath + tombstoneSuffix

	if err := os.Rename(metaPath, tombstone); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: mark backup for deletion: %v", models.ErrStorageUnavailable, err)
	}
	if err := os.Remove(blobPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove backup blob: %v", models.ErrStorageUnavailable, err)
	}
	if err := os.Remove(tombstone); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove backup metadata: %v", models.ErrStorageUnavailable, err)
	}
	return atomicfile.SyncDir(dir)
}

// AutoBackupIfDue creates a snapshot when none was taken automatically during
// the configured interval. A missing ledger is not an error.
func (m *Manager) AutoBackupIfDue(ctx context.Context, scope models.Scope, ledgerPath string) (bool, error) {
	if _, err := os.Stat(ledgerPath); errors.Is(err, os.ErrNotExist) {
		m.logger.Debug("no ledger to back up", zap.String("scope", scope.String()))
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	statePath := filepath.Join(m.scopeDir(scope), lastBackupFile)
	last := readLastBackup(statePath)
	now := m.now()
	if !last.IsZero() && now.Sub(last) < m.cfg.Interval {
		return false, nil
	}

	record, err := m.createLocked(ctx, scope, ledgerPath)
	if err != nil {
		return false, err
	}

	stamp := []byte(record.Timestamp.UTC().Format(time.RFC3339Nano))
	if err := m.writeFile(statePath, stamp); err != nil {
		m.logger.Warn("failed to persist last backup time", zap.String("scope", scope.String()), zap.Error(err))
	}
	return true, nil
}

func readLastBackup(path string) time.Time {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}
	}
	return ts
}

func readRecord(path string) (*models.BackupRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var record models.BackupRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode backup metadata: %w", err)
	}
	return &record, nil
}

func validName(name string) bool {
	return name != "" &&
		filepath.Base(name) == name &&
		strings.HasPrefix(name, blobPrefix) &&
		strings.HasSuffix(name, blobSuffix)
}

// writeFile stores a private backup file. A replace that landed without its
// directory sync is logged and treated as written.
func (m *Manager) writeFile(path string, data []byte) error {
	err := atomicfile.WriteBytes(path, data, 0o600)
	if atomicfile.Replaced(err) && err != nil {
		m.logger.Warn("backup file written but directory not synced", zap.String("file", path), zap.Error(err))
		return nil
	}
	return err
}

func (m *Manager) removeQuietly(paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("failed to remove backup file", zap.String("path", path), zap.Error(err))
		}
	}
}

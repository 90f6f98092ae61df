package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Storage   StorageConfig
	Cache     CacheConfig
	Backup    BackupConfig
	Mail      MailConfig
	Reporting ReportingConfig
	Sheets    SheetsConfig
	MongoDB   MongoDBConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// LogConfig selects the zap level.
type LogConfig struct {
	Level string
}

// StorageConfig locates the per-scope ledgers.
type StorageConfig struct {
	DataDir        string
	LedgerFileName string
	// AutoRollover backs up and clears a ledger left over from a previous day.
	AutoRollover bool
	ExportDir    string
}

// CacheConfig controls the daily cache and its encryption key.
type CacheConfig struct {
	Dir            string
	Encrypted      bool
	AllowPlaintext bool
	KeyFile        string
}

// BackupConfig holds snapshot retention and scheduling.
type BackupConfig struct {
	Retention     int
	Interval      time.Duration
	CheckSchedule string
	Auto          bool
}

// MailConfig points at the HTTP mail relay.
type MailConfig struct {
	RelayURL   string
	Token      string
	Recipients []string
	Timeout    time.Duration
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule string
	Timezone     string
	AutoEmail    bool
}

// SheetsConfig contains configuration required to mirror ledgers to Google Sheets.
// Leaving SpreadsheetID empty disables the mirror.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// MongoDBConfig holds settings for the daily report archive. An empty URI
// disables it.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are acceptable when configuration comes from the
		// environment directly.
		_ = godotenv.Load()
	}

	var p parser
	dataDir := getenvWithDefault("DATA_DIR", "./data")

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			DataDir:        dataDir,
			LedgerFileName: getenvWithDefault("LEDGER_FILE_NAME", "mapa_producao.xlsx"),
			AutoRollover:   p.flag("LEDGER_AUTO_ROLLOVER", true),
			ExportDir:      getenvWithDefault("EXPORT_DIR", ExportDefault),
		},
		Cache: CacheConfig{
			Dir:            getenvWithDefault("CACHE_DIR", filepath.Join(dataDir, "cache")),
			Encrypted:      p.flag("CACHE_ENCRYPTED", true),
			AllowPlaintext: p.flag("CACHE_ALLOW_PLAINTEXT", false),
			KeyFile:        getenvWithDefault("KEY_FILE", filepath.Join(dataDir, "keys", "device.key")),
		},
		Backup: BackupConfig{
			Retention:     p.integer("BACKUP_RETENTION", 5),
			Interval:      p.duration("BACKUP_INTERVAL", 24*time.Hour),
			CheckSchedule: getenvWithDefault("BACKUP_CHECK_SCHEDULE", "@every 1h"),
			Auto:          p.flag("AUTO_BACKUP", true),
		},
		Mail: MailConfig{
			RelayURL:   os.Getenv("MAIL_RELAY_URL"),
			Token:      os.Getenv("MAIL_RELAY_TOKEN"),
			Recipients: splitList(os.Getenv("MAIL_RECIPIENTS")),
			Timeout:    p.duration("MAIL_TIMEOUT", 10*time.Second),
		},
		Reporting: ReportingConfig{
			CronSchedule: getenvWithDefault("REPORT_CRON_SCHEDULE", "0 21 * * *"),
			Timezone:     getenvWithDefault("TIMEZONE", "Europe/Lisbon"),
			AutoEmail:    p.flag("AUTO_EMAIL", false),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_ID"),
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGODB_URI"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "vitrine"),
		},
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch {
	case c.Storage.DataDir == "":
		return errors.New("DATA_DIR must be provided")
	case c.Storage.LedgerFileName == "":
		return errors.New("LEDGER_FILE_NAME must be provided")
	case filepath.Base(c.Storage.LedgerFileName) != c.Storage.LedgerFileName:
		return errors.New("LEDGER_FILE_NAME must be a bare file name")
	}

	if c.Cache.Dir == "" {
		return errors.New("CACHE_DIR must be provided")
	}
	if c.Cache.KeyFile == "" {
		return errors.New("KEY_FILE must be provided")
	}

	if c.Backup.Retention < 1 {
		return errors.New("BACKUP_RETENTION must be at least 1")
	}
	if c.Backup.Interval <= 0 {
		return errors.New("BACKUP_INTERVAL must be positive")
	}
	if c.Backup.CheckSchedule == "" {
		return errors.New("BACKUP_CHECK_SCHEDULE must be provided")
	}

	if c.Reporting.CronSchedule == "" {
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	}
	if c.Reporting.Timezone == "" {
		return errors.New("TIMEZONE must be provided")
	}
	if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}

	if c.Reporting.AutoEmail {
		if c.Mail.RelayURL == "" {
			return errors.New("MAIL_RELAY_URL must be provided when AUTO_EMAIL is enabled")
		}
		if len(c.Mail.Recipients) == 0 {
			return errors.New("MAIL_RECIPIENTS must be provided when AUTO_EMAIL is enabled")
		}
	}
	if c.Mail.Timeout <= 0 {
		return errors.New("MAIL_TIMEOUT must be positive")
	}

	if c.Sheets.SpreadsheetID != "" && c.Sheets.CredentialsPath == "" {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH must be provided when GOOGLE_SHEET_ID is set")
	}

	if err := c.Settings().validate(); err != nil {
		return err
	}

	return nil
}

// Location returns the configured timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Reporting.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// BackupDir is the root of the per-scope snapshot directories.
func (c *Config) BackupDir() string {
	return filepath.Join(c.Storage.DataDir, "backups")
}

// Settings exposes the user-facing toggles.
func (c *Config) Settings() Settings {
	return Settings{
		ExportDir:  c.Storage.ExportDir,
		AutoBackup: c.Backup.Auto,
		AutoEmail:  c.Reporting.AutoEmail,
		dataDir:    c.Storage.DataDir,
	}
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parser collects conversion errors so Load reports every bad variable at once.
type parser struct {
	errs []error
}

func (p *parser) flag(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a boolean: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) integer(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be an integer: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a duration: %w", key, err))
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"fmt"
	"path/filepath"
)

// Export directory keywords accepted by EXPORT_DIR.
const (
	ExportDefault   = "default"
	ExportDocuments = "documents"
	ExportDownloads = "downloads"
)

// Settings is the read-only view of user preferences.
type Settings struct {
	ExportDir  string
	AutoBackup bool
	AutoEmail  bool

	dataDir string
}

func (s Settings) validate() error {
	switch s.ExportDir {
	case ExportDefault, ExportDocuments, ExportDownloads:
		return nil
	}
	if !filepath.IsAbs(s.ExportDir) {
		return fmt.Errorf("EXPORT_DIR must be %q, %q, %q or an absolute path, got %q",
			ExportDefault, ExportDocuments, ExportDownloads, s.ExportDir)
	}
	return nil
}

// ExportDirectory resolves ExportDir against the user's home directory.
func (s Settings) ExportDirectory(home string) (string, error) {
	switch s.ExportDir {
	case ExportDefault, "":
		return filepath.Join(s.dataDir, "exports"), nil
	case ExportDocuments:
		return filepath.Join(home, "Documents"), nil
	case ExportDownloads:
		return filepath.Join(home, "Downloads"), nil
	}
	if err := s.validate(); err != nil {
		return "", err
	}
	return s.ExportDir, nil
}

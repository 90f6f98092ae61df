package models

import "time"

// BackupSchemaVersion is written into every backup metadata record.
const BackupSchemaVersion = 1

// BackupRecord is the metadata stored next to an encrypted ledger snapshot.
type BackupRecord struct {
	FileName      string    `json:"file_name"`
	SourceName    string    `json:"source_name"`
	OriginalSize  int64     `json:"original_size"`
	EncryptedSize int64     `json:"encrypted_size"`
	Checksum      string    `json:"checksum"`
	Timestamp     time.Time `json:"timestamp"`
	SchemaVersion int       `json:"schema_version"`
}

package storage

import (
	"fmt"
	"strings"
)

// Config selects and configures a storage backend.
type Config struct {
	Backend  string // "local" or "s3"
	LocalDir string // base directory for the local backend
	S3       S3Config
}

// NewStorage creates an ObjectStorage instance based on the configuration.
// Parameters:
//   - cfg: storage configuration including backend selection.
// Returns:
//   - ObjectStorage: initialized storage implementation.
//   - error: non-nil if the storage backend cannot be created.
func NewStorage(cfg *Config) (ObjectStorage, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		return NewLocalStorage(cfg.LocalDir)
	case "s3":
		// Auto-detect storage type if not specified
		if cfg.S3.Type == "" {
			cfg.S3.Type = detectStorageType(cfg.S3.Endpoint)
		}
		return NewS3Storage(&cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}

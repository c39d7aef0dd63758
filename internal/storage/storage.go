package storage

import (
	"fmt"

	"licensegate/internal/config"
	"licensegate/internal/license"
)

// New selects the artifact backend named by the configuration
func New(cfg config.StorageConfig) (license.ArtifactStore, error) {
	switch cfg.Backend {
	case "fs":
		return NewFileStore(cfg.Root), nil
	case "s3":
		return NewS3Store(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

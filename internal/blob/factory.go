package blob

import (
	"context"
	"fmt"

	"github.com/lalith-99/huddle/internal/config"
)

// NewFromConfig builds the Store selected by cfg.BlobBackend.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.BlobBackend {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.BlobDir == "" {
			return nil, fmt.Errorf("filesystem blob backend requires blob_dir to be set")
		}
		return NewFileSystemStore(cfg.BlobDir, cfg.BlobBaseURL)
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend: %s", cfg.BlobBackend)
	}
}

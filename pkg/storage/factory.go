package storage

import (
	"context"

	"github.com/geoconvert/geoconvert/internal/config"
)

// New selects and constructs the Backend implementation named by
// cfg.StorageBackend (spec Design Notes: runtime polymorphism limited to
// this single selection at startup).
func New(ctx context.Context, cfg config.Config) (Backend, error) {
	switch cfg.StorageBackend {
	case config.StorageS3, config.StorageMinio:
		return NewS3Backend(ctx, S3Options{
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			ForcePathStyle:  cfg.S3ForcePathStyle,
			UploadBucket:    cfg.S3Bucket,
			OutputBucket:    cfg.S3Bucket,
		})
	default:
		return NewLocalBackend(cfg.LocalUploadDir, cfg.LocalOutputDir, "/api/v1/download/file")
	}
}

package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// SavedObject describes a persisted artifact.
type SavedObject struct {
	Path string
	Size int64
}

// Sink is the contract generators and delivery handlers use for artifact
// storage. Implementations must support read-after-write within the same
// process.
type Sink interface {
	Save(ctx context.Context, path string, data []byte) (SavedObject, error)
	Open(ctx context.Context, path string) ([]byte, error)
}

// Config selects and parameterizes a Sink implementation.
type Config struct {
	Provider string // "local" or "s3"
	BasePath string // local: directory artifacts are rooted at
	S3Bucket string
	S3Region string
}

// NewSink creates a storage sink based on configuration.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocalSink(cfg.BasePath, logger)
	case "s3":
		return NewS3Sink(cfg.S3Bucket, cfg.S3Region, logger)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}

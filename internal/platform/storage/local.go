package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LocalSink stores artifacts under a base directory on the local
// filesystem (or a mounted shared volume).
type LocalSink struct {
	basePath string
	logger   *slog.Logger
}

func NewLocalSink(basePath string, logger *slog.Logger) (*LocalSink, error) {
	if basePath == "" {
		basePath = os.TempDir()
		logger.Warn("Storage base path not configured, using temp dir", "path", basePath)
	}
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("could not create storage base directory: %w", err)
	}
	return &LocalSink{basePath: basePath, logger: logger.With("component", "local_sink")}, nil
}

func (s *LocalSink) Save(ctx context.Context, path string, data []byte) (SavedObject, error) {
	full, err := s.resolve(path)
	if err != nil {
		return SavedObject{}, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return SavedObject{}, fmt.Errorf("could not create artifact directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0640); err != nil {
		return SavedObject{}, fmt.Errorf("writing artifact failed: %w", err)
	}

	info, err := os.Stat(full)
	if err != nil {
		return SavedObject{}, fmt.Errorf("stat written artifact: %w", err)
	}

	s.logger.InfoContext(ctx, "Artifact saved", "path", path, "size", info.Size())
	return SavedObject{Path: path, Size: info.Size()}, nil
}

func (s *LocalSink) Open(ctx context.Context, path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", path, err)
	}
	return data, nil
}

// resolve joins path onto the base directory and rejects traversal
// outside it.
func (s *LocalSink) resolve(path string) (string, error) {
	full := filepath.Join(s.basePath, filepath.FromSlash(path))
	if !strings.HasPrefix(full, filepath.Clean(s.basePath)+string(os.PathSeparator)) {
		return "", fmt.Errorf("artifact path escapes storage root: %s", path)
	}
	return full, nil
}

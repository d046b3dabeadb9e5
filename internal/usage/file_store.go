package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"travel-gateway/internal/domain"
)

// FileStore keeps the counters as one JSON document on local disk.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("usage: file path must not be empty")
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) Load(_ context.Context) (domain.UsageStats, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.UsageStats{}, ErrNotFound
	}
	if err != nil {
		return domain.UsageStats{}, fmt.Errorf("usage: read %s: %w", f.path, err)
	}
	var stats domain.UsageStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return domain.UsageStats{}, fmt.Errorf("usage: decode %s: %w", f.path, err)
	}
	return stats, nil
}

// Save writes to a temporary file and renames it over the target.
func (f *FileStore) Save(_ context.Context, stats domain.UsageStats) error {
	raw, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("usage: encode stats: %w", err)
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".stats-*.json")
	if err != nil {
		return fmt.Errorf("usage: create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("usage: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("usage: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("usage: replace %s: %w", f.path, err)
	}
	return nil
}

package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps the limits as a single JSON object: {"<identity>": <unix seconds>}.
type FileStore struct {
	Path string
}

// Load returns an empty map when the file does not exist yet.
func (fs *FileStore) Load(_ context.Context) (map[string]float64, error) {
	b, err := os.ReadFile(fs.Path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]float64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rate limits: %w", err)
	}
	limits := map[string]float64{}
	if err := json.Unmarshal(b, &limits); err != nil {
		return nil, fmt.Errorf("decode rate limits %s: %w", fs.Path, err)
	}
	return limits, nil
}

// Save rewrites the whole file via a temp file and rename so readers never see a partial write.
func (fs *FileStore) Save(_ context.Context, limits map[string]float64) error {
	b, err := json.Marshal(limits)
	if err != nil {
		return fmt.Errorf("encode rate limits: %w", err)
	}
	dir := filepath.Dir(fs.Path)
	tmp, err := os.CreateTemp(dir, ".rate_limits-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write rate limits: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close rate limits: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.Path); err != nil {
		return fmt.Errorf("replace rate limits: %w", err)
	}
	return nil
}

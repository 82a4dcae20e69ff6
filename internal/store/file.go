package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore keeps snapshots as JSON files under a directory.
type FileStore struct {
	dir string
	now Clock
}

func NewFile(dir string, now Clock) *FileStore {
	return &FileStore{dir: dir, now: now}
}

func (f *FileStore) Name() string { return "file" }

func (f *FileStore) path(name string) string {
	return filepath.FromSlash(RotatedPath(filepath.ToSlash(filepath.Join(f.dir, name+".json")), f.now()))
}

func (f *FileStore) Save(_ context.Context, name string, v any) error {
	p := f.path(name)
	slog.Info("saving snapshot", "path", p)
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	// write then rename, readers never see a partial file
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return os.Rename(tmp, p)
}

func (f *FileStore) Load(_ context.Context, name string, v any) (bool, error) {
	p := f.path(name)
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", p, err)
	}
	slog.Info("reading snapshot", "path", p)
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", p, err)
	}
	return true, nil
}

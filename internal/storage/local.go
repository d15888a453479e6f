// Package storage keeps uploaded files on disk between the upload, preview
// and import requests. Files are addressed by an opaque fileId and are never
// modified after they are written.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrFileNotFound is returned for unknown or malformed file IDs.
var ErrFileNotFound = errors.New("file not found")

const idPrefix = "file-"

// Store is the upload blob store used by the service.
type Store interface {
	Save(ctx context.Context, filename string, data []byte) (string, error)
	Read(ctx context.Context, fileID string) ([]byte, error)
	Delete(ctx context.Context, fileID string) error
}

// LocalStore implements Store on the local filesystem.
type LocalStore struct {
	dir string
	now func() time.Time
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &LocalStore{dir: dir, now: time.Now}, nil
}

// Dir returns the directory files are stored in.
func (s *LocalStore) Dir() string { return s.dir }

// Save writes data under a new file ID. The original extension is kept so
// the format can be detected again from the ID alone.
func (s *LocalStore) Save(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := newFileID(s.now(), filename)
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(s.dir, id)); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("storing file: %w", err)
	}

	slog.DebugContext(ctx, "upload stored", "file_id", id, "bytes", len(data))
	return id, nil
}

// Read returns the stored bytes for fileID.
func (s *LocalStore) Read(ctx context.Context, fileID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(fileID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes fileID. Deleting a missing file is not an error.
func (s *LocalStore) Delete(ctx context.Context, fileID string) error {
	path, err := s.path(fileID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// Sweep deletes stored files last modified before now-maxAge and returns how
// many were removed. Files not created by Save are left alone.
func (s *LocalStore) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("listing upload directory: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() || !validID(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed concurrently
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("deleting %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func (s *LocalStore) path(fileID string) (string, error) {
	if !validID(fileID) {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	return filepath.Join(s.dir, fileID), nil
}

// newFileID builds "file-<unix millis>-<random><ext>".
func newFileID(now time.Time, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s%d-%s%s", idPrefix, now.UnixMilli(), random, ext)
}

// validID rejects anything that could escape the upload directory.
func validID(id string) bool {
	if !strings.HasPrefix(id, idPrefix) || len(id) > 255 {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..") && filepath.Base(id) == id
}

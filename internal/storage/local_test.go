package storage

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_SaveRead(t *testing.T) {
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	ctx := context.Background()

	id, err := s.Save(ctx, "Customers.XLSX", []byte("payload"))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^file-\d+-[0-9a-f]{12}\.xlsx$`), id)

	data, err := s.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	other, err := s.Save(ctx, "Customers.XLSX", []byte("payload"))
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Read(ctx, id)
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.NoError(t, s.Delete(ctx, id))
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("x"), 0o600))

	for _, id := range []string{
		"../secret.txt",
		"file-1-../../secret.txt",
		"file-1-a/b.csv",
		`file-1-a\b.csv`,
		"secret.txt",
		"",
	} {
		t.Run(id, func(t *testing.T) {
			_, err := s.Read(context.Background(), id)
			assert.ErrorIs(t, err, ErrFileNotFound)
		})
	}
}

func TestLocalStore_Sweep(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	oldID, err := s.Save(ctx, "old.csv", []byte("a"))
	require.NoError(t, err)
	newID, err := s.Save(ctx, "new.csv", []byte("b"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("c"), 0o600))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, oldID), past, past))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "keep.txt"), past, past))

	removed, err := s.Sweep(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Read(ctx, oldID)
	assert.ErrorIs(t, err, ErrFileNotFound)
	_, err = s.Read(ctx, newID)
	assert.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "keep.txt"))
}

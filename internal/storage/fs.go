package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/spf13/afero"

	"licensegate/internal/license"
)

// FileStore reads artifacts below a root directory
type FileStore struct {
	fs afero.Fs
}

var _ license.ArtifactStore = (*FileStore)(nil)

// NewFileStore serves files below root on the OS filesystem
func NewFileStore(root string) *FileStore {
	return NewFileStoreFs(afero.NewBasePathFs(afero.NewOsFs(), root))
}

// NewFileStoreFs serves files from an arbitrary afero filesystem
func NewFileStoreFs(fsys afero.Fs) *FileStore {
	return &FileStore{fs: afero.NewReadOnlyFs(fsys)}
}

// Open implements license.ArtifactStore
func (s *FileStore) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	name, err := cleanKey(key)
	if err != nil {
		return nil, 0, err
	}

	f, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, license.ErrArtifactNotFound
		}
		return nil, 0, fmt.Errorf("open artifact %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat artifact %s: %w", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, license.ErrArtifactNotFound
	}
	return f, info.Size(), nil
}

// cleanKey rejects keys that would escape the root
func cleanKey(key string) (string, error) {
	if key == "" || strings.Contains(key, "\\") {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	cleaned := path.Clean("/" + key)
	if cleaned == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return cleaned, nil
}

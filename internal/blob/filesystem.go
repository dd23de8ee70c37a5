package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSystemStore keeps objects as files under root. URLs are baseURL
// joined with the key; the API serves root at that base.
type FileSystemStore struct {
	root    string
	baseURL string
}

func NewFileSystemStore(root, baseURL string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FileSystemStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Path returns the file path for key. The file may not exist.
func (s *FileSystemStore) Path(key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *FileSystemStore) Put(ctx context.Context, key string, body io.Reader, size int64, _ string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create blob directory: %w", err)
	}

	// Write to a temp file in the same directory and rename, so readers
	// never see a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: body})
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if size >= 0 && written != size {
		return "", sizeMismatch(size, written)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("rename blob: %w", err)
	}
	success = true

	return s.baseURL + "/" + key, nil
}

func (s *FileSystemStore) Delete(_ context.Context, url string) error {
	key, err := keyFromURL(s.baseURL, url)
	if err != nil {
		return err
	}
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

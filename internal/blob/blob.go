// Package blob stores uploaded file bodies and hands back a URL for each.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Store is the blob storage contract. Put reads body to EOF and returns a
// URL the file can be fetched from; Delete removes the object behind a URL
// previously returned by Put.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
}

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
	ErrForeignURL = errors.New("url does not belong to this store")
)

// CleanKey normalizes a slash-separated object key and rejects keys that
// would escape the store root.
func CleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// keyFromURL strips base from url and validates what is left.
func keyFromURL(base, url string) (string, error) {
	prefix := strings.TrimSuffix(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, url)
	}
	return CleanKey(strings.TrimPrefix(url, prefix))
}

func sizeMismatch(want, got int64) error {
	return fmt.Errorf("size mismatch: expected %d bytes, got %d", want, got)
}

package blob

import (
	"context"
	"fmt"
	"io"
	"sync"
)

const memoryBaseURL = "mem://blobs"

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(contextReader{ctx: ctx, r: body})
	if err != nil {
		return "", fmt.Errorf("read blob: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return "", sizeMismatch(size, int64(len(data)))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	return memoryBaseURL + "/" + key, nil
}

func (m *MemoryStore) Delete(_ context.Context, url string) error {
	key, err := keyFromURL(memoryBaseURL, url)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(m.objects, key)
	return nil
}

// Get returns a copy of the object behind url.
func (m *MemoryStore) Get(url string) ([]byte, string, error) {
	key, err := keyFromURL(memoryBaseURL, url)
	if err != nil {
		return nil, "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, obj.contentType, nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

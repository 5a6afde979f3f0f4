package testing

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/aristath/sentinel-signals/internal/modelstore"
)

// MockModelStore is an in-memory modelstore.Store
type MockModelStore struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	Uploads   int
	Downloads int
	UploadErr error
}

// NewMockModelStore creates an empty in-memory model store
func NewMockModelStore() *MockModelStore {
	return &MockModelStore{blobs: make(map[string][]byte)}
}

// Upload stores the contents of localPath under key
func (m *MockModelStore) Upload(ctx context.Context, key, localPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UploadErr != nil {
		return m.UploadErr
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.blobs[key] = data
	m.Uploads++
	return nil
}

// Download writes the blob at key to localPath
func (m *MockModelStore) Download(ctx context.Context, key, localPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Downloads++
	data, ok := m.blobs[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, modelstore.ErrNotFound)
	}
	return os.WriteFile(localPath, data, 0644)
}

// Keys lists stored keys
func (m *MockModelStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	return keys
}

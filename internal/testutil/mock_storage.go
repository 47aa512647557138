// mock_storage.go - In-memory blob storage for testing
package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/extractdesk/backend/internal/models"
	"github.com/extractdesk/backend/internal/storage"
)

// MockStorage implements storage.Store in memory
type MockStorage struct {
	blobs    map[string]*models.BlobInfo
	blobData map[string][]byte
	mu       sync.RWMutex

	// SaveErr, when set, is returned by Save.
	SaveErr error
	// OpenErr, when set, is returned by Open.
	OpenErr error
}

// NewMockStorage creates a new empty mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		blobs:    make(map[string]*models.BlobInfo),
		blobData: make(map[string][]byte),
	}
}

func (m *MockStorage) Save(name string, r io.Reader) (*models.BlobInfo, error) {
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.AddBlob(generateTestID(), name, data), nil
}

func (m *MockStorage) Get(id string) (*models.BlobInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.blobs[id]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return info, nil
}

func (m *MockStorage) Open(id string) (io.ReadCloser, error) {
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	data, err := m.GetBlobData(id)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.blobs[id]; !exists {
		return errors.New("blob not found")
	}

	delete(m.blobs, id)
	delete(m.blobData, id)
	return nil
}

func (m *MockStorage) GetFilePath(id string) (string, error) {
	return "/mock/path/" + id, nil
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// Test Helper Methods

// AddBlob adds a blob directly to the mock
func (m *MockStorage) AddBlob(id string, name string, data []byte) *models.BlobInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := &models.BlobInfo{
		ID:           id,
		Name:         name,
		Size:         int64(len(data)),
		DetectedType: "application/octet-stream",
		StoredAt:     time.Now(),
	}
	m.blobs[id] = info
	m.blobData[id] = data
	return info
}

// GetBlobData returns the blob content
func (m *MockStorage) GetBlobData(id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobData[id]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return data, nil
}

// GetBlobCount returns the number of stored blobs
func (m *MockStorage) GetBlobCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// HasBlob reports whether id is still stored
func (m *MockStorage) HasBlob(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[id]
	return ok
}

// generateTestID generates a simple test ID
var testIDCounter int
var testIDMutex sync.Mutex

func generateTestID() string {
	testIDMutex.Lock()
	defer testIDMutex.Unlock()
	testIDCounter++
	return fmt.Sprintf("test-id-%d", testIDCounter)
}

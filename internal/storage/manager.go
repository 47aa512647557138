package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/extractdesk/backend/internal/models"
)

// sniffLen is how many leading bytes are inspected for content type detection.
const sniffLen = 3072

// Store defines the interface for selected-file blob storage.
type Store interface {
	Save(name string, r io.Reader) (*models.BlobInfo, error)
	Get(id string) (*models.BlobInfo, error)
	Open(id string) (io.ReadCloser, error)
	Delete(id string) error
	GetFilePath(id string) (string, error)
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu      sync.RWMutex
	blobDir string
	blobs   map[string]*models.BlobInfo
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(blobDir string) (*LocalStore, error) {
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}

	return &LocalStore{
		blobDir: blobDir,
		blobs:   make(map[string]*models.BlobInfo),
	}, nil
}

// Save writes the reader's bytes to a new blob and sniffs its content type.
func (s *LocalStore) Save(name string, r io.Reader) (*models.BlobInfo, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("reading file header: %w", err)
	}
	head = head[:n]

	id := uuid.New().String()
	path := filepath.Join(s.blobDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating blob: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, io.MultiReader(bytes.NewReader(head), r))
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing blob: %w", err)
	}

	info := &models.BlobInfo{
		ID:           id,
		Name:         name,
		Size:         size,
		DetectedType: mimetype.Detect(head).String(),
		StoredAt:     time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = info

	return info, nil
}

// Get retrieves blob metadata by ID.
func (s *LocalStore) Get(id string) (*models.BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.blobs[id]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", id)
	}

	return info, nil
}

// Open returns a reader over the blob's bytes. The caller closes it.
func (s *LocalStore) Open(id string) (io.ReadCloser, error) {
	path, err := s.GetFilePath(id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening blob: %w", err)
	}
	return f, nil
}

// Delete removes a blob from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[id]; !ok {
		return fmt.Errorf("blob not found: %s", id)
	}

	path := filepath.Join(s.blobDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting blob: %w", err)
	}

	delete(s.blobs, id)
	return nil
}

// GetFilePath returns the absolute path to a blob.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.blobs[id]; !ok {
		return "", fmt.Errorf("blob not found: %s", id)
	}

	return filepath.Join(s.blobDir, id), nil
}

// Count returns the number of blobs currently held.
func (s *LocalStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// PurgeUntracked removes files in the blob directory that this store did not
// write, such as selections left behind by a previous process.
func (s *LocalStore) PurgeUntracked() (int, error) {
	entries, err := os.ReadDir(s.blobDir)
	if err != nil {
		return 0, fmt.Errorf("listing blob directory: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := s.blobs[entry.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.blobDir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("removing stale blob: %w", err)
		}
		removed++
	}
	return removed, nil
}

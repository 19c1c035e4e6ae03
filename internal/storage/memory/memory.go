package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	apperrors "github.com/utafrali/storefront/pkg/errors"

	"github.com/utafrali/storefront/internal/storage"
)

// fileEntry stores metadata about an uploaded file in memory.
type fileEntry struct {
	ContentType string
	Size        int64
	URL         string
}

// Storage implements storage.Storage using an in-memory map.
// It keeps metadata only; file bytes are drained and dropped.
type Storage struct {
	mu      sync.RWMutex
	files   map[string]*fileEntry
	baseURL string
}

// New creates a new in-memory storage instance.
func New(baseURL string) *Storage {
	return &Storage{
		files:   make(map[string]*fileEntry),
		baseURL: baseURL,
	}
}

// Upload records the file and returns the generated URL.
func (s *Storage) Upload(_ context.Context, input *storage.UploadInput) (*storage.UploadResult, error) {
	size := input.Size
	if input.Data != nil {
		n, err := io.Copy(io.Discard, input.Data)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		size = n
	}

	publicID := storage.NewPublicID(input)
	url := fmt.Sprintf("%s/media/%s", s.baseURL, publicID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[publicID] = &fileEntry{
		ContentType: input.ContentType,
		Size:        size,
		URL:         url,
	}

	return &storage.UploadResult{URL: url, PublicID: publicID}, nil
}

// Delete removes file metadata from memory.
func (s *Storage) Delete(_ context.Context, publicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.files[publicID]; !exists {
		return apperrors.NotFoundMessage("file not found: " + publicID)
	}

	delete(s.files, publicID)
	return nil
}

// Has reports whether publicID is stored.
func (s *Storage) Has(publicID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[publicID]
	return ok
}

// Len returns the number of stored files.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

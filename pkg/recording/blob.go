// Package recording converts a continuous processed stream into discrete,
// independently durable time-boxed chunks, bounding retained memory.
package recording

import (
	"sync"

	"github.com/google/uuid"
)

// BlobStore is the in-memory analog of object URLs: it hands out opaque
// handles for byte blobs and releases them on Revoke. A handle is
// exclusively owned by whichever manager created it until revoked.
type BlobStore struct {
	locker sync.Mutex
	blobs  map[string][]byte
}

func NewBlobStore() *BlobStore {
	return &BlobStore{
		blobs: map[string][]byte{},
	}
}

// Create stores the blob and returns its handle.
func (s *BlobStore) Create(data []byte) string {
	s.locker.Lock()
	defer s.locker.Unlock()
	url := "blob:" + uuid.NewString()
	s.blobs[url] = data
	return url
}

// Get resolves a handle; ok is false for unknown or revoked handles.
func (s *BlobStore) Get(url string) ([]byte, bool) {
	s.locker.Lock()
	defer s.locker.Unlock()
	data, ok := s.blobs[url]
	return data, ok
}

// Revoke releases the blob behind the handle. Revoking an unknown handle
// is a no-op.
func (s *BlobStore) Revoke(url string) {
	s.locker.Lock()
	defer s.locker.Unlock()
	delete(s.blobs, url)
}

// Len returns the amount of live handles.
func (s *BlobStore) Len() int {
	s.locker.Lock()
	defer s.locker.Unlock()
	return len(s.blobs)
}

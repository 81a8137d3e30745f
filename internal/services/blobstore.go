package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

// StoredBlob describes one stored file.
type StoredBlob struct {
	Name        string
	Path        string
	SizeBytes   int64
	ContentHash string
	UploadedAt  time.Time
}

// BlobStore persists certificate files. Upload must detect duplicates
// before writing: an identical file (same owner, size and content hash)
// short-circuits to the existing blob instead of storing a second copy.
type BlobStore interface {
	Upload(ctx context.Context, ownerKey, name string, content []byte) (*StoredBlob, error)
	List(ctx context.Context, ownerKey string) ([]*StoredBlob, error)
	Delete(ctx context.Context, path string) error
}

func contentMD5(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

// findDuplicate applies the size-then-hash comparison over an owner's
// existing blobs. Size is checked first because it is free; the hash
// comparison only runs for size matches.
func findDuplicate(existing []*StoredBlob, size int64, hash string) *StoredBlob {
	for _, b := range existing {
		if b.SizeBytes != size {
			continue
		}
		if b.ContentHash == hash {
			return b
		}
	}
	return nil
}

// memoryBlobStore keeps blobs in process memory. Test and dev use only.
type memoryBlobStore struct {
	log *logger.Logger

	mu    sync.RWMutex
	blobs map[string]*memoryBlob
}

type memoryBlob struct {
	owner string
	blob  StoredBlob
	data  []byte
}

func NewMemoryBlobStore(logg *logger.Logger) BlobStore {
	return &memoryBlobStore{
		log:   logg.With("service", "MemoryBlobStore"),
		blobs: make(map[string]*memoryBlob),
	}
}

func (s *memoryBlobStore) Upload(ctx context.Context, ownerKey, name string, content []byte) (*StoredBlob, error) {
	if strings.TrimSpace(ownerKey) == "" || strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("owner key and name are required")
	}
	hash := contentMD5(content)

	existing, err := s.List(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	if dup := findDuplicate(existing, int64(len(content)), hash); dup != nil {
		s.log.Debug("duplicate blob skipped", "owner", ownerKey, "name", name, "existing", dup.Path)
		copied := *dup
		return &copied, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	path := ownerKey + "/" + name
	if _, taken := s.blobs[path]; taken {
		path = fmt.Sprintf("%s/%d-%s", ownerKey, time.Now().UnixNano(), name)
	}
	entry := &memoryBlob{
		owner: ownerKey,
		blob: StoredBlob{
			Name:        name,
			Path:        path,
			SizeBytes:   int64(len(content)),
			ContentHash: hash,
			UploadedAt:  time.Now().UTC(),
		},
		data: append([]byte(nil), content...),
	}
	s.blobs[path] = entry
	copied := entry.blob
	return &copied, nil
}

func (s *memoryBlobStore) List(_ context.Context, ownerKey string) ([]*StoredBlob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*StoredBlob
	for _, entry := range s.blobs {
		if entry.owner != ownerKey {
			continue
		}
		copied := entry.blob
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *memoryBlobStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[path]; !ok {
		return fmt.Errorf("blob %q not found", path)
	}
	delete(s.blobs, path)
	return nil
}

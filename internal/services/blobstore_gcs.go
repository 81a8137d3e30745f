package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

// gcsBlobStore stores certificate files in a Google Cloud Storage
// bucket. Object paths are "<ownerKey>/<name>"; GCS computes the MD5
// used for duplicate detection.
type gcsBlobStore struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

func NewGCSBlobStore(ctx context.Context, logg *logger.Logger) (BlobStore, error) {
	log := logg.With("service", "GCSBlobStore")

	credsPath := os.Getenv("GCP_CREDENTIALS_PATH")
	bucketName := os.Getenv("GCS_BUCKET_NAME")
	if credsPath == "" {
		return nil, fmt.Errorf("GCP_CREDENTIALS_PATH environment variable not set")
	}
	if bucketName == "" {
		return nil, fmt.Errorf("GCS_BUCKET_NAME environment variable not set")
	}

	client, err := storage.NewClient(ctx, option.WithCredentialsFile(credsPath))
	if err != nil {
		log.Error("failed to create gcs client", "error", err)
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	log.Info("gcs blob store initialized", "bucket", bucketName)
	return &gcsBlobStore{log: log, client: client, bucket: bucketName}, nil
}

func (s *gcsBlobStore) Upload(ctx context.Context, ownerKey, name string, content []byte) (*StoredBlob, error) {
	if ownerKey == "" || name == "" {
		return nil, fmt.Errorf("owner key and name are required")
	}
	hash := contentMD5(content)

	existing, err := s.List(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	if dup := findDuplicate(existing, int64(len(content)), hash); dup != nil {
		s.log.Debug("duplicate blob skipped", "owner", ownerKey, "name", name, "existing", dup.Path)
		return dup, nil
	}

	objectPath := ownerKey + "/" + name
	obj := s.client.Bucket(s.bucket).Object(objectPath)

	uctx, cancel := context.WithTimeout(ctx, 50*time.Second)
	defer cancel()
	w := obj.NewWriter(uctx)
	if _, err := w.Write(content); err != nil {
		w.Close()
		s.log.Error("failed to write object", "path", objectPath, "error", err)
		return nil, fmt.Errorf("write object %q: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		s.log.Error("failed to finalize object", "path", objectPath, "error", err)
		return nil, fmt.Errorf("close object %q: %w", objectPath, err)
	}

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("object attrs %q: %w", objectPath, err)
	}
	return blobFromAttrs(name, attrs), nil
}

func (s *gcsBlobStore) List(ctx context.Context, ownerKey string) ([]*StoredBlob, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: ownerKey + "/"})
	var out []*StoredBlob
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			s.log.Error("failed to list objects", "prefix", ownerKey, "error", err)
			return nil, fmt.Errorf("list objects %q: %w", ownerKey, err)
		}
		out = append(out, blobFromAttrs(attrs.Name[len(ownerKey)+1:], attrs))
	}
	return out, nil
}

func (s *gcsBlobStore) Delete(ctx context.Context, path string) error {
	if err := s.client.Bucket(s.bucket).Object(path).Delete(ctx); err != nil {
		s.log.Error("failed to delete object", "path", path, "error", err)
		return fmt.Errorf("delete object %q: %w", path, err)
	}
	return nil
}

func blobFromAttrs(name string, attrs *storage.ObjectAttrs) *StoredBlob {
	return &StoredBlob{
		Name:        name,
		Path:        attrs.Name,
		SizeBytes:   attrs.Size,
		ContentHash: hex.EncodeToString(attrs.MD5),
		UploadedAt:  attrs.Updated,
	}
}

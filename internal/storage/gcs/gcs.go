package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	apperrors "github.com/utafrali/storefront/pkg/errors"

	"github.com/utafrali/storefront/internal/storage"
)

const collaborator = "image storage"

// Config selects the bucket and how objects are addressed publicly.
type Config struct {
	Bucket string
	// CDNDomain, when set, replaces storage.googleapis.com in public URLs.
	CDNDomain string
	// CredentialsJSON or CredentialsFile; both empty means application
	// default credentials.
	CredentialsJSON string
	CredentialsFile string
}

// objectStore is the part of a bucket the driver needs.
type objectStore interface {
	write(ctx context.Context, name, contentType string, r io.Reader) error
	delete(ctx context.Context, name string) error
}

type bucket struct {
	handle *gcstorage.BucketHandle
}

func (b bucket) write(ctx context.Context, name, contentType string, r io.Reader) error {
	w := b.handle.Object(name).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close object writer: %w", err)
	}
	return nil
}

func (b bucket) delete(ctx context.Context, name string) error {
	return b.handle.Object(name).Delete(ctx)
}

// Storage implements storage.Storage on a Google Cloud Storage bucket.
type Storage struct {
	objects objectStore
	client  *gcstorage.Client
	cfg     Config
}

// New opens a GCS client for cfg.Bucket.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	opts := []option.ClientOption{option.WithScopes(gcstorage.ScopeReadWrite)}
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &Storage{
		objects: bucket{handle: client.Bucket(cfg.Bucket)},
		client:  client,
		cfg:     cfg,
	}, nil
}

// Upload writes the object under a generated name.
func (s *Storage) Upload(ctx context.Context, input *storage.UploadInput) (*storage.UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	name := storage.NewPublicID(input)
	if err := s.objects.write(ctx, name, input.ContentType, input.Data); err != nil {
		return nil, apperrors.Upstream(collaborator, err)
	}
	return &storage.UploadResult{URL: s.publicURL(name), PublicID: name}, nil
}

// Delete removes the object. A missing object counts as deleted.
func (s *Storage) Delete(ctx context.Context, publicID string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := s.objects.delete(ctx, publicID)
	if err == nil || errors.Is(err, gcstorage.ErrObjectNotExist) {
		return nil
	}
	return apperrors.Upstream(collaborator, fmt.Errorf("delete %s: %w", publicID, err))
}

// Close releases the client.
func (s *Storage) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Storage) publicURL(name string) string {
	if s.cfg.CDNDomain != "" {
		return fmt.Sprintf("https://%s/%s", strings.TrimSuffix(s.cfg.CDNDomain, "/"), name)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.cfg.Bucket, name)
}

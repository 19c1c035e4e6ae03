package storage

import (
	"context"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Storage defines the interface for image storage operations.
type Storage interface {
	// Upload stores a file and returns its public URL and delete handle.
	Upload(ctx context.Context, input *UploadInput) (*UploadResult, error)

	// Delete removes a file by its public id.
	Delete(ctx context.Context, publicID string) error
}

// UploadInput holds the parameters for uploading a file.
type UploadInput struct {
	Folder      string
	Filename    string
	ContentType string
	Size        int64
	Data        io.Reader
}

// UploadResult holds the result of a successful upload.
type UploadResult struct {
	URL      string
	PublicID string
}

// NewPublicID returns a unique object name under in.Folder that keeps the
// original file extension.
func NewPublicID(in *UploadInput) string {
	ext := strings.ToLower(path.Ext(in.Filename))
	id := uuid.NewString() + ext
	if in.Folder == "" {
		return id
	}
	return strings.Trim(in.Folder, "/") + "/" + id
}

// UploadOrNil uploads in and collapses any failure into a nil result after
// logging it. Callers treat nil as "this upload did not happen" and roll
// back whatever else they uploaded.
func UploadOrNil(ctx context.Context, s Storage, in *UploadInput, logger *slog.Logger) *UploadResult {
	res, err := s.Upload(ctx, in)
	if err != nil {
		logger.ErrorContext(ctx, "image upload failed",
			slog.String("filename", in.Filename),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return res
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/metrics"
	"github.com/utafrali/storefront/internal/storage"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const (
	maxParallelUploads = 4
	rollbackTimeout    = 30 * time.Second
)

// uploadAll uploads every input in parallel. When any upload fails, the
// ones that succeeded are deleted again before the error is returned, so
// the caller either gets all images or none. A failure does not cancel the
// uploads still in flight: each one finishes and is accounted for, so none
// can complete at the provider unseen.
func uploadAll(ctx context.Context, store storage.Storage, inputs []*storage.UploadInput, logger *slog.Logger) ([]domain.Image, error) {
	results := make([]*storage.UploadResult, len(inputs))

	var g errgroup.Group
	g.SetLimit(maxParallelUploads)
	for i, in := range inputs {
		g.Go(func() error {
			results[i] = storage.UploadOrNil(ctx, store, in, logger)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for i, res := range results {
		if res == nil {
			failed = append(failed, fmt.Errorf("upload %q failed", inputs[i].Filename))
		}
	}
	if len(failed) > 0 {
		rollbackImages(ctx, store, uploadedIDs(results), logger)
		return nil, apperrors.Upstream("image storage", errors.Join(failed...))
	}

	images := make([]domain.Image, len(results))
	for i, res := range results {
		images[i] = domain.Image{URL: res.URL, PublicID: res.PublicID}
	}
	return images, nil
}

func uploadedIDs(results []*storage.UploadResult) []string {
	ids := make([]string, 0, len(results))
	for _, res := range results {
		if res != nil {
			ids = append(ids, res.PublicID)
		}
	}
	return ids
}

func imageIDs(images []domain.Image) []string {
	ids := make([]string, 0, len(images))
	for _, img := range images {
		if img.PublicID != "" {
			ids = append(ids, img.PublicID)
		}
	}
	return ids
}

// rollbackImages deletes publicIDs in parallel as a compensating action.
// Failures are logged and counted, never returned: the caller is already
// reporting the error that caused the rollback.
func rollbackImages(ctx context.Context, store storage.Storage, publicIDs []string, logger *slog.Logger) {
	if len(publicIDs) == 0 {
		return
	}
	failed := deleteImages(ctx, store, publicIDs, logger)
	metrics.ImageRollbacks.WithLabelValues(metrics.OutcomeSuccess).Add(float64(len(publicIDs) - failed))
	metrics.ImageRollbacks.WithLabelValues(metrics.OutcomeFailure).Add(float64(failed))
	if failed > 0 {
		logger.ErrorContext(ctx, "image rollback incomplete",
			slog.Int("failed", failed),
			slog.Int("total", len(publicIDs)),
		)
	}
}

// deleteImages removes publicIDs in parallel, detached from ctx's
// cancellation, and returns how many deletes failed.
func deleteImages(ctx context.Context, store storage.Storage, publicIDs []string, logger *slog.Logger) int {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	errs := make([]error, len(publicIDs))
	var g errgroup.Group
	g.SetLimit(maxParallelUploads)
	for i, id := range publicIDs {
		g.Go(func() error {
			if err := store.Delete(dctx, id); err != nil {
				errs[i] = err
				logger.WarnContext(ctx, "failed to delete image",
					slog.String("public_id", id),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	return failed
}

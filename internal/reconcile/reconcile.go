// Package reconcile implements the ensure-exists pass used by every
// migration stage: list what the destination already has, create what the
// source has and the destination lacks, and skip the rest. Running a stage
// twice therefore creates nothing the second time.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/samhotchkiss/tenantshift/internal/platform"
)

// Config wires one entity kind into a reconcile pass.
type Config[T any] struct {
	// Kind names the entity for logs and the report ("tenant", "role", ...).
	Kind string
	// Items are the source entities to ensure at the destination.
	Items []T
	// Key extracts the natural key used to decide existence.
	Key func(T) string
	// Existing lists the natural keys already present at the destination.
	Existing func(context.Context) ([]string, error)
	// Create makes one missing entity at the destination.
	Create func(context.Context, T) error
	// DryRun counts what would be created without calling Create.
	DryRun bool

	Logger *zap.Logger
}

// ItemError records one entity that could not be created.
type ItemError struct {
	Key string
	Err error
}

// Report is the outcome of one reconcile pass.
type Report struct {
	Kind    string
	Created int
	Skipped int
	Failed  int
	Errors  []ItemError
}

// Run reconciles cfg.Items against the destination. A failed create is
// recorded and the pass moves on; fatal errors (rejected credentials, an
// exhausted rate-limit budget, cancellation) abort immediately. The returned
// report is valid either way and reflects whatever progress was made.
func Run[T any](ctx context.Context, cfg Config[T]) (*Report, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	report := &Report{Kind: cfg.Kind}

	existing, err := cfg.Existing(ctx)
	if err != nil {
		return report, fmt.Errorf("list existing %s keys: %w", cfg.Kind, err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, key := range existing {
		if key != "" {
			seen[key] = struct{}{}
		}
	}

	for _, item := range cfg.Items {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		key := cfg.Key(item)
		if key == "" {
			report.Failed++
			report.Errors = append(report.Errors, ItemError{Err: errors.New("empty natural key")})
			continue
		}
		if _, ok := seen[key]; ok {
			report.Skipped++
			continue
		}

		if cfg.DryRun {
			logger.Info("would create",
				zap.String("kind", cfg.Kind),
				zap.String("key", key))
			seen[key] = struct{}{}
			report.Created++
			continue
		}

		if err := cfg.Create(ctx, item); err != nil {
			if platform.IsFatal(err) {
				return report, fmt.Errorf("create %s %q: %w", cfg.Kind, key, err)
			}
			report.Failed++
			report.Errors = append(report.Errors, ItemError{Key: key, Err: err})
			logger.Warn("create failed",
				zap.String("kind", cfg.Kind),
				zap.String("key", key),
				zap.Error(err))
			continue
		}

		// Created keys join the existing set so a duplicate source key
		// later in the batch skips instead of creating twice.
		seen[key] = struct{}{}
		report.Created++
	}

	return report, nil
}

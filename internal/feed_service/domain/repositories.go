package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// FeedRepository reads feed definitions and maintains their scheduling
// counters. All other feed mutation belongs to the administration
// subsystem.
type FeedRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Feed, error)
	// ListScheduled returns active feeds with a non-manual frequency;
	// the schedule evaluator decides which of them are actually due.
	ListScheduled(ctx context.Context) ([]*Feed, error)
}

// GenerationRepository owns the feed_generations table.
type GenerationRepository interface {
	// Claim atomically creates a pending generation for a feed. It
	// returns ErrFeedBusy when the feed already has a generation in an
	// in-flight status; the check-and-set is enforced by the database,
	// not in process, so concurrent batch invocations cannot
	// double-generate a feed.
	Claim(ctx context.Context, feedID uuid.UUID) (*Generation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Generation, error)
	ListByFeed(ctx context.Context, feedID uuid.UUID, limit int) ([]*Generation, error)

	MarkGenerating(ctx context.Context, id uuid.UUID) error
	MarkGenerated(ctx context.Context, id uuid.UUID, filePath string, fileSize int64, rowCount int) error
	MarkDelivering(ctx context.Context, id uuid.UUID) error
	// MarkCompleted records the terminal success transition and advances
	// the feed's last_generated/last_delivered/generation_count counters
	// in the same transaction.
	MarkCompleted(ctx context.Context, id uuid.UUID, deliveryStatus string, details map[string]any, deliveredAt *time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
}

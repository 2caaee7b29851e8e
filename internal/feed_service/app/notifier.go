package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
	"github.com/solidusdata/feedpipe/internal/platform/messagebroker"
)

// Notifier announces generation life-cycle transitions. Publishing is
// best-effort: a broker outage must never fail a generation.
type Notifier interface {
	GenerationStarted(ctx context.Context, feed *domain.Feed, gen *domain.Generation)
	GenerationCompleted(ctx context.Context, feed *domain.Feed, gen *domain.Generation)
	GenerationFailed(ctx context.Context, feed *domain.Feed, gen *domain.Generation, message string)
}

type natsNotifier struct {
	nc     *messagebroker.NATSClient
	logger *slog.Logger
}

// NewNATSNotifier creates a Notifier publishing JSON events on NATS.
func NewNATSNotifier(nc *messagebroker.NATSClient, logger *slog.Logger) Notifier {
	return &natsNotifier{nc: nc, logger: logger.With("component", "notifier")}
}

func (n *natsNotifier) GenerationStarted(ctx context.Context, feed *domain.Feed, gen *domain.Generation) {
	n.publish(ctx, domain.NATSGenerationStartedV1, feed, gen, "")
}

func (n *natsNotifier) GenerationCompleted(ctx context.Context, feed *domain.Feed, gen *domain.Generation) {
	n.publish(ctx, domain.NATSGenerationCompletedV1, feed, gen, "")
}

func (n *natsNotifier) GenerationFailed(ctx context.Context, feed *domain.Feed, gen *domain.Generation, message string) {
	n.publish(ctx, domain.NATSGenerationFailedV1, feed, gen, message)
}

func (n *natsNotifier) publish(ctx context.Context, subject string, feed *domain.Feed, gen *domain.Generation, message string) {
	event := domain.GenerationEvent{
		GenerationID: gen.ID,
		FeedID:       feed.ID,
		FeedName:     feed.Name,
		CustomerID:   feed.CustomerID,
		Status:       gen.Status,
		Message:      message,
		RowCount:     gen.RowCount,
		FileSize:     gen.FileSize,
		OccurredAt:   time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.ErrorContext(ctx, "Failed to encode generation event", "subject", subject, "generation_id", gen.ID, "error", err)
		return
	}
	if err := n.nc.Publish(ctx, subject, payload); err != nil {
		n.logger.ErrorContext(ctx, "Failed to publish generation event", "subject", subject, "generation_id", gen.ID, "error", err)
	}
}

// noopNotifier is used when no broker is configured.
type noopNotifier struct{}

// NewNoopNotifier creates a Notifier that drops every event.
func NewNoopNotifier() Notifier { return noopNotifier{} }

func (noopNotifier) GenerationStarted(context.Context, *domain.Feed, *domain.Generation)         {}
func (noopNotifier) GenerationCompleted(context.Context, *domain.Feed, *domain.Generation)       {}
func (noopNotifier) GenerationFailed(context.Context, *domain.Feed, *domain.Generation, string) {}

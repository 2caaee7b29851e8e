// Package app drives the feed pipeline: it decides which feeds run,
// walks each generation through its state machine, and records the
// outcome. All I/O happens through the domain ports so the whole flow is
// testable with mocks.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/solidusdata/feedpipe/internal/feed_service/delivery"
	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
	"github.com/solidusdata/feedpipe/internal/feed_service/generator"
	"github.com/solidusdata/feedpipe/internal/feed_service/schedule"
)

// OrchestratorConfig holds the orchestrator's tunables.
type OrchestratorConfig struct {
	// WorkerCount bounds how many feeds one batch cycle processes
	// concurrently.
	WorkerCount int
	// DeliveryTimeout bounds a single delivery attempt.
	DeliveryTimeout time.Duration
}

// Orchestrator runs feed generations end to end: claim, generate,
// deliver, record. Feed failures are isolated; one bad feed never stops
// a batch.
type Orchestrator struct {
	feeds       domain.FeedRepository
	generations domain.GenerationRepository
	records     domain.RecordSource
	notifier    Notifier
	delivery    delivery.Deps
	config      OrchestratorConfig
	logger      *slog.Logger

	// now is swapped in tests for deterministic schedule decisions.
	now func() time.Time
}

// NewOrchestrator wires an Orchestrator from its ports.
func NewOrchestrator(
	feeds domain.FeedRepository,
	generations domain.GenerationRepository,
	records domain.RecordSource,
	notifier Notifier,
	deliveryDeps delivery.Deps,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		feeds:       feeds,
		generations: generations,
		records:     records,
		notifier:    notifier,
		delivery:    deliveryDeps,
		config:      cfg,
		logger:      logger.With("component", "orchestrator"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RunDueFeeds evaluates every scheduled feed against the current time
// and processes the due ones concurrently. It returns the number of
// feeds that started a generation and the first listing error; per-feed
// failures are recorded on their generations, not returned.
func (o *Orchestrator) RunDueFeeds(ctx context.Context) (int, error) {
	feeds, err := o.feeds.ListScheduled(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing scheduled feeds: %w", err)
	}

	now := o.now()
	var due []*domain.Feed
	for _, feed := range feeds {
		if schedule.IsDue(feed, now) {
			due = append(due, feed)
		}
	}
	if len(due) == 0 {
		o.logger.DebugContext(ctx, "No feeds due", "scheduled", len(feeds))
		return 0, nil
	}
	o.logger.InfoContext(ctx, "Processing due feeds", "due", len(due), "scheduled", len(feeds))

	var started int
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.WorkerCount)
	results := make(chan bool, len(due))
	for _, feed := range due {
		feed := feed
		g.Go(func() error {
			_, err := o.RunFeed(gctx, feed.ID, false)
			switch {
			case err == nil:
				results <- true
			case errors.Is(err, domain.ErrFeedBusy):
				// Another invocation holds this feed; skipping is the
				// designed outcome, not a fault.
				busySkipsTotal.Inc()
				o.logger.InfoContext(gctx, "Feed busy, skipping", "feed_id", feed.ID)
			default:
				o.logger.ErrorContext(gctx, "Failed to start due feed", "feed_id", feed.ID, "error", err)
			}
			return nil
		})
	}
	g.Wait()
	close(results)
	for range results {
		started++
	}
	return started, nil
}

// RunFeed claims a generation for one feed and processes it. The claim
// happens synchronously so callers learn immediately whether the run was
// accepted (manual triggers return 202 with the pending record); the
// pipeline itself runs before RunFeed returns only in the scheduled
// path, where the caller is the batch loop.
//
// force lets a manual trigger run an inactive feed.
func (o *Orchestrator) RunFeed(ctx context.Context, feedID uuid.UUID, force bool) (*domain.Generation, error) {
	feed, gen, err := o.claim(ctx, feedID, force)
	if err != nil {
		return nil, err
	}
	o.process(ctx, feed, gen)
	return gen, nil
}

// TriggerFeed claims a generation and processes it in the background,
// returning the pending record immediately. The manual trigger endpoint
// uses this to answer 202 while the pipeline runs.
func (o *Orchestrator) TriggerFeed(ctx context.Context, feedID uuid.UUID, force bool) (*domain.Generation, error) {
	feed, gen, err := o.claim(ctx, feedID, force)
	if err != nil {
		return nil, err
	}
	go func() {
		// The claim is already durable; the run must not die with the
		// triggering request.
		o.process(context.WithoutCancel(ctx), feed, gen)
	}()
	return gen, nil
}

func (o *Orchestrator) claim(ctx context.Context, feedID uuid.UUID, force bool) (*domain.Feed, *domain.Generation, error) {
	feed, err := o.feeds.GetByID(ctx, feedID)
	if err != nil {
		return nil, nil, err
	}
	if !feed.IsActive && !force {
		return nil, nil, domain.ErrFeedInactive
	}

	gen, err := o.generations.Claim(ctx, feed.ID)
	if err != nil {
		return nil, nil, err
	}
	o.notifier.GenerationStarted(ctx, feed, gen)
	return feed, gen, nil
}

// process walks one claimed generation through the state machine. Every
// failure path lands in MarkFailed; process never returns an error
// because by this point the run exists and its outcome belongs on the
// record.
func (o *Orchestrator) process(ctx context.Context, feed *domain.Feed, gen *domain.Generation) {
	outcome := "completed"
	defer func(start time.Time) {
		generationsTotal.WithLabelValues(string(feed.FeedType), string(feed.Format), outcome).Inc()
		generationDuration.WithLabelValues(string(feed.FeedType), string(feed.Format)).Observe(time.Since(start).Seconds())
	}(o.now())

	if err := o.generations.MarkGenerating(ctx, gen.ID); err != nil {
		outcome = "failed"
		o.fail(ctx, feed, gen, fmt.Errorf("starting generation: %w", err))
		return
	}
	gen.Status = domain.StatusGenerating

	result, err := o.generate(ctx, feed, gen)
	if err != nil {
		outcome = "failed"
		o.fail(ctx, feed, gen, err)
		return
	}
	gen.Status = domain.StatusGenerated
	gen.FilePath = result.FilePath
	gen.FileSize = result.FileSize
	gen.RowCount = result.RowCount
	generationRows.WithLabelValues(string(feed.FeedType)).Observe(float64(result.RowCount))

	if err := o.deliver(ctx, feed, gen); err != nil {
		outcome = "failed"
		o.fail(ctx, feed, gen, err)
		return
	}

	o.logger.InfoContext(ctx, "Generation completed",
		"feed_id", feed.ID, "generation_id", gen.ID,
		"rows", gen.RowCount, "bytes", gen.FileSize, "method", feed.DeliveryMethod)
	o.notifier.GenerationCompleted(ctx, feed, gen)
}

func (o *Orchestrator) generate(ctx context.Context, feed *domain.Feed, gen *domain.Generation) (*generator.Result, error) {
	formatGen, err := generator.ForFormat(feed.Format, o.delivery.Sink, o.logger)
	if err != nil {
		return nil, err
	}

	records, err := o.records.Stream(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("streaming records: %w", err)
	}
	defer records.Close()

	result, err := formatGen.Generate(ctx, feed, gen, records)
	if err != nil {
		return nil, fmt.Errorf("generating %s artifact: %w", feed.Format, err)
	}

	if err := o.generations.MarkGenerated(ctx, gen.ID, result.FilePath, result.FileSize, result.RowCount); err != nil {
		return nil, fmt.Errorf("recording artifact: %w", err)
	}
	return result, nil
}

// deliver transmits the artifact and records the terminal state. The
// download method completes directly from generated; every other method
// passes through delivering first.
func (o *Orchestrator) deliver(ctx context.Context, feed *domain.Feed, gen *domain.Generation) error {
	if feed.DeliveryMethod != domain.DeliveryDownload {
		if err := o.generations.MarkDelivering(ctx, gen.ID); err != nil {
			return fmt.Errorf("starting delivery: %w", err)
		}
		gen.Status = domain.StatusDelivering
	}

	handler, err := delivery.ForMethod(feed.DeliveryMethod, o.delivery)
	if err != nil {
		return err
	}

	dctx, cancel := context.WithTimeout(ctx, o.config.DeliveryTimeout)
	defer cancel()
	result := handler.Deliver(dctx, feed, gen)

	if !result.Success {
		deliveriesTotal.WithLabelValues(string(feed.DeliveryMethod), "failed").Inc()
		return fmt.Errorf("delivering by %s: %s", feed.DeliveryMethod, result.Error)
	}
	deliveriesTotal.WithLabelValues(string(feed.DeliveryMethod), "success").Inc()

	deliveredAt := o.now()
	if err := o.generations.MarkCompleted(ctx, gen.ID, "delivered", result.Details, &deliveredAt); err != nil {
		return fmt.Errorf("recording completion: %w", err)
	}
	gen.Status = domain.StatusCompleted
	gen.CompletedAt = &deliveredAt
	gen.DeliveredAt = &deliveredAt
	gen.DeliveryStatus = "delivered"
	gen.DeliveryDetails = result.Details
	return nil
}

// fail records a failed run. Recording itself may fail (e.g. the
// database went away mid-run); that is logged and dropped, the batch
// must go on.
func (o *Orchestrator) fail(ctx context.Context, feed *domain.Feed, gen *domain.Generation, cause error) {
	o.logger.ErrorContext(ctx, "Generation failed",
		"feed_id", feed.ID, "generation_id", gen.ID, "error", cause)
	if err := o.generations.MarkFailed(ctx, gen.ID, cause.Error()); err != nil {
		o.logger.ErrorContext(ctx, "Failed to record generation failure",
			"generation_id", gen.ID, "error", err)
	}
	if gen.Status == domain.StatusDelivering {
		gen.DeliveryStatus = "failed"
	}
	gen.Status = domain.StatusFailed
	gen.ErrorMessage = cause.Error()
	o.notifier.GenerationFailed(ctx, feed, gen, cause.Error())
}

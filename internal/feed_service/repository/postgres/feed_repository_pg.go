// Package postgres implements the pipeline's persistence ports on
// PostgreSQL through pgx. The data_feeds and catalog tables are owned by
// the administration subsystem; this package only reads them, except for
// the scheduling counters written by MarkCompleted.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
)

const feedColumns = `
	id, name, slug, customer_id, customer_username, customer_name, customer_email,
	feed_type, format, categories, brands, tags,
	included_fields, field_mapping,
	is_active, frequency, schedule_time, schedule_day,
	delivery_method, delivery_config,
	last_generated, last_delivered, generation_count,
	created_at, updated_at
`

type pgFeedRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPgFeedRepository creates a FeedRepository backed by PostgreSQL.
func NewPgFeedRepository(db *pgxpool.Pool, logger *slog.Logger) domain.FeedRepository {
	return &pgFeedRepository{db: db, logger: logger.With("component", "feed_repository")}
}

func (r *pgFeedRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM data_feeds WHERE id = $1`
	feed, err := scanFeed(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("querying feed %s: %w", id, err)
	}
	return feed, nil
}

func (r *pgFeedRepository) ListScheduled(ctx context.Context) ([]*domain.Feed, error) {
	query := `
		SELECT ` + feedColumns + `
		FROM data_feeds
		WHERE is_active AND frequency <> 'manual'
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying scheduled feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*domain.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scheduled feed: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return feeds, nil
}

func scanFeed(row pgx.Row) (*domain.Feed, error) {
	feed := &domain.Feed{}
	err := row.Scan(
		&feed.ID, &feed.Name, &feed.Slug, &feed.CustomerID, &feed.CustomerUsername, &feed.CustomerName, &feed.CustomerEmail,
		&feed.FeedType, &feed.Format, &feed.Categories, &feed.Brands, &feed.Tags,
		&feed.IncludedFields, &feed.FieldMapping,
		&feed.IsActive, &feed.Frequency, &feed.ScheduleTime, &feed.ScheduleDay,
		&feed.DeliveryMethod, &feed.DeliveryConfig,
		&feed.LastGenerated, &feed.LastDelivered, &feed.GenerationCount,
		&feed.CreatedAt, &feed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return feed, nil
}

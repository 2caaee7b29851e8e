package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const generationColumns = `
	id, feed_id, started_at, completed_at, status,
	file_path, file_size, row_count,
	delivered_at, delivery_status, delivery_details,
	error_message, error_details
`

type pgGenerationRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPgGenerationRepository creates a GenerationRepository backed by
// PostgreSQL.
func NewPgGenerationRepository(db *pgxpool.Pool, logger *slog.Logger) domain.GenerationRepository {
	return &pgGenerationRepository{db: db, logger: logger.With("component", "generation_repository")}
}

// Claim inserts a fresh pending generation. The partial unique index
// feed_generations_one_in_flight turns a concurrent claim for the same
// feed into a unique violation, which is surfaced as ErrFeedBusy.
func (r *pgGenerationRepository) Claim(ctx context.Context, feedID uuid.UUID) (*domain.Generation, error) {
	gen := domain.NewGeneration(feedID)

	query := `
		INSERT INTO feed_generations (id, feed_id, started_at, status)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, gen.ID, gen.FeedID, gen.StartedAt, gen.Status)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return nil, domain.ErrFeedBusy
			case pgForeignKeyViolation:
				return nil, domain.ErrNotFound
			}
		}
		return nil, fmt.Errorf("claiming generation for feed %s: %w", feedID, err)
	}

	r.logger.InfoContext(ctx, "Generation claimed", "feed_id", feedID, "generation_id", gen.ID)
	return gen, nil
}

func (r *pgGenerationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM feed_generations WHERE id = $1`
	gen, err := scanGeneration(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("querying generation %s: %w", id, err)
	}
	return gen, nil
}

func (r *pgGenerationRepository) ListByFeed(ctx context.Context, feedID uuid.UUID, limit int) ([]*domain.Generation, error) {
	query := `
		SELECT ` + generationColumns + `
		FROM feed_generations
		WHERE feed_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying generations for feed %s: %w", feedID, err)
	}
	defer rows.Close()

	var generations []*domain.Generation
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning generation: %w", err)
		}
		generations = append(generations, gen)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return generations, nil
}

func (r *pgGenerationRepository) MarkGenerating(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE feed_generations SET status = $1 WHERE id = $2 AND status = $3`
	tag, err := r.db.Exec(ctx, query, domain.StatusGenerating, id, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("marking generation %s generating: %w", id, err)
	}
	return r.checkTransition(ctx, tag, id)
}

func (r *pgGenerationRepository) MarkGenerated(ctx context.Context, id uuid.UUID, filePath string, fileSize int64, rowCount int) error {
	query := `
		UPDATE feed_generations
		SET status = $1, file_path = $2, file_size = $3, row_count = $4
		WHERE id = $5 AND status = $6
	`
	tag, err := r.db.Exec(ctx, query, domain.StatusGenerated, filePath, fileSize, rowCount, id, domain.StatusGenerating)
	if err != nil {
		return fmt.Errorf("marking generation %s generated: %w", id, err)
	}
	return r.checkTransition(ctx, tag, id)
}

func (r *pgGenerationRepository) MarkDelivering(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE feed_generations SET status = $1 WHERE id = $2 AND status = $3`
	tag, err := r.db.Exec(ctx, query, domain.StatusDelivering, id, domain.StatusGenerated)
	if err != nil {
		return fmt.Errorf("marking generation %s delivering: %w", id, err)
	}
	return r.checkTransition(ctx, tag, id)
}

// MarkCompleted records the terminal success transition and advances the
// owning feed's scheduling counters in the same transaction, so a crash
// between the two writes cannot leave a completed run the scheduler
// still considers due.
func (r *pgGenerationRepository) MarkCompleted(ctx context.Context, id uuid.UUID, deliveryStatus string, details map[string]any, deliveredAt *time.Time) error {
	detailsJSON, err := marshalDetails(details)
	if err != nil {
		return fmt.Errorf("encoding delivery details: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning completion transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	var feedID uuid.UUID
	query := `
		UPDATE feed_generations
		SET status = $1, completed_at = $2,
		    delivery_status = $3, delivery_details = $4, delivered_at = $5
		WHERE id = $6 AND status = ANY($7)
		RETURNING feed_id
	`
	completableFrom := []domain.GenerationStatus{domain.StatusGenerated, domain.StatusDelivering}
	err = tx.QueryRow(ctx, query,
		domain.StatusCompleted, now, deliveryStatus, detailsJSON, deliveredAt, id, completableFrom,
	).Scan(&feedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.transitionError(ctx, id)
		}
		return fmt.Errorf("marking generation %s completed: %w", id, err)
	}

	query = `
		UPDATE data_feeds
		SET last_generated = $1,
		    last_delivered = COALESCE($2, last_delivered),
		    generation_count = generation_count + 1,
		    updated_at = $1
		WHERE id = $3
	`
	if _, err := tx.Exec(ctx, query, now, deliveredAt, feedID); err != nil {
		return fmt.Errorf("advancing feed %s counters: %w", feedID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing completion of generation %s: %w", id, err)
	}
	return nil
}

// MarkFailed records the terminal failure transition. A run that dies
// mid-delivery also gets delivery_status set to failed, so the delivery
// column never reads as still pending on a dead generation.
func (r *pgGenerationRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE feed_generations
		SET status = $1, completed_at = $2, error_message = $3,
		    delivery_status = CASE WHEN status = 'delivering' THEN 'failed' ELSE delivery_status END
		WHERE id = $4 AND NOT status = ANY($5)
	`
	terminal := []domain.GenerationStatus{domain.StatusCompleted, domain.StatusFailed}
	tag, err := r.db.Exec(ctx, query, domain.StatusFailed, time.Now().UTC(), errorMessage, id, terminal)
	if err != nil {
		return fmt.Errorf("marking generation %s failed: %w", id, err)
	}
	return r.checkTransition(ctx, tag, id)
}

// checkTransition distinguishes a missing row from one that exists in a
// status the guarded UPDATE refused.
func (r *pgGenerationRepository) checkTransition(ctx context.Context, tag pgconn.CommandTag, id uuid.UUID) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	return r.transitionError(ctx, id)
}

func (r *pgGenerationRepository) transitionError(ctx context.Context, id uuid.UUID) error {
	var status domain.GenerationStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM feed_generations WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking generation %s status: %w", id, err)
	}
	return fmt.Errorf("generation %s in status %s: %w", id, status, domain.ErrInvalidTransition)
}

func scanGeneration(row pgx.Row) (*domain.Generation, error) {
	gen := &domain.Generation{}
	var deliveryDetails, errorDetails []byte
	err := row.Scan(
		&gen.ID, &gen.FeedID, &gen.StartedAt, &gen.CompletedAt, &gen.Status,
		&gen.FilePath, &gen.FileSize, &gen.RowCount,
		&gen.DeliveredAt, &gen.DeliveryStatus, &deliveryDetails,
		&gen.ErrorMessage, &errorDetails,
	)
	if err != nil {
		return nil, err
	}
	if len(deliveryDetails) > 0 {
		if err := json.Unmarshal(deliveryDetails, &gen.DeliveryDetails); err != nil {
			return nil, fmt.Errorf("decoding delivery details: %w", err)
		}
	}
	if len(errorDetails) > 0 {
		if err := json.Unmarshal(errorDetails, &gen.ErrorDetails); err != nil {
			return nil, fmt.Errorf("decoding error details: %w", err)
		}
	}
	return gen, nil
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	return json.Marshal(details)
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// NATS subjects the orchestrator publishes generation life-cycle events
// on. Downstream consumers (in-app notification fan-out, audit) subscribe
// to these; the pipeline itself never listens.
const (
	NATSGenerationStartedV1   = "feeds.generation.started.v1"
	NATSGenerationFailedV1    = "feeds.generation.failed.v1"
	NATSGenerationCompletedV1 = "feeds.generation.completed.v1"
)

// GenerationEvent is the payload published on every life-cycle subject.
type GenerationEvent struct {
	GenerationID uuid.UUID        `json:"generation_id"`
	FeedID       uuid.UUID        `json:"feed_id"`
	FeedName     string           `json:"feed_name"`
	CustomerID   uuid.UUID        `json:"customer_id"`
	Status       GenerationStatus `json:"status"`
	Message      string           `json:"message,omitempty"`
	RowCount     int              `json:"row_count,omitempty"`
	FileSize     int64            `json:"file_size,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

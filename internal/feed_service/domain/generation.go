package domain

import (
	"time"

	"github.com/google/uuid"
)

// GenerationStatus is the state of one feed execution attempt.
type GenerationStatus string

const (
	StatusPending    GenerationStatus = "pending"
	StatusGenerating GenerationStatus = "generating"
	StatusGenerated  GenerationStatus = "generated"  // artifact persisted, ready for delivery
	StatusDelivering GenerationStatus = "delivering"
	StatusCompleted  GenerationStatus = "completed"
	StatusFailed     GenerationStatus = "failed"
)

// statusRank orders the forward path of the state machine. failed is
// reachable from any non-terminal state and is, like completed, terminal.
var statusRank = map[GenerationStatus]int{
	StatusPending:    0,
	StatusGenerating: 1,
	StatusGenerated:  2,
	StatusDelivering: 3,
	StatusCompleted:  4,
}

// Terminal reports whether no further transitions may occur.
func (s GenerationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ValidTransition reports whether the state machine permits moving from
// one status to another. Transitions are strictly forward; completed may
// be reached from generated (download delivery) or delivering.
func ValidTransition(from, to GenerationStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	if to == StatusCompleted {
		// delivering -> completed, or generated -> completed for the
		// download method.
		return from == StatusDelivering || from == StatusGenerated
	}
	return toRank == fromRank+1
}

// InFlightStatuses are the states in which a feed must not be generated
// concurrently with itself. The feed_generations partial unique index
// names the same set.
var InFlightStatuses = []GenerationStatus{StatusPending, StatusGenerating, StatusDelivering}

// InFlight reports whether the status occupies the feed's single
// in-flight slot.
func (s GenerationStatus) InFlight() bool {
	for _, in := range InFlightStatuses {
		if s == in {
			return true
		}
	}
	return false
}

// Generation tracks one execution of one feed definition.
type Generation struct {
	ID     uuid.UUID `json:"generation_id"`
	FeedID uuid.UUID `json:"feed_id"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Status GenerationStatus `json:"status"`

	FilePath string `json:"file_path,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	RowCount int    `json:"row_count"`

	DeliveredAt     *time.Time     `json:"delivered_at,omitempty"`
	DeliveryStatus  string         `json:"delivery_status,omitempty"`
	DeliveryDetails map[string]any `json:"delivery_details,omitempty"`

	ErrorMessage string         `json:"error_message,omitempty"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
}

// NewGeneration creates a fresh pending generation for a feed.
func NewGeneration(feedID uuid.UUID) *Generation {
	return &Generation{
		ID:        uuid.New(),
		FeedID:    feedID,
		StartedAt: time.Now().UTC(),
		Status:    StatusPending,
	}
}

// Duration returns how long the execution took, once completed.
func (g *Generation) Duration() *time.Duration {
	if g.CompletedAt == nil {
		return nil
	}
	d := g.CompletedAt.Sub(g.StartedAt)
	return &d
}

// DeliveryOutcome is the structured result every delivery handler
// returns; it is folded into the owning Generation, never persisted on
// its own.
type DeliveryOutcome struct {
	Success bool           `json:"success"`
	Details map[string]any `json:"details,omitempty"`
	Error   string         `json:"error,omitempty"`
}

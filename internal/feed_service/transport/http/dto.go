package http

import (
	"time"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
)

// TriggerGenerationRequestDTO is the optional body of a manual trigger.
type TriggerGenerationRequestDTO struct {
	// Force runs the feed even when it is deactivated.
	Force bool `json:"force"`
}

// GenerationResponseDTO is the external shape of a generation record.
type GenerationResponseDTO struct {
	ID              string         `json:"id"`
	FeedID          string         `json:"feed_id"`
	Status          string         `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	DurationSeconds *float64       `json:"duration_seconds,omitempty"`
	FilePath        string         `json:"file_path,omitempty"`
	FileSize        int64          `json:"file_size,omitempty"`
	RowCount        int            `json:"row_count"`
	DeliveredAt     *time.Time     `json:"delivered_at,omitempty"`
	DeliveryStatus  string         `json:"delivery_status,omitempty"`
	DeliveryDetails map[string]any `json:"delivery_details,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
}

// GenerationListResponseDTO wraps a feed's generation history.
type GenerationListResponseDTO struct {
	FeedID      string                  `json:"feed_id"`
	Generations []GenerationResponseDTO `json:"generations"`
}

func toGenerationDTO(gen *domain.Generation) GenerationResponseDTO {
	dto := GenerationResponseDTO{
		ID:              gen.ID.String(),
		FeedID:          gen.FeedID.String(),
		Status:          string(gen.Status),
		StartedAt:       gen.StartedAt,
		CompletedAt:     gen.CompletedAt,
		FilePath:        gen.FilePath,
		FileSize:        gen.FileSize,
		RowCount:        gen.RowCount,
		DeliveredAt:     gen.DeliveredAt,
		DeliveryStatus:  gen.DeliveryStatus,
		DeliveryDetails: gen.DeliveryDetails,
		ErrorMessage:    gen.ErrorMessage,
	}
	if d := gen.Duration(); d != nil {
		seconds := d.Seconds()
		dto.DurationSeconds = &seconds
	}
	return dto
}

// FeedStatusResponseDTO summarizes a feed's scheduling state for the
// status UI.
type FeedStatusResponseDTO struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	FeedType        string     `json:"feed_type"`
	Format          string     `json:"format"`
	IsActive        bool       `json:"is_active"`
	Frequency       string     `json:"frequency"`
	DeliveryMethod  string     `json:"delivery_method"`
	LastGenerated   *time.Time `json:"last_generated,omitempty"`
	LastDelivered   *time.Time `json:"last_delivered,omitempty"`
	GenerationCount int        `json:"generation_count"`
	NextRun         *time.Time `json:"next_run,omitempty"`
	InFlight        bool       `json:"in_flight"`
}

// ErrorResponseDTO is the uniform error body.
type ErrorResponseDTO struct {
	Error string `json:"error"`
}

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FeedType identifies which slice of the catalog a feed exports.
type FeedType string

const (
	FeedTypeProductCatalog FeedType = "product_catalog"
	FeedTypeInventory      FeedType = "inventory"
	FeedTypePricing        FeedType = "pricing"
	FeedTypeAssets         FeedType = "assets"
	FeedTypeFitment        FeedType = "fitment"
	FeedTypeCustom         FeedType = "custom"
)

// FeedFormat is the output encoding of a feed artifact.
type FeedFormat string

const (
	FormatCSV  FeedFormat = "csv"
	FormatXML  FeedFormat = "xml"
	FormatJSON FeedFormat = "json"
)

// Extension returns the artifact file extension for the format.
func (f FeedFormat) Extension() string {
	return string(f)
}

// Frequency is a feed's schedule policy.
type Frequency string

const (
	FrequencyManual  Frequency = "manual"
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// DeliveryMethod selects how a generated artifact reaches the customer.
type DeliveryMethod string

const (
	DeliveryDownload DeliveryMethod = "download"
	DeliveryEmail    DeliveryMethod = "email"
	DeliveryFTP      DeliveryMethod = "ftp"
	DeliverySFTP     DeliveryMethod = "sftp"
	DeliveryWebhook  DeliveryMethod = "webhook"
)

// Feed is a customer's configured recipe for producing a data export.
// It is owned by the administration subsystem; the pipeline reads it and
// only ever writes back the last_generated/last_delivered/generation_count
// counters.
type Feed struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`

	CustomerID       uuid.UUID `json:"customer_id"`
	CustomerUsername string    `json:"customer_username"`
	CustomerName     string    `json:"customer_name"`  // company name, falls back to username upstream
	CustomerEmail    string    `json:"customer_email"` // default email delivery recipient

	FeedType FeedType   `json:"feed_type"`
	Format   FeedFormat `json:"format"`

	// Content filters; empty slices mean "no filter".
	Categories []string `json:"categories"`
	Brands     []string `json:"brands"`
	Tags       []string `json:"tags"`

	// Field configuration. An empty IncludedFields list means the feed
	// type's default field list applies.
	IncludedFields []string          `json:"included_fields"`
	FieldMapping   map[string]string `json:"custom_field_mapping"`

	IsActive  bool      `json:"is_active"`
	Frequency Frequency `json:"frequency"`
	// ScheduleTime is required for daily feeds; only the clock part is
	// meaningful.
	ScheduleTime *time.Time `json:"schedule_time,omitempty"`
	// ScheduleDay is 0-6 (Monday=0) for weekly feeds, 1-31 for monthly.
	ScheduleDay *int `json:"schedule_day,omitempty"`

	DeliveryMethod DeliveryMethod  `json:"delivery_method"`
	DeliveryConfig json.RawMessage `json:"delivery_config"`

	LastGenerated   *time.Time `json:"last_generated,omitempty"`
	LastDelivered   *time.Time `json:"last_delivered,omitempty"`
	GenerationCount int        `json:"generation_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
)

const (
	webhookTimeout      = 30 * time.Second
	webhookResponseSnip = 500
	webhookUserAgent    = "feedpipe/1.0"
)

type webhookConfig struct {
	WebhookURL     string            `json:"webhook_url" validate:"required,url"`
	AuthToken      string            `json:"auth_token"`
	IncludeFileURL *bool             `json:"include_file_url"`
	Method         string            `json:"method"`
	CustomHeaders  map[string]string `json:"custom_headers"`
}

// webhookPayload is the notification body posted to the customer's
// endpoint once a generation completes.
type webhookPayload struct {
	FeedID       string          `json:"feed_id"`
	FeedName     string          `json:"feed_name"`
	FeedType     string          `json:"feed_type"`
	GenerationID string          `json:"generation_id"`
	Status       string          `json:"status"`
	RowCount     int             `json:"row_count"`
	FileSize     int64           `json:"file_size"`
	GeneratedAt  string          `json:"generated_at,omitempty"`
	Customer     webhookCustomer `json:"customer"`
	DownloadURL  string          `json:"download_url,omitempty"`
}

type webhookCustomer struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Company  string `json:"company"`
}

// WebhookHandler notifies an HTTP endpoint that an artifact is ready:
// POST with a JSON body, or GET with the payload flattened into query
// parameters. A non-2xx response is a failure.
type WebhookHandler struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewWebhookHandler(baseURL string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		baseURL: baseURL,
		client:  &http.Client{Timeout: webhookTimeout},
		logger:  logger.With("component", "webhook_handler"),
	}
}

func (h *WebhookHandler) Deliver(ctx context.Context, feed *domain.Feed, gen *domain.Generation) domain.DeliveryOutcome {
	var cfg webhookConfig
	if err := json.Unmarshal(feed.DeliveryConfig, &cfg); err != nil {
		return failure(fmt.Errorf("invalid webhook delivery config: %w", err))
	}
	if err := validate.StructCtx(ctx, cfg); err != nil {
		return failure(fmt.Errorf("missing webhook URL: %w", err))
	}

	payload := h.buildPayload(feed, gen, cfg)

	req, err := h.buildRequest(ctx, cfg, payload)
	if err != nil {
		return failure(err)
	}

	req.Header.Set("User-Agent", webhookUserAgent)
	if cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.AuthToken)
	}
	for k, v := range cfg.CustomHeaders {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.ErrorContext(ctx, "Webhook request failed", "feed_id", feed.ID, "generation_id", gen.ID, "url", cfg.WebhookURL, "error", err)
		return failure(fmt.Errorf("webhook request: %w", err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, webhookResponseSnip))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.logger.WarnContext(ctx, "Webhook endpoint rejected delivery", "feed_id", feed.ID, "status_code", resp.StatusCode)
		return failure(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}

	h.logger.InfoContext(ctx, "Feed delivered by webhook", "feed_id", feed.ID, "generation_id", gen.ID, "url", cfg.WebhookURL, "status_code", resp.StatusCode)
	details := map[string]any{
		"webhook_url": cfg.WebhookURL,
		"status_code": resp.StatusCode,
	}
	if len(body) > 0 {
		details["response"] = string(body)
	}
	return domain.DeliveryOutcome{Success: true, Details: details}
}

func (h *WebhookHandler) buildPayload(feed *domain.Feed, gen *domain.Generation, cfg webhookConfig) webhookPayload {
	payload := webhookPayload{
		FeedID:       feed.ID.String(),
		FeedName:     feed.Name,
		FeedType:     string(feed.FeedType),
		GenerationID: gen.ID.String(),
		Status:       "completed",
		RowCount:     gen.RowCount,
		FileSize:     gen.FileSize,
		Customer: webhookCustomer{
			ID:       feed.CustomerID.String(),
			Username: feed.CustomerUsername,
			Company:  feed.CustomerName,
		},
	}
	if gen.CompletedAt != nil {
		payload.GeneratedAt = gen.CompletedAt.Format(time.RFC3339)
	}
	if cfg.IncludeFileURL == nil || *cfg.IncludeFileURL {
		payload.DownloadURL = fmt.Sprintf("%s/feeds/download/%s/", strings.TrimRight(h.baseURL, "/"), gen.ID)
	}
	return payload
}

func (h *WebhookHandler) buildRequest(ctx context.Context, cfg webhookConfig, payload webhookPayload) (*http.Request, error) {
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}

	if method == http.MethodGet {
		u, err := url.Parse(cfg.WebhookURL)
		if err != nil {
			return nil, fmt.Errorf("parsing webhook URL: %w", err)
		}
		q := u.Query()
		q.Set("feed_id", payload.FeedID)
		q.Set("feed_name", payload.FeedName)
		q.Set("feed_type", payload.FeedType)
		q.Set("generation_id", payload.GenerationID)
		q.Set("status", payload.Status)
		q.Set("row_count", strconv.Itoa(payload.RowCount))
		q.Set("file_size", strconv.FormatInt(payload.FileSize, 10))
		if payload.GeneratedAt != "" {
			q.Set("generated_at", payload.GeneratedAt)
		}
		q.Set("customer_id", payload.Customer.ID)
		q.Set("customer_username", payload.Customer.Username)
		q.Set("customer_company", payload.Customer.Company)
		if payload.DownloadURL != "" {
			q.Set("download_url", payload.DownloadURL)
		}
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("building webhook request: %w", err)
		}
		return req, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/solidusdata/feedpipe/internal/feed_service/app"
	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
	"github.com/solidusdata/feedpipe/internal/feed_service/schedule"
	"github.com/solidusdata/feedpipe/internal/platform/storage"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// FeedHandler serves the pipeline's trigger and status endpoints.
type FeedHandler struct {
	orchestrator *app.Orchestrator
	feeds        domain.FeedRepository
	generations  domain.GenerationRepository
	sink         storage.Sink
	logger       *slog.Logger

	// now is swapped in tests for deterministic next_run values.
	now func() time.Time
}

func NewFeedHandler(orchestrator *app.Orchestrator, feeds domain.FeedRepository, generations domain.GenerationRepository, sink storage.Sink, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{
		orchestrator: orchestrator,
		feeds:        feeds,
		generations:  generations,
		sink:         sink,
		logger:       logger.With("component", "feed_handler"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// GetFeedStatus handles GET /feeds/{feedID}: the feed's scheduling
// summary, including the next evaluated run and whether a generation is
// currently in flight.
func (h *FeedHandler) GetFeedStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	feedID, err := uuid.Parse(chi.URLParam(r, "feedID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid feed ID")
		return
	}

	feed, err := h.feeds.GetByID(ctx, feedID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "feed not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to load feed", "feed_id", feedID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	latest, err := h.generations.ListByFeed(ctx, feedID, 1)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to load latest generation", "feed_id", feedID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := FeedStatusResponseDTO{
		ID:              feed.ID.String(),
		Name:            feed.Name,
		Slug:            feed.Slug,
		FeedType:        string(feed.FeedType),
		Format:          string(feed.Format),
		IsActive:        feed.IsActive,
		Frequency:       string(feed.Frequency),
		DeliveryMethod:  string(feed.DeliveryMethod),
		LastGenerated:   feed.LastGenerated,
		LastDelivered:   feed.LastDelivered,
		GenerationCount: feed.GenerationCount,
		NextRun:         schedule.NextRun(feed, h.now()),
		InFlight:        len(latest) > 0 && latest[0].Status.InFlight(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// TriggerGeneration handles POST /feeds/{feedID}/generations. The run is
// accepted and processed in the background; the response is the pending
// record.
func (h *FeedHandler) TriggerGeneration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	feedID, err := uuid.Parse(chi.URLParam(r, "feedID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid feed ID")
		return
	}

	var reqDTO TriggerGenerationRequestDTO
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil && !errors.Is(err, io.EOF) {
			h.logger.WarnContext(ctx, "Failed to decode trigger request body", "feed_id", feedID, "error", err)
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	gen, err := h.orchestrator.TriggerFeed(ctx, feedID, reqDTO.Force)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "feed not found")
		case errors.Is(err, domain.ErrFeedBusy):
			writeError(w, http.StatusConflict, "feed already has a generation in flight")
		case errors.Is(err, domain.ErrFeedInactive):
			writeError(w, http.StatusUnprocessableEntity, "feed is not active; pass force to run it anyway")
		default:
			h.logger.ErrorContext(ctx, "Failed to trigger generation", "feed_id", feedID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.InfoContext(ctx, "Manual generation accepted", "feed_id", feedID, "generation_id", gen.ID, "force", reqDTO.Force)
	writeJSON(w, http.StatusAccepted, toGenerationDTO(gen))
}

// GetGeneration handles GET /generations/{generationID}.
func (h *FeedHandler) GetGeneration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "generationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid generation ID")
		return
	}

	gen, err := h.generations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "generation not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to load generation", "generation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toGenerationDTO(gen))
}

// ListGenerations handles GET /feeds/{feedID}/generations.
func (h *FeedHandler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	feedID, err := uuid.Parse(chi.URLParam(r, "feedID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid feed ID")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	generations, err := h.generations.ListByFeed(ctx, feedID, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list generations", "feed_id", feedID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := GenerationListResponseDTO{FeedID: feedID.String(), Generations: []GenerationResponseDTO{}}
	for _, gen := range generations {
		resp.Generations = append(resp.Generations, toGenerationDTO(gen))
	}
	writeJSON(w, http.StatusOK, resp)
}

// DownloadArtifact handles GET /generations/{generationID}/download,
// serving the stored artifact for any generation that has one.
func (h *FeedHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "generationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid generation ID")
		return
	}

	gen, err := h.generations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "generation not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to load generation for download", "generation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if gen.FilePath == "" {
		writeError(w, http.StatusConflict, fmt.Sprintf("generation is %s and has no artifact", gen.Status))
		return
	}

	content, err := h.sink.Open(ctx, gen.FilePath)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to open artifact", "generation_id", id, "file_path", gen.FilePath, "error", err)
		writeError(w, http.StatusInternalServerError, "artifact unavailable")
		return
	}

	filename := path.Base(gen.FilePath)
	w.Header().Set("Content-Type", contentTypeFor(filename))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

func contentTypeFor(filename string) string {
	switch path.Ext(filename) {
	case ".csv":
		return "text/csv"
	case ".xml":
		return "application/xml"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponseDTO{Error: message})
}

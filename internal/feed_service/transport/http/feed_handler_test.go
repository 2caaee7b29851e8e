package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/solidusdata/feedpipe/internal/feed_service/app"
	"github.com/solidusdata/feedpipe/internal/feed_service/delivery"
	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
	"github.com/solidusdata/feedpipe/internal/platform/storage"
)

type MockFeedRepository struct {
	mock.Mock
}

func (m *MockFeedRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Feed, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Feed), args.Error(1)
}

func (m *MockFeedRepository) ListScheduled(ctx context.Context) ([]*domain.Feed, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Feed), args.Error(1)
}

type MockGenerationRepository struct {
	mock.Mock
}

func (m *MockGenerationRepository) Claim(ctx context.Context, feedID uuid.UUID) (*domain.Generation, error) {
	args := m.Called(ctx, feedID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Generation), args.Error(1)
}

func (m *MockGenerationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Generation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Generation), args.Error(1)
}

func (m *MockGenerationRepository) ListByFeed(ctx context.Context, feedID uuid.UUID, limit int) ([]*domain.Generation, error) {
	args := m.Called(ctx, feedID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Generation), args.Error(1)
}

func (m *MockGenerationRepository) MarkGenerating(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockGenerationRepository) MarkGenerated(ctx context.Context, id uuid.UUID, filePath string, fileSize int64, rowCount int) error {
	return m.Called(ctx, id, filePath, fileSize, rowCount).Error(0)
}

func (m *MockGenerationRepository) MarkDelivering(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockGenerationRepository) MarkCompleted(ctx context.Context, id uuid.UUID, deliveryStatus string, details map[string]any, deliveredAt *time.Time) error {
	return m.Called(ctx, id, deliveryStatus, details, deliveredAt).Error(0)
}

func (m *MockGenerationRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	return m.Called(ctx, id, errorMessage).Error(0)
}

type MockRecordSource struct {
	mock.Mock
}

func (m *MockRecordSource) Stream(ctx context.Context, feed *domain.Feed) (domain.RecordIterator, error) {
	args := m.Called(ctx, feed)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.RecordIterator), args.Error(1)
}

type memorySink struct {
	objects map[string][]byte
}

func newMemorySink() *memorySink { return &memorySink{objects: map[string][]byte{}} }

func (s *memorySink) Save(_ context.Context, path string, data []byte) (storage.SavedObject, error) {
	s.objects[path] = data
	return storage.SavedObject{Path: path, Size: int64(len(data))}, nil
}

func (s *memorySink) Open(_ context.Context, path string) ([]byte, error) {
	data, ok := s.objects[path]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", path)
	}
	return data, nil
}

type handlerFixture struct {
	router      http.Handler
	feeds       *MockFeedRepository
	generations *MockGenerationRepository
	records     *MockRecordSource
	sink        *memorySink
}

func setupHandlerTest(t *testing.T) *handlerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &handlerFixture{
		feeds:       new(MockFeedRepository),
		generations: new(MockGenerationRepository),
		records:     new(MockRecordSource),
		sink:        newMemorySink(),
	}
	deps := delivery.Deps{Sink: f.sink, Logger: logger, BaseURL: "https://feeds.example.com"}
	orchestrator := app.NewOrchestrator(
		f.feeds, f.generations, f.records, app.NewNoopNotifier(), deps,
		app.OrchestratorConfig{WorkerCount: 1, DeliveryTimeout: time.Second}, logger,
	)
	handler := NewFeedHandler(orchestrator, f.feeds, f.generations, f.sink, logger)
	handler.now = func() time.Time {
		return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	}
	f.router = NewRouter(handler, logger)
	return f
}

func activeFeed() *domain.Feed {
	return &domain.Feed{
		ID:             uuid.New(),
		Name:           "Catalog Export",
		Slug:           "catalog-export",
		CustomerID:     uuid.New(),
		FeedType:       domain.FeedTypeProductCatalog,
		Format:         domain.FormatCSV,
		IncludedFields: []string{"sku"},
		IsActive:       true,
		DeliveryMethod: domain.DeliveryDownload,
		DeliveryConfig: json.RawMessage(`{}`),
	}
}

func TestTriggerGenerationAccepted(t *testing.T) {
	f := setupHandlerTest(t)
	feed := activeFeed()
	pending := domain.NewGeneration(feed.ID)

	f.feeds.On("GetByID", mock.Anything, feed.ID).Return(feed, nil)
	f.generations.On("Claim", mock.Anything, feed.ID).Return(pending, nil)
	// The pipeline continues in the background after the 202; those
	// calls may or may not land before the test finishes.
	f.generations.On("MarkGenerating", mock.Anything, pending.ID).Return(nil).Maybe()
	f.records.On("Stream", mock.Anything, feed).Return(domain.NewSliceIterator(nil), nil).Maybe()
	f.generations.On("MarkGenerated", mock.Anything, pending.ID, mock.Anything, mock.Anything, 0).Return(nil).Maybe()
	f.generations.On("MarkCompleted", mock.Anything, pending.ID, "delivered", mock.Anything, mock.Anything).Return(nil).Maybe()

	req := httptest.NewRequest(http.MethodPost, "/feeds/"+feed.ID.String()+"/generations", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var dto GenerationResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, pending.ID.String(), dto.ID)
	assert.Equal(t, string(domain.StatusPending), dto.Status)
}

func TestTriggerGenerationFeedNotFound(t *testing.T) {
	f := setupHandlerTest(t)
	feedID := uuid.New()
	f.feeds.On("GetByID", mock.Anything, feedID).Return(nil, domain.ErrNotFound)

	req := httptest.NewRequest(http.MethodPost, "/feeds/"+feedID.String()+"/generations", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerGenerationBusy(t *testing.T) {
	f := setupHandlerTest(t)
	feed := activeFeed()
	f.feeds.On("GetByID", mock.Anything, feed.ID).Return(feed, nil)
	f.generations.On("Claim", mock.Anything, feed.ID).Return(nil, domain.ErrFeedBusy)

	req := httptest.NewRequest(http.MethodPost, "/feeds/"+feed.ID.String()+"/generations", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTriggerGenerationInactiveFeed(t *testing.T) {
	f := setupHandlerTest(t)
	feed := activeFeed()
	feed.IsActive = false
	f.feeds.On("GetByID", mock.Anything, feed.ID).Return(feed, nil)

	req := httptest.NewRequest(http.MethodPost, "/feeds/"+feed.ID.String()+"/generations", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	f.generations.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything)
}

func TestTriggerGenerationInvalidFeedID(t *testing.T) {
	f := setupHandlerTest(t)

	req := httptest.NewRequest(http.MethodPost, "/feeds/not-a-uuid/generations", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetGeneration(t *testing.T) {
	f := setupHandlerTest(t)
	gen := domain.NewGeneration(uuid.New())
	gen.Status = domain.StatusCompleted
	completed := gen.StartedAt.Add(90 * time.Second)
	gen.CompletedAt = &completed
	gen.RowCount = 12

	f.generations.On("GetByID", mock.Anything, gen.ID).Return(gen, nil)

	req := httptest.NewRequest(http.MethodGet, "/generations/"+gen.ID.String(), nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var dto GenerationResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, "completed", dto.Status)
	assert.Equal(t, 12, dto.RowCount)
	require.NotNil(t, dto.DurationSeconds)
	assert.InDelta(t, 90.0, *dto.DurationSeconds, 0.001)
}

func TestGetGenerationNotFound(t *testing.T) {
	f := setupHandlerTest(t)
	id := uuid.New()
	f.generations.On("GetByID", mock.Anything, id).Return(nil, domain.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/generations/"+id.String(), nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListGenerations(t *testing.T) {
	f := setupHandlerTest(t)
	feedID := uuid.New()
	gens := []*domain.Generation{domain.NewGeneration(feedID), domain.NewGeneration(feedID)}

	f.generations.On("ListByFeed", mock.Anything, feedID, 5).Return(gens, nil)

	req := httptest.NewRequest(http.MethodGet, "/feeds/"+feedID.String()+"/generations?limit=5", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp GenerationListResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, feedID.String(), resp.FeedID)
	assert.Len(t, resp.Generations, 2)
}

func TestListGenerationsLimitClamped(t *testing.T) {
	f := setupHandlerTest(t)
	feedID := uuid.New()
	f.generations.On("ListByFeed", mock.Anything, feedID, maxHistoryLimit).Return([]*domain.Generation{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/feeds/"+feedID.String()+"/generations?limit=9999", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	f.generations.AssertExpectations(t)
}

func TestDownloadArtifact(t *testing.T) {
	f := setupHandlerTest(t)
	gen := domain.NewGeneration(uuid.New())
	gen.Status = domain.StatusCompleted
	gen.FilePath = "feeds/c/g/catalog-export_g.csv"
	content := []byte("sku\nA1\n")
	_, err := f.sink.Save(context.Background(), gen.FilePath, content)
	require.NoError(t, err)

	f.generations.On("GetByID", mock.Anything, gen.ID).Return(gen, nil)

	req := httptest.NewRequest(http.MethodGet, "/generations/"+gen.ID.String()+"/download", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "catalog-export_g.csv")
	assert.Equal(t, content, rec.Body.Bytes())
}

func TestDownloadArtifactNotReady(t *testing.T) {
	f := setupHandlerTest(t)
	gen := domain.NewGeneration(uuid.New())

	f.generations.On("GetByID", mock.Anything, gen.ID).Return(gen, nil)

	req := httptest.NewRequest(http.MethodGet, "/generations/"+gen.ID.String()+"/download", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetFeedStatus(t *testing.T) {
	f := setupHandlerTest(t)
	feed := activeFeed()
	feed.Frequency = domain.FrequencyHourly
	feed.GenerationCount = 4

	latest := domain.NewGeneration(feed.ID)
	latest.Status = domain.StatusCompleted

	f.feeds.On("GetByID", mock.Anything, feed.ID).Return(feed, nil)
	f.generations.On("ListByFeed", mock.Anything, feed.ID, 1).Return([]*domain.Generation{latest}, nil)

	req := httptest.NewRequest(http.MethodGet, "/feeds/"+feed.ID.String(), nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var dto FeedStatusResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, feed.ID.String(), dto.ID)
	assert.Equal(t, "catalog-export", dto.Slug)
	assert.Equal(t, 4, dto.GenerationCount)
	assert.False(t, dto.InFlight)
	require.NotNil(t, dto.NextRun)
	assert.Equal(t, time.Date(2024, 3, 5, 11, 0, 0, 0, time.UTC), dto.NextRun.UTC())
}

func TestGetFeedStatusInFlight(t *testing.T) {
	f := setupHandlerTest(t)
	feed := activeFeed()
	feed.Frequency = domain.FrequencyManual

	f.feeds.On("GetByID", mock.Anything, feed.ID).Return(feed, nil)
	f.generations.On("ListByFeed", mock.Anything, feed.ID, 1).Return([]*domain.Generation{domain.NewGeneration(feed.ID)}, nil)

	req := httptest.NewRequest(http.MethodGet, "/feeds/"+feed.ID.String(), nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var dto FeedStatusResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.True(t, dto.InFlight)
	assert.Nil(t, dto.NextRun)
}

func TestGetFeedStatusNotFound(t *testing.T) {
	f := setupHandlerTest(t)
	feedID := uuid.New()
	f.feeds.On("GetByID", mock.Anything, feedID).Return(nil, domain.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/feeds/"+feedID.String(), nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := setupHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

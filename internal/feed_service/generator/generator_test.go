package generator

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
	"github.com/solidusdata/feedpipe/internal/platform/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSink(t *testing.T) storage.Sink {
	t.Helper()
	sink, err := storage.NewLocalSink(t.TempDir(), testLogger())
	require.NoError(t, err)
	return sink
}

func testFeed(format domain.FeedFormat, fields ...string) *domain.Feed {
	return &domain.Feed{
		ID:             uuid.New(),
		Name:           "Catalog Export",
		Slug:           "catalog-export",
		CustomerID:     uuid.New(),
		CustomerName:   "Acme Distribution",
		FeedType:       domain.FeedTypeProductCatalog,
		Format:         format,
		IncludedFields: fields,
		IsActive:       true,
	}
}

func testGeneration(feed *domain.Feed) *domain.Generation {
	gen := domain.NewGeneration(feed.ID)
	gen.StartedAt = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	return gen
}

func TestForFormat(t *testing.T) {
	sink := testSink(t)

	for _, format := range []domain.FeedFormat{domain.FormatCSV, domain.FormatXML, domain.FormatJSON} {
		g, err := ForFormat(format, sink, testLogger())
		require.NoError(t, err)
		require.NotNil(t, g)
	}

	_, err := ForFormat("xlsx", sink, testLogger())
	assert.Error(t, err)
}

func TestArtifactPath(t *testing.T) {
	feed := testFeed(domain.FormatCSV)
	gen := testGeneration(feed)

	path := ArtifactPath(feed, gen)
	assert.Contains(t, path, "feeds/"+feed.CustomerID.String()+"/"+gen.ID.String()+"/")
	assert.Contains(t, path, "catalog-export_"+gen.ID.String()+".csv")
}

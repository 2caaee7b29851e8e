// Package generator turns a feed's record stream into a persisted
// artifact in the feed's configured format.
package generator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
	"github.com/solidusdata/feedpipe/internal/platform/storage"
)

// Result describes a successfully persisted artifact.
type Result struct {
	FilePath string
	FileSize int64
	RowCount int
}

// Generator renders one generation's record stream into bytes and hands
// them to the storage sink. An empty record stream is a valid zero-row
// success, not an error.
type Generator interface {
	Generate(ctx context.Context, feed *domain.Feed, gen *domain.Generation, records domain.RecordIterator) (*Result, error)
}

// ForFormat selects the generator for a feed format.
func ForFormat(format domain.FeedFormat, sink storage.Sink, logger *slog.Logger) (Generator, error) {
	switch format {
	case domain.FormatCSV:
		return NewCSVGenerator(sink, logger), nil
	case domain.FormatXML:
		return NewXMLGenerator(sink, logger), nil
	case domain.FormatJSON:
		return NewJSONGenerator(sink, logger), nil
	default:
		return nil, fmt.Errorf("unsupported feed format: %s", format)
	}
}

// ArtifactPath is the deterministic storage path for a generation's
// artifact, namespaced by customer and generation.
func ArtifactPath(feed *domain.Feed, gen *domain.Generation) string {
	return fmt.Sprintf("feeds/%s/%s/%s_%s.%s",
		feed.CustomerID, gen.ID, feed.Slug, gen.ID, feed.Format.Extension())
}

package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
	"github.com/solidusdata/feedpipe/internal/platform/storage"
)

// jsonDocument is the top-level shape of a JSON feed artifact.
type jsonDocument struct {
	Feed  jsonFeedMeta     `json:"feed"`
	Items []map[string]any `json:"items"`
}

type jsonFeedMeta struct {
	Type         string `json:"type"`
	Name         string `json:"name"`
	Generated    string `json:"generated"`
	GenerationID string `json:"generation_id"`
	Customer     string `json:"customer"`
}

// JSONGenerator renders a feed as a JSON document with a feed metadata
// block and an items array. Collection values become native arrays,
// timestamps extended ISO-8601 strings, everything else a string. Nil
// field values are omitted from their item.
type JSONGenerator struct {
	sink   storage.Sink
	logger *slog.Logger
}

func NewJSONGenerator(sink storage.Sink, logger *slog.Logger) *JSONGenerator {
	return &JSONGenerator{sink: sink, logger: logger.With("component", "json_generator")}
}

func (g *JSONGenerator) Generate(ctx context.Context, feed *domain.Feed, gen *domain.Generation, records domain.RecordIterator) (*Result, error) {
	fields := fieldsFor(feed)

	doc := jsonDocument{
		Feed: jsonFeedMeta{
			Type:         string(feed.FeedType),
			Name:         feed.Name,
			Generated:    gen.StartedAt.Format(time.RFC3339),
			GenerationID: gen.ID.String(),
			Customer:     feed.CustomerName,
		},
		Items: []map[string]any{},
	}

	for records.Next() {
		rec := records.Record()
		item := make(map[string]any, len(fields))
		for _, field := range fields {
			value := Resolve(rec, field, feed.FieldMapping)
			if value == nil {
				continue
			}
			if members, ok := asStrings(value); ok {
				item[field] = members
			} else {
				item[field] = stringify(value)
			}
		}
		doc.Items = append(doc.Items, item)
	}
	if err := records.Err(); err != nil {
		return nil, fmt.Errorf("reading record stream: %w", err)
	}

	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON feed: %w", err)
	}

	saved, err := g.sink.Save(ctx, ArtifactPath(feed, gen), content)
	if err != nil {
		return nil, fmt.Errorf("saving JSON artifact: %w", err)
	}

	rowCount := len(doc.Items)
	g.logger.InfoContext(ctx, "JSON feed generated", "feed_id", feed.ID, "generation_id", gen.ID, "rows", rowCount, "size", saved.Size)
	return &Result{FilePath: saved.Path, FileSize: saved.Size, RowCount: rowCount}, nil
}

package generator

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strings"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
	"github.com/solidusdata/feedpipe/internal/platform/storage"
)

// CSVGenerator renders a feed as comma-separated values: a header row of
// field names, one row per record, nil values as empty cells, and
// collection values joined with "|".
type CSVGenerator struct {
	sink   storage.Sink
	logger *slog.Logger
}

func NewCSVGenerator(sink storage.Sink, logger *slog.Logger) *CSVGenerator {
	return &CSVGenerator{sink: sink, logger: logger.With("component", "csv_generator")}
}

func (g *CSVGenerator) Generate(ctx context.Context, feed *domain.Feed, gen *domain.Generation, records domain.RecordIterator) (*Result, error) {
	fields := fieldsFor(feed)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(fields); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}

	rowCount := 0
	for records.Next() {
		rec := records.Record()
		row := make([]string, len(fields))
		for i, field := range fields {
			value := Resolve(rec, field, feed.FieldMapping)
			if members, ok := asStrings(value); ok {
				row[i] = strings.Join(members, "|")
			} else {
				row[i] = stringify(value)
			}
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing CSV row %d: %w", rowCount+1, err)
		}
		rowCount++
	}
	if err := records.Err(); err != nil {
		return nil, fmt.Errorf("reading record stream: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing CSV: %w", err)
	}

	saved, err := g.sink.Save(ctx, ArtifactPath(feed, gen), buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("saving CSV artifact: %w", err)
	}

	g.logger.InfoContext(ctx, "CSV feed generated", "feed_id", feed.ID, "generation_id", gen.ID, "rows", rowCount, "size", saved.Size)
	return &Result{FilePath: saved.Path, FileSize: saved.Size, RowCount: rowCount}, nil
}

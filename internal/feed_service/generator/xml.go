package generator

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
	"github.com/solidusdata/feedpipe/internal/platform/storage"
)

// XMLGenerator renders a feed as an indented XML document: a feed root
// element carrying the type and generation timestamp, a metadata block,
// and one item element per record. Field element names replace "_" with
// "-"; collection values emit repeated value children. Nil field values
// are omitted.
type XMLGenerator struct {
	sink   storage.Sink
	logger *slog.Logger
}

func NewXMLGenerator(sink storage.Sink, logger *slog.Logger) *XMLGenerator {
	return &XMLGenerator{sink: sink, logger: logger.With("component", "xml_generator")}
}

func (g *XMLGenerator) Generate(ctx context.Context, feed *domain.Feed, gen *domain.Generation, records domain.RecordIterator) (*Result, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: "feed"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "type"}, Value: string(feed.FeedType)},
			{Name: xml.Name{Local: "generated"}, Value: gen.StartedAt.Format(time.RFC3339)},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, fmt.Errorf("encoding feed element: %w", err)
	}

	if err := g.writeMetadata(enc, feed, gen); err != nil {
		return nil, err
	}

	itemsStart := xml.StartElement{Name: xml.Name{Local: "items"}}
	if err := enc.EncodeToken(itemsStart); err != nil {
		return nil, fmt.Errorf("encoding items element: %w", err)
	}

	fields := fieldsFor(feed)
	rowCount := 0
	for records.Next() {
		rec := records.Record()
		if err := g.writeItem(enc, rec, fields, feed.FieldMapping); err != nil {
			return nil, err
		}
		rowCount++
	}
	if err := records.Err(); err != nil {
		return nil, fmt.Errorf("reading record stream: %w", err)
	}

	if err := enc.EncodeToken(itemsStart.End()); err != nil {
		return nil, fmt.Errorf("closing items element: %w", err)
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, fmt.Errorf("closing feed element: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("flushing XML: %w", err)
	}

	saved, err := g.sink.Save(ctx, ArtifactPath(feed, gen), buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("saving XML artifact: %w", err)
	}

	g.logger.InfoContext(ctx, "XML feed generated", "feed_id", feed.ID, "generation_id", gen.ID, "rows", rowCount, "size", saved.Size)
	return &Result{FilePath: saved.Path, FileSize: saved.Size, RowCount: rowCount}, nil
}

func (g *XMLGenerator) writeMetadata(enc *xml.Encoder, feed *domain.Feed, gen *domain.Generation) error {
	meta := xml.StartElement{Name: xml.Name{Local: "metadata"}}
	if err := enc.EncodeToken(meta); err != nil {
		return fmt.Errorf("encoding metadata element: %w", err)
	}
	for _, kv := range []struct{ name, value string }{
		{"customer", feed.CustomerName},
		{"feed_name", feed.Name},
		{"generation_id", gen.ID.String()},
	} {
		if err := writeTextElement(enc, kv.name, kv.value); err != nil {
			return err
		}
	}
	if err := enc.EncodeToken(meta.End()); err != nil {
		return fmt.Errorf("closing metadata element: %w", err)
	}
	return nil
}

func (g *XMLGenerator) writeItem(enc *xml.Encoder, rec domain.Record, fields []string, mapping map[string]string) error {
	item := xml.StartElement{Name: xml.Name{Local: "item"}}
	if err := enc.EncodeToken(item); err != nil {
		return fmt.Errorf("encoding item element: %w", err)
	}

	for _, field := range fields {
		value := Resolve(rec, field, mapping)
		if value == nil {
			continue
		}

		elemName := strings.ReplaceAll(field, "_", "-")
		if members, ok := asStrings(value); ok {
			fieldStart := xml.StartElement{Name: xml.Name{Local: elemName}}
			if err := enc.EncodeToken(fieldStart); err != nil {
				return fmt.Errorf("encoding field element %s: %w", elemName, err)
			}
			for _, member := range members {
				if err := writeTextElement(enc, "value", member); err != nil {
					return err
				}
			}
			if err := enc.EncodeToken(fieldStart.End()); err != nil {
				return fmt.Errorf("closing field element %s: %w", elemName, err)
			}
			continue
		}

		if err := writeTextElement(enc, elemName, stringify(value)); err != nil {
			return err
		}
	}

	if err := enc.EncodeToken(item.End()); err != nil {
		return fmt.Errorf("closing item element: %w", err)
	}
	return nil
}

func writeTextElement(enc *xml.Encoder, name, text string) error {
	start := xml.StartElement{Name: xml.Name{Local: name}}
	if err := enc.EncodeToken(start); err != nil {
		return fmt.Errorf("encoding %s element: %w", name, err)
	}
	if err := enc.EncodeToken(xml.CharData(text)); err != nil {
		return fmt.Errorf("encoding %s text: %w", name, err)
	}
	if err := enc.EncodeToken(start.End()); err != nil {
		return fmt.Errorf("closing %s element: %w", name, err)
	}
	return nil
}

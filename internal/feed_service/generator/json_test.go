package generator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
)

type jsonArtifact struct {
	Feed struct {
		Type         string `json:"type"`
		Name         string `json:"name"`
		Generated    string `json:"generated"`
		GenerationID string `json:"generation_id"`
		Customer     string `json:"customer"`
	} `json:"feed"`
	Items []map[string]any `json:"items"`
}

func generateJSON(t *testing.T, feed *domain.Feed, records []domain.Record) (*Result, jsonArtifact) {
	t.Helper()
	sink := testSink(t)
	g := NewJSONGenerator(sink, testLogger())
	gen := testGeneration(feed)

	result, err := g.Generate(context.Background(), feed, gen, domain.NewSliceIterator(records))
	require.NoError(t, err)

	data, err := sink.Open(context.Background(), result.FilePath)
	require.NoError(t, err)

	var doc jsonArtifact
	require.NoError(t, json.Unmarshal(data, &doc))
	return result, doc
}

func TestJSONGenerator_ItemsMatchRowCountAndFieldList(t *testing.T) {
	feed := testFeed(domain.FormatJSON, "sku", "name", "price")
	records := []domain.Record{
		{"sku": "A1", "name": "Bolt", "price": "1.50"},
		{"sku": "B2", "name": "Washer", "price": "0.25"},
	}

	result, doc := generateJSON(t, feed, records)

	assert.Equal(t, 2, result.RowCount)
	require.Len(t, doc.Items, result.RowCount)
	for _, item := range doc.Items {
		keys := make([]string, 0, len(item))
		for k := range item {
			keys = append(keys, k)
		}
		assert.ElementsMatch(t, []string{"sku", "name", "price"}, keys)
	}
	assert.Equal(t, "A1", doc.Items[0]["sku"])
}

func TestJSONGenerator_MetadataBlock(t *testing.T) {
	feed := testFeed(domain.FormatJSON, "sku")

	_, doc := generateJSON(t, feed, nil)

	assert.Equal(t, "product_catalog", doc.Feed.Type)
	assert.Equal(t, "Catalog Export", doc.Feed.Name)
	assert.Equal(t, "Acme Distribution", doc.Feed.Customer)
	assert.Equal(t, "2024-03-05T10:00:00Z", doc.Feed.Generated)
	assert.NotEmpty(t, doc.Feed.GenerationID)
}

func TestJSONGenerator_ZeroRows(t *testing.T) {
	feed := testFeed(domain.FormatJSON, "sku")

	result, doc := generateJSON(t, feed, nil)

	assert.Equal(t, 0, result.RowCount)
	assert.NotNil(t, doc.Items)
	assert.Len(t, doc.Items, 0)
}

func TestJSONGenerator_CollectionsAreNativeArrays(t *testing.T) {
	feed := testFeed(domain.FormatJSON, "sku", "categories")
	records := []domain.Record{
		{"sku": "A1", "categories": []string{"Brakes", "Rotors"}},
	}

	_, doc := generateJSON(t, feed, records)

	require.Len(t, doc.Items, 1)
	assert.Equal(t, []any{"Brakes", "Rotors"}, doc.Items[0]["categories"])
}

func TestJSONGenerator_DefaultFieldListWhenEmpty(t *testing.T) {
	feed := testFeed(domain.FormatJSON) // defaults apply
	records := []domain.Record{{
		"sku": "A1", "name": "Bolt", "brand": "Acme", "categories": []string{"Brakes"},
		"short_description": "d", "msrp": "10", "customer_price": "9",
		"part_numbers": []string{"p"}, "oem_numbers": []string{"o"},
		"length": "1", "width": "2", "height": "3", "weight": "4",
	}}

	result, doc := generateJSON(t, feed, records)

	require.Equal(t, 1, result.RowCount)
	keys := make([]string, 0, len(doc.Items[0]))
	for k := range doc.Items[0] {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, DefaultFields(domain.FeedTypeProductCatalog), keys)
}

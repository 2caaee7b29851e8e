package generator

import "github.com/solidusdata/feedpipe/internal/feed_service/domain"

// DefaultFields is the field list used when a feed definition does not
// configure one. Feed types without a default list export nothing unless
// the definition names fields explicitly.
func DefaultFields(feedType domain.FeedType) []string {
	switch feedType {
	case domain.FeedTypeProductCatalog:
		return []string{
			"sku",
			"name",
			"brand",
			"categories",
			"short_description",
			"msrp",
			"customer_price",
			"part_numbers",
			"oem_numbers",
			"length",
			"width",
			"height",
			"weight",
		}
	case domain.FeedTypeAssets:
		return []string{
			"id",
			"title",
			"description",
			"asset_type",
			"categories",
			"tags",
			"file_url",
			"thumbnail_url",
			"file_size",
			"created_at",
		}
	case domain.FeedTypeFitment:
		return []string{
			"sku",
			"make",
			"model",
			"year_start",
			"year_end",
			"submodel",
			"engine",
			"position",
			"notes",
		}
	}
	return nil
}

// fieldsFor picks the configured field list or the type default.
func fieldsFor(feed *domain.Feed) []string {
	if len(feed.IncludedFields) > 0 {
		return feed.IncludedFields
	}
	return DefaultFields(feed.FeedType)
}

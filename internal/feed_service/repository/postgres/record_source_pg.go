package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
)

// pgRecordSource reads the product catalog tables and turns them into
// the flat records the generators consume. The catalog is read-only for
// the pipeline. Category, brand and tag filters are applied as explicit
// predicates on each streamed row, with primary-key deduplication in a
// set, rather than relying on join shape.
type pgRecordSource struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPgRecordSource creates a RecordSource backed by PostgreSQL.
func NewPgRecordSource(db *pgxpool.Pool, logger *slog.Logger) domain.RecordSource {
	return &pgRecordSource{db: db, logger: logger.With("component", "record_source")}
}

func (s *pgRecordSource) Stream(ctx context.Context, feed *domain.Feed) (domain.RecordIterator, error) {
	var (
		records []domain.Record
		err     error
	)
	switch feed.FeedType {
	case domain.FeedTypeAssets:
		records, err = s.assetRecords(ctx, feed)
	case domain.FeedTypeFitment:
		records, err = s.fitmentRecords(ctx, feed)
	default:
		// product_catalog, inventory, pricing and custom feeds all read
		// the product tables; the field list decides what gets exported.
		records, err = s.productRecords(ctx, feed)
	}
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "Record stream materialized", "feed_id", feed.ID, "feed_type", feed.FeedType, "records", len(records))
	return domain.NewSliceIterator(records), nil
}

func (s *pgRecordSource) productRecords(ctx context.Context, feed *domain.Feed) ([]domain.Record, error) {
	query := `
		SELECT p.id, p.sku, p.name, p.short_description, p.description,
		       p.msrp, cp.price,
		       p.part_numbers, p.oem_numbers, p.upc,
		       p.length, p.width, p.height, p.weight,
		       p.country_of_origin, p.warranty,
		       p.stock_quantity, p.lead_time_days,
		       b.name,
		       COALESCE(array_agg(DISTINCT c.name) FILTER (WHERE c.name IS NOT NULL), '{}'),
		       COALESCE(array_agg(DISTINCT t.name) FILTER (WHERE t.name IS NOT NULL), '{}')
		FROM products p
		LEFT JOIN brands b ON b.id = p.brand_id
		LEFT JOIN product_categories pc ON pc.product_id = p.id
		LEFT JOIN categories c ON c.id = pc.category_id
		LEFT JOIN product_tags pt ON pt.product_id = p.id
		LEFT JOIN tags t ON t.id = pt.tag_id
		LEFT JOIN customer_prices cp ON cp.product_id = p.id AND cp.customer_id = $1
		WHERE p.is_active
		GROUP BY p.id, cp.price, b.name
		ORDER BY p.sku
	`
	rows, err := s.db.Query(ctx, query, feed.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	seen := map[uuid.UUID]struct{}{}
	var records []domain.Record
	for rows.Next() {
		var (
			id                         uuid.UUID
			sku, name                  string
			shortDescription, desc     *string
			msrp, customerPrice        *float64
			partNumbers, oemNumbers    []string
			upc                        *string
			length, width, height      *float64
			weight                     *float64
			countryOfOrigin, warranty  *string
			stockQuantity, leadTime    *int
			brandName                  *string
			categories, tags           []string
		)
		err := rows.Scan(
			&id, &sku, &name, &shortDescription, &desc,
			&msrp, &customerPrice,
			&partNumbers, &oemNumbers, &upc,
			&length, &width, &height, &weight,
			&countryOfOrigin, &warranty,
			&stockQuantity, &leadTime,
			&brandName, &categories, &tags,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning product row: %w", err)
		}

		if _, dup := seen[id]; dup {
			continue
		}
		if !matchesFilters(feed, brandValue(brandName), categories, tags) {
			continue
		}
		seen[id] = struct{}{}

		rec := domain.Record{
			"id":                id.String(),
			"sku":               sku,
			"name":              name,
			"short_description": deref(shortDescription),
			"description":       deref(desc),
			"msrp":              derefFloat(msrp),
			"customer_price":    overlayPrice(customerPrice, msrp),
			"part_numbers":      partNumbers,
			"oem_numbers":       oemNumbers,
			"upc":               deref(upc),
			"length":            derefFloat(length),
			"width":             derefFloat(width),
			"height":            derefFloat(height),
			"weight":            derefFloat(weight),
			"country_of_origin": deref(countryOfOrigin),
			"warranty":          deref(warranty),
			"stock_quantity":    derefInt(stockQuantity),
			"lead_time_days":    derefInt(leadTime),
			"categories":        categories,
			"tags":              tags,
		}
		if brandName != nil {
			rec["brand"] = map[string]any{"name": *brandName}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *pgRecordSource) assetRecords(ctx context.Context, feed *domain.Feed) ([]domain.Record, error) {
	query := `
		SELECT a.id, a.title, a.description, a.asset_type,
		       a.file_url, a.thumbnail_url, a.file_size, a.created_at,
		       COALESCE(array_agg(DISTINCT c.name) FILTER (WHERE c.name IS NOT NULL), '{}'),
		       COALESCE(array_agg(DISTINCT t.name) FILTER (WHERE t.name IS NOT NULL), '{}')
		FROM assets a
		LEFT JOIN asset_categories ac ON ac.asset_id = a.id
		LEFT JOIN categories c ON c.id = ac.category_id
		LEFT JOIN asset_tags at ON at.asset_id = a.id
		LEFT JOIN tags t ON t.id = at.tag_id
		GROUP BY a.id
		ORDER BY a.created_at
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying assets: %w", err)
	}
	defer rows.Close()

	seen := map[uuid.UUID]struct{}{}
	var records []domain.Record
	for rows.Next() {
		var (
			id               uuid.UUID
			title            string
			desc, assetType  *string
			fileURL          string
			thumbnailURL     *string
			fileSize         *int64
			createdAt        time.Time
			categories, tags []string
		)
		err := rows.Scan(&id, &title, &desc, &assetType, &fileURL, &thumbnailURL, &fileSize, &createdAt, &categories, &tags)
		if err != nil {
			return nil, fmt.Errorf("scanning asset row: %w", err)
		}

		if _, dup := seen[id]; dup {
			continue
		}
		// Assets carry no brand; only category/tag filters apply.
		if !matchesFilters(feed, "", categories, tags) {
			continue
		}
		seen[id] = struct{}{}

		records = append(records, domain.Record{
			"id":            id.String(),
			"title":         title,
			"description":   deref(desc),
			"asset_type":    deref(assetType),
			"file_url":      fileURL,
			"thumbnail_url": deref(thumbnailURL),
			"file_size":     derefInt64(fileSize),
			"created_at":    createdAt,
			"categories":    categories,
			"tags":          tags,
		})
	}
	return records, rows.Err()
}

func (s *pgRecordSource) fitmentRecords(ctx context.Context, feed *domain.Feed) ([]domain.Record, error) {
	query := `
		SELECT f.id, p.sku, f.make, f.model, f.year_start, f.year_end,
		       f.submodel, f.engine, f.position, f.notes,
		       b.name,
		       COALESCE(array_agg(DISTINCT c.name) FILTER (WHERE c.name IS NOT NULL), '{}'),
		       COALESCE(array_agg(DISTINCT t.name) FILTER (WHERE t.name IS NOT NULL), '{}')
		FROM fitments f
		JOIN products p ON p.id = f.product_id
		LEFT JOIN brands b ON b.id = p.brand_id
		LEFT JOIN product_categories pc ON pc.product_id = p.id
		LEFT JOIN categories c ON c.id = pc.category_id
		LEFT JOIN product_tags pt ON pt.product_id = p.id
		LEFT JOIN tags t ON t.id = pt.tag_id
		WHERE p.is_active
		GROUP BY f.id, p.sku, b.name
		ORDER BY p.sku, f.make, f.model
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying fitments: %w", err)
	}
	defer rows.Close()

	seen := map[uuid.UUID]struct{}{}
	var records []domain.Record
	for rows.Next() {
		var (
			id                 uuid.UUID
			sku, make_, model  string
			yearStart, yearEnd *int
			submodel, engine   *string
			position, notes    *string
			brandName          *string
			categories, tags   []string
		)
		err := rows.Scan(&id, &sku, &make_, &model, &yearStart, &yearEnd, &submodel, &engine, &position, &notes, &brandName, &categories, &tags)
		if err != nil {
			return nil, fmt.Errorf("scanning fitment row: %w", err)
		}

		if _, dup := seen[id]; dup {
			continue
		}
		if !matchesFilters(feed, brandValue(brandName), categories, tags) {
			continue
		}
		seen[id] = struct{}{}

		records = append(records, domain.Record{
			"id":         id.String(),
			"sku":        sku,
			"make":       make_,
			"model":      model,
			"year_start": derefInt(yearStart),
			"year_end":   derefInt(yearEnd),
			"submodel":   deref(submodel),
			"engine":     deref(engine),
			"position":   deref(position),
			"notes":      deref(notes),
		})
	}
	return records, rows.Err()
}

// matchesFilters applies the feed's content filters to one streamed row.
// Empty filter lists match everything; a non-empty list requires at
// least one intersection.
func matchesFilters(feed *domain.Feed, brand string, categories, tags []string) bool {
	if len(feed.Brands) > 0 && !contains(feed.Brands, brand) {
		return false
	}
	if len(feed.Categories) > 0 && !intersects(feed.Categories, categories) {
		return false
	}
	if len(feed.Tags) > 0 && !intersects(feed.Tags, tags) {
		return false
	}
	return true
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func intersects(wanted, actual []string) bool {
	for _, w := range wanted {
		if contains(actual, w) {
			return true
		}
	}
	return false
}

func brandValue(name *string) string {
	if name == nil {
		return ""
	}
	return *name
}

// overlayPrice is the per-customer price when one is negotiated, else
// the list price.
func overlayPrice(customerPrice, msrp *float64) any {
	if customerPrice != nil {
		return *customerPrice
	}
	return derefFloat(msrp)
}

func deref(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func derefFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func derefInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func derefInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

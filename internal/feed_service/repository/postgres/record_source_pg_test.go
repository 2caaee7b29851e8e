package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
)

func TestMatchesFilters(t *testing.T) {
	cases := []struct {
		name       string
		feed       *domain.Feed
		brand      string
		categories []string
		tags       []string
		want       bool
	}{
		{"no filters match everything", &domain.Feed{}, "Bosch", []string{"Brakes"}, nil, true},
		{"brand match", &domain.Feed{Brands: []string{"Bosch"}}, "Bosch", nil, nil, true},
		{"brand mismatch", &domain.Feed{Brands: []string{"Bosch"}}, "Denso", nil, nil, false},
		{"brand filter against missing brand", &domain.Feed{Brands: []string{"Bosch"}}, "", nil, nil, false},
		{"category intersection", &domain.Feed{Categories: []string{"Brakes", "Exhaust"}}, "", []string{"Filters", "Brakes"}, nil, true},
		{"category disjoint", &domain.Feed{Categories: []string{"Brakes"}}, "", []string{"Filters"}, nil, false},
		{"tag intersection", &domain.Feed{Tags: []string{"clearance"}}, "", nil, []string{"clearance", "new"}, true},
		{"all filters must pass", &domain.Feed{Brands: []string{"Bosch"}, Categories: []string{"Brakes"}}, "Bosch", []string{"Filters"}, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, matchesFilters(tc.feed, tc.brand, tc.categories, tc.tags))
		})
	}
}

func TestOverlayPrice(t *testing.T) {
	msrp := 19.99
	negotiated := 14.50

	assert.Equal(t, 14.50, overlayPrice(&negotiated, &msrp))
	assert.Equal(t, 19.99, overlayPrice(nil, &msrp))
	assert.Nil(t, overlayPrice(nil, nil))
}

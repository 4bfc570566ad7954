package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IliaW/hotel-crawler/config"
)

const listPageHTML = `
<html><body>
<div class="bui-pagination__info">26 &ndash; 50 of 843 properties</div>
<div id="filter_ht_id">
  <a class="filterelement" href="/searchresults.html?nflt=ht_id%3D204">Hotels</a>
  <a class="filterelement" href="/searchresults.html?nflt=ht_id%3D201">Apartments</a>
</div>
<div id="filter_price">
  <a class="filterelement" href="/searchresults.html?nflt=price%3D1">US$0 - US$100</a>
  <a class="filterelement" href="/searchresults.html?nflt=price%3D2">US$100 - US$200</a>
</div>
<div class="sr_property_block sr_item">
  <a class="hotel_name_link" href="/hotel/nl/grand-budapest.html"><span class="sr-hotel__name">
    Grand Budapest
  </span></a>
  <div class="bui-price-display__value">US$142</div>
  <div class="bui-review-score__badge">8.7</div>
  <div class="bui-review-score__text">2,431 reviews</div>
  <div class="sr_card_address_line">Zubrowka Old Town</div>
  <img class="hotel_image" src="https://cf.example/grand.jpg"/>
  <span class="bui-rating--hotel"><span class="bui-rating__item"></span><span class="bui-rating__item"></span><span class="bui-rating__item"></span><span class="bui-rating__item"></span></span>
</div>
<div class="sr_property_block sr_item soldout_property">
  <a class="hotel_name_link" href="/hotel/nl/soldout.html"><span class="sr-hotel__name">Sold Out Inn</span></a>
</div>
<div class="sr_property_block sr_item">
  <a class="hotel_name_link" href="/hotel/nl/canal-view.html"><span class="sr-hotel__name">Canal View</span></a>
  <div class="bui-price-display__value">US$98</div>
</div>
</body></html>`

func TestParseListPage(t *testing.T) {
	t.Parallel()
	cfg := &config.CrawlConfig{Currency: "USD", MinMaxPrice: "100-200", PropertyType: "Hotels"}

	lp, err := ParseListPage(listPageHTML, cfg)
	require.NoError(t, err)

	// soldout listings are excluded by the listing selector
	require.Len(t, lp.Listings, 2)

	first := lp.Listings[0]
	require.NotNil(t, first.Name)
	assert.Equal(t, "Grand Budapest", *first.Name)
	require.NotNil(t, first.Price)
	assert.Equal(t, 142.0, *first.Price)
	require.NotNil(t, first.Currency)
	assert.Equal(t, "USD", *first.Currency)
	require.NotNil(t, first.Rating)
	assert.Equal(t, 8.7, *first.Rating)
	require.NotNil(t, first.Reviews)
	assert.Equal(t, 2431, *first.Reviews)
	require.NotNil(t, first.Address)
	assert.Equal(t, "Zubrowka Old Town", *first.Address)
	require.NotNil(t, first.Stars)
	assert.Equal(t, 4, *first.Stars)
	require.NotNil(t, first.Image)
	assert.Equal(t, "https://cf.example/grand.jpg", *first.Image)

	require.NotNil(t, lp.FirstListingLink)
	assert.Equal(t, "/hotel/nl/grand-budapest.html", lp.FirstListingLink.Href)
	assert.Equal(t, "Grand Budapest", lp.FirstListingLink.Label)

	assert.Equal(t, 26, lp.PaginationFirst)
	assert.Len(t, lp.FilterLinks, 4)

	require.NotNil(t, lp.PropertyTypeLink)
	assert.Equal(t, "Hotels", lp.PropertyTypeLink.Label)

	require.NotNil(t, lp.PriceLink)
	assert.Equal(t, "US$100 - US$200", lp.PriceLink.Label)
}

func TestParseListPageDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.CrawlConfig{Currency: "USD", MinMaxPrice: "none", PropertyType: "none"}

	lp, err := ParseListPage("<html><body></body></html>", cfg)
	require.NoError(t, err)

	assert.Empty(t, lp.Listings)
	assert.Nil(t, lp.FirstListingLink)
	assert.Equal(t, 1, lp.PaginationFirst, "missing banner falls back to position 1")
	assert.Nil(t, lp.PriceLink)
}

func TestPriceFilterLinkOutOfRange(t *testing.T) {
	t.Parallel()
	cfg := &config.CrawlConfig{Currency: "USD", MinMaxPrice: "500-600", PropertyType: "none"}

	lp, err := ParseListPage(listPageHTML, cfg)
	require.NoError(t, err)
	assert.Nil(t, lp.PriceLink, "no band falls inside the configured range")
}

func TestParsePrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"US$142", 142, true},
		{"US$1,299.50", 1299.50, true},
		{"142", 142, true},
		{"free", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parsePrice(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.raw)
		}
	}
}

package expand

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IliaW/hotel-crawler/config"
	"github.com/IliaW/hotel-crawler/internal/frontier"
	"github.com/IliaW/hotel-crawler/internal/model"
	"github.com/IliaW/hotel-crawler/internal/scrape"
)

func newExpander(cfg *config.CrawlConfig) (*Expander, *frontier.Frontier) {
	f := frontier.New()
	f.AddProducer() // keep drain loops from reporting exhaustion
	return &Expander{Frontier: f, Cfg: cfg}, f
}

func drain(t *testing.T, f *frontier.Frontier) []*model.CrawlRequest {
	t.Helper()
	var out []*model.CrawlRequest
	for f.Len() > 0 {
		req, err := f.Dequeue(context.Background())
		require.NoError(t, err)
		out = append(out, req)
	}
	return out
}

func TestPaginationEnqueuesOffsetPages(t *testing.T) {
	t.Parallel()
	e, f := newExpander(&config.CrawlConfig{MaxPages: 4})

	base := "https://www.booking.com/searchresults.html?ss=Amsterdam"
	assert.Equal(t, 3, e.Pagination(base, model.SeedData{}))

	reqs := drain(t, f)
	require.Len(t, reqs, 3)
	assert.Equal(t, base+"&offset=25", reqs[0].URL)
	assert.Equal(t, base+"&offset=75", reqs[2].URL)
	for _, req := range reqs {
		assert.Equal(t, model.LabelPage, req.Label)
	}
}

func TestPaginationIsIdempotent(t *testing.T) {
	t.Parallel()
	e, _ := newExpander(&config.CrawlConfig{MaxPages: 4})

	base := "https://www.booking.com/searchresults.html?ss=Amsterdam"
	assert.Equal(t, 3, e.Pagination(base, model.SeedData{}))
	assert.Equal(t, 0, e.Pagination(base, model.SeedData{}))
}

func TestPriceSettingEnqueuesExactlyOneRequest(t *testing.T) {
	t.Parallel()
	e, f := newExpander(&config.CrawlConfig{MinMaxPrice: "100-200", PropertyType: "none", MaxPages: 5})

	link := &scrape.Link{Href: "/searchresults.html?nflt=price%3D2", Label: "US$100 - US$200"}
	assert.True(t, e.PriceSetting(link, model.SeedData{}))
	// a retried list page cannot double the settings navigation
	assert.False(t, e.PriceSetting(link, model.SeedData{}))

	reqs := drain(t, f)
	require.Len(t, reqs, 1)
	assert.Equal(t, model.LabelPriceSetting, reqs[0].Label)
	assert.Equal(t, "price-setting:100-200", reqs[0].UniqueKey)
}

func TestPriceSettingWithoutControl(t *testing.T) {
	t.Parallel()
	e, f := newExpander(&config.CrawlConfig{MinMaxPrice: "100-200"})

	assert.False(t, e.PriceSetting(nil, model.SeedData{}))
	assert.Equal(t, 0, f.Len())
}

func TestPropertySettingKeyedByType(t *testing.T) {
	t.Parallel()
	e, f := newExpander(&config.CrawlConfig{PropertyType: "Hotels"})

	link := &scrape.Link{Href: "/searchresults.html?nflt=ht_id%3D204", Label: "Hotels"}
	assert.True(t, e.PropertySetting(link, model.SeedData{}))

	reqs := drain(t, f)
	require.Len(t, reqs, 1)
	assert.Equal(t, model.LabelPropertySetting, reqs[0].Label)
	assert.Equal(t, "property-setting:Hotels", reqs[0].UniqueKey)
}

func TestFilterBranchesKeyedByLabel(t *testing.T) {
	t.Parallel()
	e, f := newExpander(&config.CrawlConfig{UseFilters: true})

	links := []scrape.Link{
		{Href: "/searchresults.html?nflt=class%3D5", Label: "5 stars"},
		{Href: "/searchresults.html?nflt=class%3D4", Label: "4 stars"},
		{Href: "", Label: "broken control"},
	}
	assert.Equal(t, 2, e.FilterBranches(links, model.SeedData{}))

	reqs := drain(t, f)
	require.Len(t, reqs, 2)
	assert.Equal(t, "5 stars_0", reqs[0].UniqueKey)
	assert.Equal(t, "4 stars_0", reqs[1].UniqueKey)
	for _, req := range reqs {
		assert.Equal(t, model.LabelPage, req.Label)
	}
}

func TestDetailGoesToTheFront(t *testing.T) {
	t.Parallel()
	e, f := newExpander(&config.CrawlConfig{})

	listPage := model.NewRequest("https://www.booking.com/searchresults.html?offset=25", model.LabelPage)
	require.True(t, f.Enqueue(listPage, false))

	seed := model.SeedData{ID: "42", Name: "Grand Budapest"}
	link := &scrape.Link{Href: "/hotel/nl/grand-budapest.html", Label: "Grand Budapest"}
	assert.True(t, e.Detail(link, 7, seed))

	reqs := drain(t, f)
	require.Len(t, reqs, 2)
	assert.Equal(t, model.LabelDetail, reqs[0].Label)
	assert.Equal(t, "Grand Budapest", reqs[0].UniqueKey)
	assert.Equal(t, 7, reqs[0].UserData.Order)
	assert.Equal(t, model.LabelPage, reqs[1].Label)
}

func TestAutocompleteBindsSeedDestination(t *testing.T) {
	t.Parallel()
	e, f := newExpander(&config.CrawlConfig{DestType: "city", SortBy: "bayesian_review_score", Currency: "USD"})

	assert.False(t, e.Autocomplete(model.SeedData{}), "no name, nothing to bind")
	assert.True(t, e.Autocomplete(model.SeedData{Name: "Grand Budapest", City: "Zubrowka"}))

	reqs := drain(t, f)
	require.Len(t, reqs, 1)
	assert.Equal(t, model.LabelAutocompleteSetting, reqs[0].Label)
	assert.Contains(t, reqs[0].URL, "Grand+Budapest")
	assert.Contains(t, reqs[0].URL, "Zubrowka")
}

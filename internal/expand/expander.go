package expand

import (
	"fmt"
	"log/slog"

	"github.com/IliaW/hotel-crawler/config"
	"github.com/IliaW/hotel-crawler/internal/frontier"
	"github.com/IliaW/hotel-crawler/internal/model"
	"github.com/IliaW/hotel-crawler/internal/scrape"
)

// Expander fans crawl requests out into the frontier. Every request carries
// a stable uniqueKey, so a repeated expansion attempt (for example after an
// identity retirement re-ran the same list page) cannot duplicate frontier
// entries for the same logical destination.
type Expander struct {
	Frontier *frontier.Frontier
	Cfg      *config.CrawlConfig
}

// Pagination enqueues one page request per result offset up to the page
// cap. The offset URL itself is the uniqueKey.
func (e *Expander) Pagination(baseURL string, seed model.SeedData) int {
	enqueued := 0
	for i := 1; i < e.Cfg.MaxPages; i++ {
		req := model.NewRequest(scrape.PaginationURL(baseURL, i), model.LabelPage)
		req.UserData = seed
		if e.Frontier.Enqueue(req, false) {
			enqueued++
		}
	}
	if enqueued > 0 {
		slog.Info("enqueued pagination pages.", slog.Int("count", enqueued))
	}
	return enqueued
}

// PropertySetting enqueues the single navigation that applies the
// configured property type. The current page's listings are not yet
// trustworthy, so the caller halts after this.
func (e *Expander) PropertySetting(link *scrape.Link, seed model.SeedData) bool {
	if link == nil {
		slog.Warn("property-type control not found on page.",
			slog.String("property_type", e.Cfg.PropertyType))
		return false
	}
	req := &model.CrawlRequest{
		URL:       scrape.FixURL("&", e.Cfg)(link.Href),
		UniqueKey: fmt.Sprintf("property-setting:%s", e.Cfg.PropertyType),
		Label:     model.LabelPropertySetting,
		UserData:  seed,
	}
	return e.Frontier.Enqueue(req, false)
}

// PriceSetting enqueues the single navigation that applies the configured
// price band.
func (e *Expander) PriceSetting(link *scrape.Link, seed model.SeedData) bool {
	if link == nil {
		slog.Warn("price-band control not found on page.",
			slog.String("min_max_price", e.Cfg.MinMaxPrice))
		return false
	}
	req := &model.CrawlRequest{
		URL:       scrape.FixURL("&", e.Cfg)(link.Href),
		UniqueKey: fmt.Sprintf("price-setting:%s", e.Cfg.MinMaxPrice),
		Label:     model.LabelPriceSetting,
		UserData:  seed,
	}
	return e.Frontier.Enqueue(req, false)
}

// FilterBranches enqueues one list-page request per available filter
// control. Keys combine the filter's label with a zero page index so later
// pagination inside a branch stays distinguishable.
func (e *Expander) FilterBranches(links []scrape.Link, seed model.SeedData) int {
	fix := scrape.FixURL("&", e.Cfg)
	enqueued := 0
	for _, link := range links {
		if link.Href == "" {
			continue
		}
		req := &model.CrawlRequest{
			URL:       fix(link.Href),
			UniqueKey: fmt.Sprintf("%s_0", link.Label),
			Label:     model.LabelPage,
			UserData:  seed,
		}
		if e.Frontier.Enqueue(req, false) {
			enqueued++
		}
	}
	if enqueued > 0 {
		slog.Info("enqueued filter branches.", slog.Int("count", enqueued))
	}
	return enqueued
}

// Autocomplete enqueues a navigation that re-runs the search bound to the
// seed's named destination.
func (e *Expander) Autocomplete(seed model.SeedData) bool {
	if seed.Name == "" {
		return false
	}
	req := &model.CrawlRequest{
		URL:       scrape.DestinationURL(e.Cfg, seed.Name, seed.City),
		UniqueKey: fmt.Sprintf("autocomplete-setting:%s", seed.Name),
		Label:     model.LabelAutocompleteSetting,
		UserData:  seed,
	}
	return e.Frontier.Enqueue(req, true)
}

// Detail enqueues the best-matching detail page at the front of the
// frontier so detail pages drain before further list pages. order is the
// listing's absolute display position from the pagination banner.
func (e *Expander) Detail(link *scrape.Link, order int, seed model.SeedData) bool {
	if link == nil || link.Href == "" {
		return false
	}
	key := link.Label
	if key == "" {
		key = link.Href
	}
	seed.Order = order
	req := &model.CrawlRequest{
		URL:       scrape.FixURL("&", e.Cfg)(link.Href),
		UniqueKey: key,
		Label:     model.LabelDetail,
		UserData:  seed,
	}
	return e.Frontier.Enqueue(req, true)
}

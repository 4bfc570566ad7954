package scrape

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/IliaW/hotel-crawler/config"
)

const siteBase = "https://www.booking.com"

// BuildStartURL creates the search-results URL for the configured
// destination. The sort order doubles as the proxy-health marker: a
// response URL missing it was served as a generic variant.
func BuildStartURL(cfg *config.CrawlConfig) string {
	query := cfg.Search
	startUrl := fmt.Sprintf("%s/searchresults.html?dest_type=%s&ss=%s&order=%s",
		siteBase, cfg.DestType, url.QueryEscape(query), cfg.SortBy)
	return AddURLParams(startUrl, cfg) + "&rows=25"
}

// DestinationURL builds a start URL bound to a named destination. Used for
// the autocomplete-setting pass so the search box resolves to the seed's
// destination instead of whatever the generic start URL carried.
func DestinationURL(cfg *config.CrawlConfig, name, city string) string {
	query := strings.TrimSpace(name)
	if city != "" {
		query = query + " " + city
	}
	startUrl := fmt.Sprintf("%s/searchresults.html?dest_type=%s&ss=%s&order=%s",
		siteBase, cfg.DestType, url.QueryEscape(query), cfg.SortBy)
	return AddURLParams(startUrl, cfg) + "&rows=25"
}

// AddURLParams appends the stay parameters (dates, currency, language,
// occupancy) that personalize every page of the crawl. Parameters already
// present are left alone.
func AddURLParams(raw string, cfg *config.CrawlConfig) string {
	var b strings.Builder
	b.WriteString(raw)

	add := func(key, value string) {
		if value == "" || strings.Contains(raw, key+"=") {
			return
		}
		b.WriteString("&")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(url.QueryEscape(value))
	}

	add("checkin", cfg.CheckIn)
	add("checkout", cfg.CheckOut)
	if cfg.Currency != "" && !strings.Contains(raw, "selected_currency=") {
		b.WriteString("&selected_currency=")
		b.WriteString(url.QueryEscape(cfg.Currency))
		b.WriteString("&changed_currency=1&top_currency=1")
	}
	add("lang", cfg.Language)
	if cfg.Rooms > 0 {
		add("no_rooms", fmt.Sprintf("%d", cfg.Rooms))
	}
	if cfg.Adults > 0 {
		add("group_adults", fmt.Sprintf("%d", cfg.Adults))
	}
	if cfg.Children > 0 {
		add("group_children", fmt.Sprintf("%d", cfg.Children))
	}

	return b.String()
}

// FixURL returns a function that absolutizes scraped hrefs and appends the
// stay parameters using the given separator.
func FixURL(sep string, cfg *config.CrawlConfig) func(string) string {
	return func(href string) string {
		if href == "" {
			return href
		}
		if strings.HasPrefix(href, "/") {
			href = siteBase + href
		}
		href = strings.ReplaceAll(href, "\n", "")
		fixed := AddURLParams(href, cfg)
		if sep != "&" {
			fixed = strings.Replace(fixed, "&", sep, 1)
		}
		return fixed
	}
}

// PaginationURL appends the result offset for page index i (25 rows per
// page).
func PaginationURL(baseURL string, i int) string {
	return fmt.Sprintf("%s&offset=%d", baseURL, 25*i)
}

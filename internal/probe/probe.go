package probe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IliaW/hotel-crawler/config"
	"github.com/IliaW/hotel-crawler/internal/browser"
	"github.com/IliaW/hotel-crawler/internal/model"
	"github.com/IliaW/hotel-crawler/internal/scrape"
)

// Probe inspects a loaded page and reports the discrete signals the state
// machine decides on. It never mutates the page.
type Probe struct {
	Cfg *config.CrawlConfig
}

// Collect snapshots the page signals. Absent elements are logged and left
// as unset signals; only a failure to talk to the page at all is returned
// as an error.
func (p *Probe) Collect(ctx context.Context, page browser.Page, req *model.CrawlRequest) (model.PageSignals, error) {
	var signals model.PageSignals

	resolved, err := page.URL(ctx)
	if err != nil {
		return signals, fmt.Errorf("resolve page url: %w", err)
	}
	signals.ResolvedURL = resolved
	signals.URLContainsSortMarker = strings.Contains(resolved, p.Cfg.SortBy)

	currency, found, err := page.Value(ctx, scrape.SelCurrencyInput)
	if err != nil {
		return signals, fmt.Errorf("read currency input: %w", err)
	}
	if !found {
		logUnset(scrape.SelCurrencyInput, req)
	}
	signals.CurrencyValue = strings.TrimSpace(currency)

	if !req.IsListPage() {
		return signals, nil
	}

	activeFilters, err := page.Count(ctx, scrape.SelActiveFilter)
	if err != nil {
		return signals, fmt.Errorf("count active filters: %w", err)
	}
	signals.FiltersApplied = activeFilters > 0

	priceApplied, err := page.Count(ctx, scrape.SelPriceFilterBox+" "+scrape.SelActiveFilter)
	if err != nil {
		return signals, fmt.Errorf("count active price filters: %w", err)
	}
	signals.MinMaxPriceApplied = priceApplied > 0

	propertyApplied, err := page.Count(ctx, scrape.SelPropertyTypeBox+" "+scrape.SelActiveFilter)
	if err != nil {
		return signals, fmt.Errorf("count active property-type filters: %w", err)
	}
	signals.PropertyTypeApplied = propertyApplied > 0

	signals.AutocompletionApplied, err = p.autocompletionBound(ctx, page, req)
	if err != nil {
		return signals, err
	}

	signals.ListingCount, err = page.Count(ctx, scrape.SelListing)
	if err != nil {
		return signals, fmt.Errorf("count listings: %w", err)
	}

	return signals, nil
}

// autocompletionBound reports whether the destination search box already
// resolves to the seed's named destination. Seeds without a name have
// nothing to bind and count as applied.
func (p *Probe) autocompletionBound(ctx context.Context, page browser.Page, req *model.CrawlRequest) (bool, error) {
	name := strings.TrimSpace(req.UserData.Name)
	if name == "" {
		return true, nil
	}
	boxValue, found, err := page.Value(ctx, scrape.SelSearchInput)
	if err != nil {
		return false, fmt.Errorf("read destination input: %w", err)
	}
	if !found {
		logUnset(scrape.SelSearchInput, req)
		return false, nil
	}
	return strings.Contains(strings.ToLower(boxValue), strings.ToLower(name)), nil
}

// A structurally absent element is an unset signal, not a failure: it
// usually means layout drift or a wrong page variant, which is itself
// informative.
func logUnset(selector string, req *model.CrawlRequest) {
	slog.Debug("signal element missing, treating as unset.",
		slog.String("selector", selector), slog.String("url", req.URL))
}

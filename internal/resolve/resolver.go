package resolve

import (
	"github.com/IliaW/hotel-crawler/config"
	"github.com/IliaW/hotel-crawler/internal/model"
)

// Prerequisites lists the UI-state-setting passes still required before the
// listings on a list page can be trusted.
type Prerequisites struct {
	FiltersNeeded            bool
	PriceNeeded              bool
	PropertyTypeNeeded       bool
	AutocompletionNeeded     bool
	ReadyToEnqueuePagination bool
}

// Resolve computes the pending UI-state passes from the probed signals.
//
// Property type is applied before the price range: each setting pass is a
// navigation that can reset the other's UI state, so only one is resolved
// per page load and the price pass waits until property type is in place.
func Resolve(signals model.PageSignals, cfg *config.CrawlConfig) Prerequisites {
	var p Prerequisites

	p.PropertyTypeNeeded = cfg.PropertyType != "none" && !signals.PropertyTypeApplied
	p.PriceNeeded = cfg.MinMaxPrice != "none" && !signals.MinMaxPriceApplied && !p.PropertyTypeNeeded
	p.FiltersNeeded = cfg.UseFilters && !signals.FiltersApplied
	p.AutocompletionNeeded = !signals.AutocompletionApplied
	p.ReadyToEnqueuePagination = !p.FiltersNeeded && !p.PriceNeeded && !p.PropertyTypeNeeded

	return p
}

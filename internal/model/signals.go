package model

// PageSignals is a snapshot of the discrete signals probed from a loaded
// page. Derived fresh per page load, never persisted.
type PageSignals struct {
	ResolvedURL           string
	CurrencyValue         string
	FiltersApplied        bool
	MinMaxPriceApplied    bool
	PropertyTypeApplied   bool
	AutocompletionApplied bool
	ListingCount          int
	URLContainsSortMarker bool
}

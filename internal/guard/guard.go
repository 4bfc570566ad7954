package guard

import (
	"github.com/IliaW/hotel-crawler/internal/model"
)

// Reason explains why an identity was judged compromised.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonTruncatedRedirect Reason = "TRUNCATED_REDIRECT"
	ReasonCurrencyMismatch  Reason = "CURRENCY_MISMATCH"
	ReasonProxyNotApplied   Reason = "PROXY_NOT_APPLIED"
)

// Assessment is the verdict on the current browser+proxy identity.
type Assessment struct {
	Healthy bool
	Reason  Reason
}

// Options carries the expectations the assessment checks against.
type Options struct {
	ExpectedCurrency string
	SortMarker       string
	// StartURLOverride is set when an explicit seed URL is configured; the
	// sort-marker check does not apply to arbitrary user URLs.
	StartURLOverride bool
}

// Assess decides whether the page was served through a working identity.
// The checks are ordered by how cheaply they disqualify: a truncated
// redirect needs no page content, the currency value is a single input
// read, and the sort marker only matters on list pages.
func Assess(signals model.PageSignals, req *model.CrawlRequest, opts Options) Assessment {
	if signals.ResolvedURL != "" && len(signals.ResolvedURL) < len(req.URL) {
		return Assessment{Healthy: false, Reason: ReasonTruncatedRedirect}
	}

	if signals.CurrencyValue == "" || signals.CurrencyValue != opts.ExpectedCurrency {
		return Assessment{Healthy: false, Reason: ReasonCurrencyMismatch}
	}

	if req.IsListPage() && !opts.StartURLOverride && !signals.URLContainsSortMarker {
		return Assessment{Healthy: false, Reason: ReasonProxyNotApplied}
	}

	return Assessment{Healthy: true, Reason: ReasonNone}
}

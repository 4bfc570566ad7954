package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/IliaW/hotel-crawler/internal/model"
)

func TestAssess(t *testing.T) {
	t.Parallel()

	req := &model.CrawlRequest{
		URL:       "https://www.booking.com/searchresults.html?ss=Amsterdam&order=bayesian_review_score",
		UniqueKey: "start",
		Label:     model.LabelStart,
	}
	opts := Options{ExpectedCurrency: "USD", SortMarker: "bayesian_review_score"}

	tests := []struct {
		name    string
		signals model.PageSignals
		opts    Options
		healthy bool
		reason  Reason
	}{
		{
			name: "healthy page",
			signals: model.PageSignals{
				ResolvedURL:           req.URL,
				CurrencyValue:         "USD",
				URLContainsSortMarker: true,
			},
			opts:    opts,
			healthy: true,
			reason:  ReasonNone,
		},
		{
			name: "truncated redirect",
			signals: model.PageSignals{
				ResolvedURL:           "https://www.booking.com/",
				CurrencyValue:         "USD",
				URLContainsSortMarker: true,
			},
			opts:   opts,
			reason: ReasonTruncatedRedirect,
		},
		{
			name: "currency mismatch",
			signals: model.PageSignals{
				ResolvedURL:           req.URL,
				CurrencyValue:         "EUR",
				URLContainsSortMarker: true,
			},
			opts:   opts,
			reason: ReasonCurrencyMismatch,
		},
		{
			name: "currency signal unset",
			signals: model.PageSignals{
				ResolvedURL:           req.URL,
				CurrencyValue:         "",
				URLContainsSortMarker: true,
			},
			opts:   opts,
			reason: ReasonCurrencyMismatch,
		},
		{
			name: "sort marker missing on list page",
			signals: model.PageSignals{
				ResolvedURL:           req.URL,
				CurrencyValue:         "USD",
				URLContainsSortMarker: false,
			},
			opts:   opts,
			reason: ReasonProxyNotApplied,
		},
		{
			name: "sort marker not required for explicit start url",
			signals: model.PageSignals{
				ResolvedURL:           req.URL,
				CurrencyValue:         "USD",
				URLContainsSortMarker: false,
			},
			opts:    Options{ExpectedCurrency: "USD", SortMarker: "bayesian_review_score", StartURLOverride: true},
			healthy: true,
			reason:  ReasonNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			verdict := Assess(tt.signals, req, tt.opts)
			assert.Equal(t, tt.healthy, verdict.Healthy)
			assert.Equal(t, tt.reason, verdict.Reason)
		})
	}
}

func TestAssessDetailPageSkipsSortMarker(t *testing.T) {
	t.Parallel()

	req := &model.CrawlRequest{
		URL:       "https://www.booking.com/hotel/nl/grand.html",
		UniqueKey: "Grand Hotel",
		Label:     model.LabelDetail,
	}
	signals := model.PageSignals{
		ResolvedURL:           req.URL,
		CurrencyValue:         "USD",
		URLContainsSortMarker: false,
	}

	verdict := Assess(signals, req, Options{ExpectedCurrency: "USD", SortMarker: "bayesian_review_score"})
	assert.True(t, verdict.Healthy)
}

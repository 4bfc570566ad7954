package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/IliaW/hotel-crawler/config"
	"github.com/IliaW/hotel-crawler/internal/browser"
	"github.com/IliaW/hotel-crawler/internal/expand"
	"github.com/IliaW/hotel-crawler/internal/frontier"
	"github.com/IliaW/hotel-crawler/internal/gate"
	"github.com/IliaW/hotel-crawler/internal/guard"
	"github.com/IliaW/hotel-crawler/internal/ledger"
	"github.com/IliaW/hotel-crawler/internal/model"
	"github.com/IliaW/hotel-crawler/internal/probe"
	"github.com/IliaW/hotel-crawler/internal/resolve"
	"github.com/IliaW/hotel-crawler/internal/scrape"
	"github.com/IliaW/hotel-crawler/internal/telemetry"
)

// CrawlWorker drives the page-state machine. It holds exactly one browser
// identity at a time, dequeues requests from the frontier, probes each loaded
// page, and either retires the identity, expands the frontier, or emits
// extracted records.
type CrawlWorker struct {
	Frontier    *frontier.Frontier
	Browsers    browser.Pool
	Probe       *probe.Probe
	Gate        *gate.Gate
	Expander    *expand.Expander
	Ledger      *ledger.DedupLedger
	OutputChan  chan<- *model.ExtractedListing
	RateLimiter *rate.Limiter
	Cfg         *config.Config
	Enrich      gate.EnrichFunc
	Metrics     *telemetry.CrawlMetrics
	Wg          *sync.WaitGroup
}

func (w *CrawlWorker) Run(ctx context.Context) {
	defer w.Wg.Done()
	slog.Debug("start crawl worker")

	identity, err := w.Browsers.Acquire(ctx)
	if err != nil {
		slog.Error("failed to acquire a browser identity.", slog.String("err", err.Error()))
		return
	}
	defer func() {
		if identity != nil {
			identity.Close()
		}
	}()

	for {
		req, err := w.Frontier.Dequeue(ctx)
		if err != nil {
			switch {
			case errors.Is(err, frontier.ErrExhausted):
				slog.Info("frontier exhausted, stopping crawl worker.")
			case errors.Is(err, frontier.ErrClosed):
				slog.Info("frontier closed, stopping crawl worker.")
			default:
				slog.Info("stopping crawl worker...", slog.String("err", err.Error()))
			}
			return
		}

		// limit navigations to the site
		if err = w.RateLimiter.Wait(ctx); err != nil {
			w.Frontier.Reenqueue(req, true)
			return
		}

		identity = w.handle(ctx, identity, req)
		if identity == nil {
			return
		}
	}
}

// handle processes one request and returns the identity the worker holds
// afterwards (a fresh one after a retirement, nil when no identity could be
// acquired and the worker must stop).
func (w *CrawlWorker) handle(ctx context.Context, identity browser.Identity, req *model.CrawlRequest) browser.Identity {
	slog.Debug("handling request.", slog.String("label", string(req.Label)), slog.String("url", req.URL))

	pageCtx, cancel := context.WithTimeout(ctx, w.Cfg.WorkerSettings.HandleTimeout)
	defer cancel()

	page, err := identity.Open(pageCtx, req.URL)
	if err != nil {
		slog.Error("failed to open page.", slog.String("url", req.URL), slog.String("err", err.Error()))
		w.fail(req, err)
		return identity
	}
	defer page.Close()

	signals, err := w.Probe.Collect(pageCtx, page, req)
	if err != nil {
		slog.Error("failed to probe page.", slog.String("url", req.URL), slog.String("err", err.Error()))
		w.fail(req, err)
		return identity
	}

	verdict := guard.Assess(signals, req, guard.Options{
		ExpectedCurrency: w.Cfg.CrawlSettings.Currency,
		SortMarker:       w.Cfg.CrawlSettings.SortBy,
		StartURLOverride: w.Cfg.CrawlSettings.StartURL != "",
	})
	if !verdict.Healthy {
		return w.retire(ctx, identity, req, verdict.Reason)
	}

	if req.IsListPage() {
		err = w.handleList(pageCtx, page, req, signals)
	} else {
		err = w.handleDetail(pageCtx, page, req)
	}
	if err != nil {
		w.fail(req, err)
		return identity
	}

	w.Frontier.Done(req.UniqueKey)
	w.Metrics.PageHandledCnt(1)
	return identity
}

// retire replaces a compromised identity. The request that exposed it goes
// back to the frontier on a separate retirement budget: the failure belongs
// to the identity, not the request.
func (w *CrawlWorker) retire(ctx context.Context, identity browser.Identity, req *model.CrawlRequest,
	reason guard.Reason) browser.Identity {
	slog.Warn("identity compromised, retiring.", slog.String("reason", string(reason)),
		slog.String("identity", identity.ID()), slog.String("url", req.URL))
	w.Metrics.RetirementCnt(1)

	req.Retirements++
	if req.Retirements > w.Cfg.WorkerSettings.MaxRetirements {
		slog.Error("retirement budget exhausted for request.", slog.String("url", req.URL),
			slog.Int("retirements", req.Retirements-1))
		w.sentinel(req)
	} else {
		w.Frontier.Reenqueue(req, false)
	}

	w.Browsers.Retire(identity)
	fresh, err := w.Browsers.Acquire(ctx)
	if err != nil {
		slog.Error("failed to acquire a fresh identity.", slog.String("err", err.Error()))
		return nil
	}
	return fresh
}

// fail counts a business failure against the request's retry budget. A
// request over budget still produces output: the all-null sentinel keeps the
// seed visible downstream.
func (w *CrawlWorker) fail(req *model.CrawlRequest, err error) {
	w.Metrics.PageFailedCnt(1)
	req.Retries++
	if req.Retries > w.Cfg.WorkerSettings.MaxRetries {
		slog.Error("request failed permanently.", slog.String("url", req.URL),
			slog.String("err", err.Error()), slog.Int("retries", req.Retries-1))
		w.sentinel(req)
		return
	}
	slog.Warn("request failed, re-enqueueing.", slog.String("url", req.URL),
		slog.String("err", err.Error()), slog.Int("attempt", req.Retries))
	w.Frontier.Reenqueue(req, false)
}

func (w *CrawlWorker) sentinel(req *model.CrawlRequest) {
	w.OutputChan <- model.SentinelListing(req.UserData)
	w.Metrics.SentinelCnt(1)
	w.Frontier.Done(req.UniqueKey)
}

func (w *CrawlWorker) handleList(ctx context.Context, page browser.Page, req *model.CrawlRequest,
	signals model.PageSignals) error {
	cs := w.Cfg.CrawlSettings

	html, err := page.HTML(ctx)
	if err != nil {
		return err
	}
	lp, err := scrape.ParseListPage(html, cs)
	if err != nil {
		return err
	}

	prereqs := resolve.Resolve(signals, cs)

	// Each UI-state pass is one navigation; the current page's listings are
	// not trusted until every pass reports applied.
	if prereqs.PropertyTypeNeeded {
		w.Expander.PropertySetting(lp.PropertyTypeLink, req.UserData)
		return nil
	}
	if prereqs.PriceNeeded {
		w.Expander.PriceSetting(lp.PriceLink, req.UserData)
		return nil
	}
	if prereqs.FiltersNeeded {
		w.Expander.FilterBranches(lp.FilterLinks, req.UserData)
		return nil
	}
	if prereqs.AutocompletionNeeded && req.UserData.Name != "" {
		w.Expander.Autocomplete(req.UserData)
		return nil
	}

	// Crawls whose result set had to be rewritten by a settings pass could
	// not seed their offset pages upfront; do it from the settled page.
	// Offset pages never re-paginate.
	if prereqs.ReadyToEnqueuePagination && cs.MaxPages > 0 && !w.Cfg.SeedsFromRows() &&
		w.latePagination() && !strings.Contains(req.URL, "offset=") {
		w.Expander.Pagination(signals.ResolvedURL, req.UserData)
	}

	if len(lp.Listings) == 0 {
		slog.Warn("list page has no listings.", slog.String("url", req.URL))
		return nil
	}

	if err = w.Gate.CheckLucky(lp.Listings, req.UserData.Name); err != nil {
		return err
	}

	if cs.Simple {
		return w.emitFromList(lp, req)
	}

	// One detail navigation per list page keeps the in-flight breadth
	// bounded; the offset pages cover the rest of the result set.
	w.Expander.Detail(lp.FirstListingLink, lp.PaginationFirst, req.UserData)
	return nil
}

// emitFromList sends list-page records straight to the sink, skipping the
// detail pages entirely.
func (w *CrawlWorker) emitFromList(lp *scrape.ListPage, req *model.CrawlRequest) error {
	if req.UserData.Name != "" {
		first := lp.Listings[0]
		if first.Name != nil && w.Ledger.Accept(*first.Name) {
			w.OutputChan <- first.EchoSeed(req.UserData)
			w.Metrics.ListingEmittedCnt(1)
		}
		return nil
	}

	emitted := 0
	for _, listing := range lp.Listings {
		if listing.Name == nil || !w.Ledger.Accept(*listing.Name) {
			continue
		}
		w.OutputChan <- listing.EchoSeed(req.UserData)
		emitted++
	}
	w.Metrics.ListingEmittedCnt(int64(emitted))
	slog.Debug("emitted listings from list page.", slog.Int("count", emitted),
		slog.String("url", req.URL))
	return nil
}

func (w *CrawlWorker) handleDetail(ctx context.Context, page browser.Page, req *model.CrawlRequest) error {
	// the room table renders late; tolerate its absence, the structured data
	// block is the actual extraction source
	if err := page.WaitVisible(ctx, scrape.SelOccupancyInfo); err != nil {
		slog.Debug("room table did not render.", slog.String("url", req.URL))
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return err
	}

	ld, err := scrape.ParseStructuredData(html)
	if err != nil {
		if errors.Is(err, scrape.ErrNoStructuredData) {
			slog.Warn("detail page has no structured data, skipping.", slog.String("url", req.URL))
			return nil
		}
		return err
	}
	if !w.Gate.PassesScore(ld) {
		slog.Debug("detail page filtered by minimum score.", slog.String("url", req.URL))
		return nil
	}

	listing, err := scrape.ExtractDetail(html, ld, w.Cfg.CrawlSettings, req.UserData)
	if err != nil {
		return err
	}
	if w.Enrich != nil {
		if err = gate.Apply(ctx, w.Enrich, page, listing); err != nil {
			if errors.Is(err, gate.ErrNoRecord) {
				slog.Error("enrichment callback is broken, aborting the run.",
					slog.String("err", err.Error()))
				os.Exit(1)
			}
			// an evaluation failure is the page's fault, not the callback's;
			// let the retry budget handle it
			return err
		}
	}

	// mark seen only once nothing can fail before emission, or a retried
	// page would be skipped as a duplicate
	if listing.Name != nil && !w.Ledger.Accept(*listing.Name) {
		slog.Debug("listing already emitted, skipping.", slog.String("name", *listing.Name))
		return nil
	}

	w.OutputChan <- listing
	w.Metrics.ListingEmittedCnt(1)
	return nil
}

// latePagination reports whether offset pages depend on a settings pass and
// therefore could not be seeded upfront.
func (w *CrawlWorker) latePagination() bool {
	cs := w.Cfg.CrawlSettings
	return cs.UseFilters || cs.MinMaxPrice != "none" || cs.PropertyType != "none"
}

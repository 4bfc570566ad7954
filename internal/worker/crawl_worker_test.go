package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/IliaW/hotel-crawler/config"
	"github.com/IliaW/hotel-crawler/internal/browser"
	"github.com/IliaW/hotel-crawler/internal/expand"
	"github.com/IliaW/hotel-crawler/internal/frontier"
	"github.com/IliaW/hotel-crawler/internal/gate"
	"github.com/IliaW/hotel-crawler/internal/ledger"
	"github.com/IliaW/hotel-crawler/internal/model"
	"github.com/IliaW/hotel-crawler/internal/probe"
	"github.com/IliaW/hotel-crawler/internal/scrape"
	"github.com/IliaW/hotel-crawler/internal/telemetry"
)

const workerListHTML = `<html><body>
<div class="sr_property_block sr_item">
  <a class="hotel_name_link" href="/hotel/nl/grand-budapest.html"><span class="sr-hotel__name">Grand Budapest</span></a>
  <div class="bui-price-display__value">US$142</div>
</div>
</body></html>`

const workerMismatchHTML = `<html><body>
<div class="sr_property_block sr_item">
  <a class="hotel_name_link" href="/hotel/nl/other.html"><span class="sr-hotel__name">Other Hotel</span></a>
</div>
</body></html>`

const workerDetailHTML = `<html><body>
<script type="application/ld+json">
{"name": "Grand Budapest", "url": "https://www.booking.com/hotel/nl/grand-budapest.html",
 "aggregateRating": {"ratingValue": 8.7, "reviewCount": 2431}}
</script>
</body></html>`

type fakePage struct {
	url    string
	values map[string]string
	counts map[string]int
	html   string
}

func (p *fakePage) URL(context.Context) (string, error) { return p.url, nil }

func (p *fakePage) Value(_ context.Context, selector string) (string, bool, error) {
	v, ok := p.values[selector]
	return v, ok, nil
}

func (p *fakePage) Attribute(context.Context, string, string) (string, bool, error) {
	return "", false, nil
}

func (p *fakePage) Count(_ context.Context, selector string) (int, error) {
	return p.counts[selector], nil
}

func (p *fakePage) Evaluate(context.Context, string, any) error { return nil }
func (p *fakePage) WaitVisible(context.Context, string) error   { return nil }
func (p *fakePage) HTML(context.Context) (string, error)        { return p.html, nil }
func (p *fakePage) Close()                                      {}

type fakeIdentity struct {
	id   string
	open func(url string) browser.Page
}

func (i *fakeIdentity) ID() string    { return i.id }
func (i *fakeIdentity) Proxy() string { return "" }
func (i *fakeIdentity) Close()        {}

func (i *fakeIdentity) Open(_ context.Context, url string) (browser.Page, error) {
	return i.open(url), nil
}

type fakePool struct {
	mu      sync.Mutex
	queue   []browser.Identity
	retired []string
}

func (p *fakePool) Acquire(context.Context) (browser.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil, errors.New("no identities left")
	}
	ident := p.queue[0]
	p.queue = p.queue[1:]
	return ident, nil
}

func (p *fakePool) Retire(identity browser.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retired = append(p.retired, identity.ID())
}

func (p *fakePool) Close() {}

func noopCrawlMetrics() *telemetry.CrawlMetrics {
	return &telemetry.CrawlMetrics{
		PageHandledCnt:    func(int64) {},
		PageFailedCnt:     func(int64) {},
		RetirementCnt:     func(int64) {},
		ListingEmittedCnt: func(int64) {},
		SentinelCnt:       func(int64) {},
	}
}

func workerConfig(mutate func(*config.CrawlConfig)) *config.Config {
	crawl := &config.CrawlConfig{
		DestType:     "city",
		Search:       "Amsterdam",
		SortBy:       "bayesian_review_score",
		Currency:     "USD",
		MinMaxPrice:  "none",
		PropertyType: "none",
	}
	if mutate != nil {
		mutate(crawl)
	}
	return &config.Config{
		CrawlSettings: crawl,
		WorkerSettings: &config.WorkerConfig{
			MaxRetries:     2,
			MaxRetirements: 3,
			HandleTimeout:  time.Minute,
		},
		SeedSettings: &config.SeedConfig{Source: "search"},
	}
}

// listServing builds an identity whose pages report the given currency and
// serve listHTML for list URLs and workerDetailHTML for detail URLs.
func listServing(id, currency, listHTML string, searchBox string) *fakeIdentity {
	return &fakeIdentity{
		id: id,
		open: func(url string) browser.Page {
			if strings.Contains(url, "/hotel/") {
				return &fakePage{
					url:    url,
					values: map[string]string{scrape.SelCurrencyInput: currency},
					html:   workerDetailHTML,
				}
			}
			return &fakePage{
				url: url,
				values: map[string]string{
					scrape.SelCurrencyInput: currency,
					scrape.SelSearchInput:   searchBox,
				},
				counts: map[string]int{scrape.SelListing: 1},
				html:   listHTML,
			}
		},
	}
}

func runWorker(t *testing.T, cfg *config.Config, pool *fakePool,
	f *frontier.Frontier, enrich gate.EnrichFunc) []*model.ExtractedListing {
	t.Helper()

	output := make(chan *model.ExtractedListing, 16)
	wg := &sync.WaitGroup{}
	w := &CrawlWorker{
		Frontier:    f,
		Browsers:    pool,
		Probe:       &probe.Probe{Cfg: cfg.CrawlSettings},
		Gate:        &gate.Gate{Cfg: cfg.CrawlSettings},
		Expander:    &expand.Expander{Frontier: f, Cfg: cfg.CrawlSettings},
		Ledger:      ledger.New(nil, nil, nil),
		OutputChan:  output,
		RateLimiter: rate.NewLimiter(rate.Inf, 1),
		Cfg:         cfg,
		Enrich:      enrich,
		Metrics:     noopCrawlMetrics(),
		Wg:          wg,
	}

	wg.Add(1)
	go w.Run(context.Background())
	wg.Wait()
	close(output)

	var emitted []*model.ExtractedListing
	for listing := range output {
		emitted = append(emitted, listing)
	}
	return emitted
}

func TestWorkerRetiresIdentityOnCurrencyMismatch(t *testing.T) {
	t.Parallel()
	cfg := workerConfig(func(crawl *config.CrawlConfig) { crawl.Simple = true })

	// the first identity serves pages priced in EUR, the replacement in USD
	pool := &fakePool{queue: []browser.Identity{
		listServing("compromised", "EUR", workerListHTML, "Amsterdam"),
		listServing("healthy", "USD", workerListHTML, "Amsterdam"),
	}}

	f := frontier.New()
	startUrl := scrape.BuildStartURL(cfg.CrawlSettings)
	require.True(t, f.Enqueue(model.NewRequest(startUrl, model.LabelStart), false))

	emitted := runWorker(t, cfg, pool, f, nil)

	assert.Equal(t, []string{"compromised"}, pool.retired)
	require.Len(t, emitted, 1, "the retried request is served once by the healthy identity")
	require.NotNil(t, emitted[0].Name)
	assert.Equal(t, "Grand Budapest", *emitted[0].Name)
}

func TestWorkerEmitsSentinelAfterRetryBudget(t *testing.T) {
	t.Parallel()
	cfg := workerConfig(func(crawl *config.CrawlConfig) { crawl.Simple = true })
	cfg.WorkerSettings.MaxRetries = 1

	// healthy identity, but the page's first result never matches the seed
	pool := &fakePool{queue: []browser.Identity{
		listServing("healthy", "USD", workerMismatchHTML, "Grand Budapest"),
	}}

	f := frontier.New()
	seed := model.SeedData{ID: "42", Name: "Grand Budapest", City: "Zubrowka"}
	req := &model.CrawlRequest{
		URL:       scrape.DestinationURL(cfg.CrawlSettings, seed.Name, seed.City),
		UniqueKey: "seed:42",
		Label:     model.LabelStart,
		UserData:  seed,
	}
	require.True(t, f.Enqueue(req, false))

	emitted := runWorker(t, cfg, pool, f, nil)

	assert.Empty(t, pool.retired, "content mismatch is not an identity fault")
	require.Len(t, emitted, 1)
	sentinel := emitted[0]
	assert.Nil(t, sentinel.Name)
	assert.Nil(t, sentinel.Price)
	assert.Equal(t, "42", sentinel.InputID)
	assert.Equal(t, "Grand Budapest", sentinel.InputName)
}

func TestWorkerLuckyModeCrawlsDetailPage(t *testing.T) {
	t.Parallel()
	cfg := workerConfig(nil)

	pool := &fakePool{queue: []browser.Identity{
		listServing("healthy", "USD", workerListHTML, "Grand Budapest"),
	}}

	f := frontier.New()
	seed := model.SeedData{ID: "42", Name: "Grand Budapest", City: "Zubrowka"}
	req := &model.CrawlRequest{
		URL:       scrape.DestinationURL(cfg.CrawlSettings, seed.Name, seed.City),
		UniqueKey: "seed:42",
		Label:     model.LabelStart,
		UserData:  seed,
	}
	require.True(t, f.Enqueue(req, false))

	emitted := runWorker(t, cfg, pool, f, nil)

	require.Len(t, emitted, 1)
	listing := emitted[0]
	require.NotNil(t, listing.Name)
	assert.Equal(t, "Grand Budapest", *listing.Name)
	require.NotNil(t, listing.Rating)
	assert.Equal(t, 8.7, *listing.Rating)
	assert.Equal(t, "42", listing.InputID)
	assert.Equal(t, "Zubrowka", listing.InputCity)
}

func TestWorkerSimpleSearchEmitsAllListings(t *testing.T) {
	t.Parallel()
	cfg := workerConfig(func(crawl *config.CrawlConfig) {
		crawl.Simple = true
		crawl.MaxPages = 0
	})

	pool := &fakePool{queue: []browser.Identity{
		listServing("healthy", "USD", workerListHTML, "Amsterdam"),
	}}

	f := frontier.New()
	startUrl := scrape.BuildStartURL(cfg.CrawlSettings)
	require.True(t, f.Enqueue(model.NewRequest(startUrl, model.LabelStart), false))

	emitted := runWorker(t, cfg, pool, f, nil)

	require.Len(t, emitted, 1)
	require.NotNil(t, emitted[0].Price)
	assert.Equal(t, 142.0, *emitted[0].Price)
}

func TestWorkerRetriesTransientEnrichmentFailure(t *testing.T) {
	t.Parallel()
	cfg := workerConfig(nil)

	pool := &fakePool{queue: []browser.Identity{
		listServing("healthy", "USD", workerListHTML, "Grand Budapest"),
	}}

	f := frontier.New()
	seed := model.SeedData{ID: "42", Name: "Grand Budapest", City: "Zubrowka"}
	req := &model.CrawlRequest{
		URL:       scrape.DestinationURL(cfg.CrawlSettings, seed.Name, seed.City),
		UniqueKey: "seed:42",
		Label:     model.LabelStart,
		UserData:  seed,
	}
	require.True(t, f.Enqueue(req, false))

	// the first evaluation times out, the retried detail page succeeds
	calls := 0
	enrich := func(context.Context, gate.Evaluator) (map[string]any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("evaluation timed out")
		}
		return map[string]any{"roomList": []string{"Double Room"}}, nil
	}

	emitted := runWorker(t, cfg, pool, f, enrich)

	assert.Equal(t, 2, calls)
	assert.Empty(t, pool.retired, "a flaky evaluation is not an identity fault")
	require.Len(t, emitted, 1)
	listing := emitted[0]
	require.NotNil(t, listing.Name, "the retried page extracts, not the sentinel")
	assert.Equal(t, "Grand Budapest", *listing.Name)
	assert.Equal(t, []string{"Double Room"}, listing.Extra["roomList"])
}

const workerTwoListingHTML = `<html><body>
<div class="sr_property_block sr_item">
  <a class="hotel_name_link" href="/hotel/nl/grand-budapest.html"><span class="sr-hotel__name">Grand Budapest</span></a>
</div>
<div class="sr_property_block sr_item">
  <a class="hotel_name_link" href="/hotel/nl/other.html"><span class="sr-hotel__name">Other Hotel</span></a>
</div>
</body></html>`

func TestWorkerEnqueuesOneDetailPerListPage(t *testing.T) {
	t.Parallel()
	cfg := workerConfig(nil)

	f := frontier.New()
	f.AddProducer()
	w := &CrawlWorker{
		Frontier: f,
		Gate:     &gate.Gate{Cfg: cfg.CrawlSettings},
		Expander: &expand.Expander{Frontier: f, Cfg: cfg.CrawlSettings},
		Ledger:   ledger.New(nil, nil, nil),
		Cfg:      cfg,
		Metrics:  noopCrawlMetrics(),
	}

	req := model.NewRequest(scrape.BuildStartURL(cfg.CrawlSettings), model.LabelStart)
	page := &fakePage{url: req.URL, html: workerTwoListingHTML}
	signals := model.PageSignals{AutocompletionApplied: true}

	require.NoError(t, w.handleList(context.Background(), page, req, signals))

	// only the top result goes to its detail page; offset pages cover the rest
	assert.Equal(t, 1, f.Len())
	detail, err := f.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.LabelDetail, detail.Label)
	assert.Contains(t, detail.URL, "grand-budapest")
}

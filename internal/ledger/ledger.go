package ledger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/IliaW/hotel-crawler/internal/cache"
	"github.com/IliaW/hotel-crawler/internal/model"
	"github.com/IliaW/hotel-crawler/internal/persistence"
)

// DedupLedger is the single writer of the crawl state. Within one run an
// item name is accepted at most once; across runs the persisted state (and
// the optional shared cache) prevents re-emission of items already flushed.
// State is persisted opportunistically, so after a crash an item emitted but
// not yet flushed may be re-delivered; that is the accepted trade-off.
type DedupLedger struct {
	mu    sync.Mutex
	state *model.CrawlState
	cache cache.SeenCache          // optional
	store persistence.StateStorage // optional
}

func New(state *model.CrawlState, seenCache cache.SeenCache, store persistence.StateStorage) *DedupLedger {
	if state == nil {
		state = model.NewCrawlState()
	}
	if state.Crawled == nil {
		state.Crawled = make(map[string]bool)
	}
	return &DedupLedger{state: state, cache: seenCache, store: store}
}

// Accept reports whether the item has not been seen before, marking it seen
// when it has not. Only the first call per name returns true.
func (l *DedupLedger) Accept(name string) bool {
	if name == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.Crawled[name] {
		return false
	}
	if l.cache != nil && l.cache.Seen(name) {
		// another crawler already emitted it; remember locally to skip
		// the cache round-trip next time
		l.state.Crawled[name] = true
		return false
	}

	l.state.Crawled[name] = true
	if l.cache != nil {
		l.cache.MarkSeen(name)
	}
	return true
}

// Size returns the number of distinct seen entries.
func (l *DedupLedger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.state.Crawled)
}

// Flush writes the state snapshot to the durable store. Called when a
// migration/interruption signal arrives and at end of run.
func (l *DedupLedger) Flush(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	l.mu.Lock()
	snapshot := &model.CrawlState{Crawled: make(map[string]bool, len(l.state.Crawled))}
	for k, v := range l.state.Crawled {
		snapshot.Crawled[k] = v
	}
	l.mu.Unlock()

	if err := l.store.Save(ctx, snapshot); err != nil {
		return err
	}
	slog.Info("flushed crawl state.", slog.Int("crawled", len(snapshot.Crawled)))
	return nil
}

package gate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/IliaW/hotel-crawler/internal/model"
)

// Evaluator is the only capability an enrichment callback receives: running
// a read-only function against the live page.
type Evaluator interface {
	Evaluate(ctx context.Context, js string, out any) error
}

// EnrichFunc is a registered enrichment callback. It must return a keyed
// record to merge into the extracted listing.
type EnrichFunc func(ctx context.Context, page Evaluator) (map[string]any, error)

// ErrNoRecord reports a callback that violated its contract by returning
// something other than a keyed record.
var ErrNoRecord = errors.New("enrichment callback returned no keyed record")

var (
	registryMu sync.RWMutex
	registry   = make(map[string]EnrichFunc)
)

// Register adds a named enrichment callback. Called from init functions.
func Register(name string, fn EnrichFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

// Lookup resolves a configured enrichment name. An unknown name is a
// configuration fault and aborts the run at startup.
func Lookup(name string) (EnrichFunc, error) {
	if name == "" {
		return nil, nil
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	if fn, ok := registry[name]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("unknown enrichment callback %q (registered: %v)", name, registeredNames())
}

func registeredNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply runs the callback and merges its record into the listing. An error
// from the callback itself (a failed page evaluation, typically) is returned
// as-is so the caller can retry the page. A nil record is ErrNoRecord: the
// callback contract requires a keyed record, and no retry can fix that.
func Apply(ctx context.Context, fn EnrichFunc, page Evaluator, listing *model.ExtractedListing) error {
	result, err := fn(ctx, page)
	if err != nil {
		return fmt.Errorf("enrichment callback failed: %w", err)
	}
	if result == nil {
		return ErrNoRecord
	}
	listing.Extra = result
	return nil
}

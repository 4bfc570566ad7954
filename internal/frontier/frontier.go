package frontier

import (
	"context"
	"errors"
	"sync"

	"github.com/IliaW/hotel-crawler/internal/model"
)

var (
	ErrClosed    = errors.New("frontier is closed")
	ErrExhausted = errors.New("frontier is exhausted")
)

type status int

const (
	statusPending status = iota
	statusInFlight
	statusDone
)

// Frontier is the pending-work queue of crawl requests. A uniqueKey is
// accepted once for its lifetime: while one live request holds a key, no
// second request with the same key can enter, and a key marked done never
// re-enters. Re-enqueueing an in-flight request (identity retirement,
// bounded retry) keeps its key.
type Frontier struct {
	mu   sync.Mutex
	cond *sync.Cond

	pending   []*model.CrawlRequest
	state     map[string]status
	inFlight  int
	producers int
	closed    bool
}

func New() *Frontier {
	f := &Frontier{state: make(map[string]status)}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// AddProducer registers an external seed source that may still enqueue.
// The frontier does not report exhaustion while producers are registered.
func (f *Frontier) AddProducer() {
	f.mu.Lock()
	f.producers++
	f.mu.Unlock()
}

func (f *Frontier) RemoveProducer() {
	f.mu.Lock()
	f.producers--
	f.cond.Broadcast()
	f.mu.Unlock()
}

// Enqueue adds a request unless its uniqueKey is already known. front
// inserts at the head; it is used for detail pages so they drain before
// further list pages.
func (f *Frontier) Enqueue(req *model.CrawlRequest, front bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	if _, known := f.state[req.UniqueKey]; known {
		return false
	}
	f.state[req.UniqueKey] = statusPending
	if front {
		f.pending = append([]*model.CrawlRequest{req}, f.pending...)
	} else {
		f.pending = append(f.pending, req)
	}
	f.cond.Signal()
	return true
}

// Dequeue blocks until a request is available, the frontier closes, the
// context is cancelled, or the crawl is exhausted (nothing pending, nothing
// in flight, no live producers).
func (f *Frontier) Dequeue(ctx context.Context) (*model.CrawlRequest, error) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.closed {
			return nil, ErrClosed
		}
		if len(f.pending) > 0 {
			req := f.pending[0]
			f.pending = f.pending[1:]
			f.state[req.UniqueKey] = statusInFlight
			f.inFlight++
			return req, nil
		}
		if f.inFlight == 0 && f.producers == 0 {
			return nil, ErrExhausted
		}
		f.cond.Wait()
	}
}

// Done marks an in-flight request terminally handled. Its key never
// re-enters the frontier.
func (f *Frontier) Done(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state[key] == statusInFlight {
		f.state[key] = statusDone
		f.inFlight--
		f.cond.Broadcast()
	}
}

// Reenqueue returns an in-flight request to the queue under its original
// uniqueKey so a later attempt (typically with a fresh identity) retries it.
func (f *Frontier) Reenqueue(req *model.CrawlRequest, front bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	if f.state[req.UniqueKey] != statusInFlight {
		return false
	}
	f.state[req.UniqueKey] = statusPending
	f.inFlight--
	if front {
		f.pending = append([]*model.CrawlRequest{req}, f.pending...)
	} else {
		f.pending = append(f.pending, req)
	}
	f.cond.Broadcast()
	return true
}

// Close wakes all blocked consumers. Pending requests are dropped.
func (f *Frontier) Close() {
	f.mu.Lock()
	f.closed = true
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

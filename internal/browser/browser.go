package browser

import "context"

// Page is the narrow surface the state machine uses from the automation
// engine: resolve the URL, read element values, count elements, evaluate a
// function against the live DOM and wait for a selector. Nothing here
// mutates the page.
type Page interface {
	URL(ctx context.Context) (string, error)
	Value(ctx context.Context, selector string) (value string, found bool, err error)
	Attribute(ctx context.Context, selector, attr string) (value string, found bool, err error)
	Count(ctx context.Context, selector string) (int, error)
	Evaluate(ctx context.Context, js string, out any) error
	WaitVisible(ctx context.Context, selector string) error
	HTML(ctx context.Context) (string, error)
	Close()
}

// Identity is one browser instance bound to one proxy. A worker holds
// exactly one identity at a time.
type Identity interface {
	ID() string
	Proxy() string
	Open(ctx context.Context, url string) (Page, error)
	Close()
}

// Pool hands out identities and replaces retired ones. Retire discards the
// identity's browser and demotes its proxy before a replacement is served.
type Pool interface {
	Acquire(ctx context.Context) (Identity, error)
	Retire(identity Identity)
	Close()
}

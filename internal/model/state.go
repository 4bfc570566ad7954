package model

// CrawlState is the durable crawl-progress record. It is loaded once at
// start, mutated through the dedup ledger, and flushed to the key-value
// store on interruption signals and at end of run.
type CrawlState struct {
	Crawled map[string]bool `json:"crawled"`
}

func NewCrawlState() *CrawlState {
	return &CrawlState{Crawled: make(map[string]bool)}
}

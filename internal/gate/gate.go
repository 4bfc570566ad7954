package gate

import (
	"errors"
	"strings"

	"github.com/IliaW/hotel-crawler/config"
	"github.com/IliaW/hotel-crawler/internal/model"
	"github.com/IliaW/hotel-crawler/internal/scrape"
)

// ErrContentMismatch marks a lucky-mode page whose first result does not
// contain the seed's target name. It is retryable: the page may have been a
// stale or mispersonalized variant.
var ErrContentMismatch = errors.New("first result name does not match the target")

// Gate decides whether extracted content may leave the crawler.
type Gate struct {
	Cfg *config.CrawlConfig
}

// CheckLucky validates a simple-mode list page: the first listing's name
// must contain the seed's target name, case-insensitively. Seeds without a
// target name (plain search crawls) trust the page as-is.
func (g *Gate) CheckLucky(listings []*model.ExtractedListing, targetName string) error {
	target := strings.ToLower(strings.TrimSpace(targetName))
	if target == "" {
		return nil
	}
	if len(listings) == 0 {
		return ErrContentMismatch
	}
	first := listings[0]
	if first.Name == nil || !strings.Contains(strings.ToLower(*first.Name), target) {
		return ErrContentMismatch
	}
	return nil
}

// PassesScore reports whether a detail page's structured data clears the
// configured minimum rating. Pages with no rating pass; the threshold only
// filters known-bad scores.
func (g *Gate) PassesScore(ld *scrape.StructuredData) bool {
	if ld == nil {
		return false
	}
	if ld.AggregateRating != nil && ld.AggregateRating.RatingValue <= g.Cfg.MinScore {
		return false
	}
	return true
}

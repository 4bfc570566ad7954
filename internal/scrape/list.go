package scrape

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IliaW/hotel-crawler/config"
	"github.com/IliaW/hotel-crawler/internal/model"
)

var digitsRe = regexp.MustCompile(`\d+`)

// Link is a scraped anchor: target plus its visible label.
type Link struct {
	Href  string
	Label string
}

// ListPage is everything the state machine needs from a parsed list page:
// the visible listings, the first detail link, the pagination banner offset
// and the filter controls available for frontier expansion.
type ListPage struct {
	Listings         []*model.ExtractedListing
	FirstListingLink *Link
	PaginationFirst  int
	FilterLinks      []Link
	PropertyTypeLink *Link
	PriceLink        *Link
}

// ParseListPage extracts the list-page structure from rendered HTML.
func ParseListPage(html string, cfg *config.CrawlConfig) (*ListPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	lp := &ListPage{PaginationFirst: 1}

	doc.Find(SelListing).Each(func(_ int, s *goquery.Selection) {
		lp.Listings = append(lp.Listings, parseListing(s, cfg))
	})

	if link := doc.Find(SelListing).First().Find(SelListingLink).First(); link.Length() > 0 {
		href, _ := link.Attr("href")
		lp.FirstListingLink = &Link{
			Href:  strings.TrimSpace(href),
			Label: strings.ReplaceAll(strings.TrimSpace(link.Text()), "\n", ""),
		}
	}

	if banner := doc.Find(SelPaginationInfo).First(); banner.Length() > 0 {
		if nums := digitsRe.FindAllString(banner.Text(), -1); len(nums) > 0 {
			if first, err := strconv.Atoi(nums[0]); err == nil {
				lp.PaginationFirst = first
			}
		}
	}

	doc.Find(SelFilterElement).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		lp.FilterLinks = append(lp.FilterLinks, Link{
			Href:  strings.TrimSpace(href),
			Label: strings.TrimSpace(s.Text()),
		})
	})

	lp.PropertyTypeLink = matchFilterLink(doc, SelPropertyTypeBox, func(label string) bool {
		return strings.Contains(strings.ToLower(label), strings.ToLower(cfg.PropertyType))
	})
	lp.PriceLink = priceFilterLink(doc, cfg.MinMaxPrice)

	return lp, nil
}

func parseListing(s *goquery.Selection, cfg *config.CrawlConfig) *model.ExtractedListing {
	listing := &model.ExtractedListing{}

	if name := strings.TrimSpace(s.Find(SelListingName).Text()); name != "" {
		listing.Name = model.Ptr(name)
	}
	if href, ok := s.Find(SelListingLink).Attr("href"); ok {
		listing.URL = model.Ptr(strings.TrimSpace(href))
	}
	if raw := strings.TrimSpace(s.Find(SelListingPrice).Text()); raw != "" {
		if price, ok := parsePrice(raw); ok {
			listing.Price = model.Ptr(price)
			listing.Currency = model.Ptr(cfg.Currency)
		}
	}
	if raw := strings.TrimSpace(s.Find(SelListingRating).Text()); raw != "" {
		if rating, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64); err == nil {
			listing.Rating = model.Ptr(rating)
		}
	}
	if raw := s.Find(SelListingReviews).Text(); raw != "" {
		if nums := digitsRe.FindAllString(strings.ReplaceAll(raw, ",", ""), -1); len(nums) > 0 {
			if reviews, err := strconv.Atoi(strings.Join(nums, "")); err == nil {
				listing.Reviews = model.Ptr(reviews)
			}
		}
	}
	if addr := strings.TrimSpace(s.Find(SelListingAddress).Text()); addr != "" {
		listing.Address = model.Ptr(addr)
	}
	if img, ok := s.Find(SelListingImage).Attr("src"); ok {
		listing.Image = model.Ptr(img)
	}
	if stars := s.Find(SelStarRatingItem).Length(); stars > 0 {
		listing.Stars = model.Ptr(stars)
	}

	return listing
}

func parsePrice(raw string) (float64, bool) {
	cleaned := strings.ReplaceAll(raw, ",", "")
	match := regexp.MustCompile(`\d+(\.\d+)?`).FindString(cleaned)
	if match == "" {
		return 0, false
	}
	price, err := strconv.ParseFloat(match, 64)
	return price, err == nil
}

func matchFilterLink(doc *goquery.Document, boxSelector string, match func(string) bool) *Link {
	var found *Link
	doc.Find(boxSelector + " " + SelFilterElement).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := strings.TrimSpace(s.Text())
		if !match(label) {
			return true
		}
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		found = &Link{Href: strings.TrimSpace(href), Label: label}
		return false
	})
	return found
}

// priceFilterLink picks the price-band control whose bounds fall inside the
// configured "min-max" range.
func priceFilterLink(doc *goquery.Document, minMax string) *Link {
	bounds := digitsRe.FindAllString(minMax, -1)
	if len(bounds) == 0 {
		return nil
	}
	low, _ := strconv.Atoi(bounds[0])
	high := low
	if len(bounds) > 1 {
		high, _ = strconv.Atoi(bounds[1])
	}
	return matchFilterLink(doc, SelPriceFilterBox, func(label string) bool {
		nums := digitsRe.FindAllString(label, -1)
		if len(nums) == 0 {
			return false
		}
		n, _ := strconv.Atoi(nums[0])
		return n >= low && n <= high
	})
}

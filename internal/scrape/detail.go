package scrape

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IliaW/hotel-crawler/config"
	"github.com/IliaW/hotel-crawler/internal/model"
)

// ErrNoStructuredData marks a detail page without an embedded ld+json
// block. The orchestrator skips such pages silently.
var ErrNoStructuredData = errors.New("no structured data block on page")

// StructuredData is the site's embedded ld+json record for one hotel.
type StructuredData struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	Image           string `json:"image"`
	AggregateRating *struct {
		RatingValue float64 `json:"ratingValue"`
		ReviewCount int     `json:"reviewCount"`
	} `json:"aggregateRating"`
	Address *struct {
		StreetAddress   string `json:"streetAddress"`
		AddressLocality string `json:"addressLocality"`
		AddressRegion   string `json:"addressRegion"`
		AddressCountry  string `json:"addressCountry"`
		PostalCode      string `json:"postalCode"`
	} `json:"address"`
}

// ParseStructuredData reads the first ld+json script block from the page.
func ParseStructuredData(html string) (*StructuredData, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	block := doc.Find(SelStructuredData).First()
	if block.Length() == 0 {
		return nil, ErrNoStructuredData
	}
	var ld StructuredData
	if err := json.Unmarshal([]byte(block.Text()), &ld); err != nil {
		return nil, ErrNoStructuredData
	}
	return &ld, nil
}

// ExtractDetail builds the output record for a hotel detail page from its
// structured data plus the room table.
func ExtractDetail(html string, ld *StructuredData, cfg *config.CrawlConfig, seed model.SeedData) (*model.ExtractedListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	listing := &model.ExtractedListing{}
	if ld.Name != "" {
		listing.Name = model.Ptr(ld.Name)
	}
	if ld.URL != "" {
		listing.URL = model.Ptr(AddURLParams(ld.URL, cfg))
	}
	if ld.Image != "" {
		listing.Image = model.Ptr(ld.Image)
	}
	if ld.AggregateRating != nil {
		listing.Rating = model.Ptr(ld.AggregateRating.RatingValue)
		listing.Reviews = model.Ptr(ld.AggregateRating.ReviewCount)
	}
	if ld.Address != nil {
		parts := make([]string, 0, 4)
		for _, p := range []string{ld.Address.StreetAddress, ld.Address.AddressLocality,
			ld.Address.AddressRegion, ld.Address.AddressCountry} {
			if strings.TrimSpace(p) != "" {
				parts = append(parts, strings.TrimSpace(p))
			}
		}
		if len(parts) > 0 {
			listing.Address = model.Ptr(strings.Join(parts, ", "))
		}
	}

	if stars := doc.Find(SelStarRatingItem).Length(); stars > 0 {
		listing.Stars = model.Ptr(stars)
	}
	if raw := strings.TrimSpace(doc.Find(SelRoomPrice).First().Text()); raw != "" {
		if price, ok := parsePrice(raw); ok {
			listing.Price = model.Ptr(price)
			listing.Currency = model.Ptr(cfg.Currency)
		}
	}
	if roomType := strings.TrimSpace(doc.Find(SelRoomType).First().Text()); roomType != "" {
		listing.RoomType = model.Ptr(roomType)
	}
	if occupancy := doc.Find(SelOccupancyInfo).First(); occupancy.Length() > 0 {
		if nums := digitsRe.FindAllString(occupancy.Text(), -1); len(nums) > 0 {
			if persons, err := strconv.Atoi(nums[0]); err == nil {
				listing.Persons = model.Ptr(persons)
			}
		} else {
			// occupancy shown as icons only, count them
			if icons := occupancy.Find("i").Length(); icons > 0 {
				listing.Persons = model.Ptr(icons)
			}
		}
	}
	if latlng, ok := doc.Find(SelHotelHeader).Attr("data-atlas-latlng"); ok {
		listing.Location = model.Ptr(latlng)
	}

	return listing.EchoSeed(seed), nil
}

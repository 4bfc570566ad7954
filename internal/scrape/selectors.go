package scrape

// Selectors for the hotel-search site. Shared between the in-page signal
// probe and the goquery extraction so layout drift is fixed in one place.
const (
	SelCurrencyInput   = `input[name="selected_currency"]`
	SelSearchInput     = `input[name="ss"]`
	SelListing         = `.sr_property_block.sr_item:not(.soldout_property)`
	SelListingLink     = `.hotel_name_link`
	SelListingName     = `.sr-hotel__name`
	SelListingPrice    = `.bui-price-display__value`
	SelListingRating   = `.bui-review-score__badge`
	SelListingReviews  = `.bui-review-score__text`
	SelListingAddress  = `.sr_card_address_line`
	SelListingImage    = `.hotel_image`
	SelPaginationInfo  = `.bui-pagination__info`
	SelFilterElement   = `.filterelement`
	SelActiveFilter    = `.filterelement.active`
	SelPropertyTypeBox = `#filter_ht_id`
	SelPriceFilterBox  = `#filter_price`
	SelStructuredData  = `script[type="application/ld+json"]`
	SelOccupancyInfo   = `.hprt-occupancy-occupancy-info`
	SelRoomType        = `.hprt-roomtype-icon-link`
	SelRoomPrice       = `.hprt-price-price`
	SelStarRatingItem  = `.bui-rating--hotel .bui-rating__item`
	SelHotelHeader     = `#hotel_header`
)

package model

// Label routes a request through the page-state machine.
type Label string

const (
	LabelStart               Label = "start"
	LabelPage                Label = "page"
	LabelDetail              Label = "detail"
	LabelFilterSetting       Label = "filter-setting"
	LabelPriceSetting        Label = "price-setting"
	LabelPropertySetting     Label = "property-setting"
	LabelAutocompleteSetting Label = "autocomplete-setting"
)

// SeedData is the metadata carried from a seed row through every request it
// spawns. It is echoed back on the output records as _input* fields.
type SeedData struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type,omitempty"`
	Name    string `json:"name,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
	Order   int    `json:"order,omitempty"`
}

type CrawlRequest struct {
	URL       string   `json:"url"`
	UniqueKey string   `json:"unique_key"`
	Label     Label    `json:"label"`
	UserData  SeedData `json:"user_data"`

	// Retries counts business-logic failures; Retirements counts identity
	// replacements. They are budgeted separately.
	Retries     int `json:"-"`
	Retirements int `json:"-"`
}

// NewRequest builds a request whose uniqueKey defaults to the URL itself.
func NewRequest(url string, label Label) *CrawlRequest {
	return &CrawlRequest{URL: url, UniqueKey: url, Label: label}
}

// IsListPage reports whether the request resolves to a search-results page.
// Every label except detail lands on a list page after navigation.
func (r *CrawlRequest) IsListPage() bool {
	return r.Label != LabelDetail
}

package model

import "encoding/json"

// ExtractedListing is one output record. The extraction fields are pointers
// so that a permanently failed request can still emit a record with explicit
// nulls while preserving the seed metadata.
type ExtractedListing struct {
	URL      *string  `json:"url"`
	Name     *string  `json:"name"`
	Rating   *float64 `json:"rating"`
	Reviews  *int     `json:"reviews"`
	Stars    *int     `json:"stars"`
	Price    *float64 `json:"price"`
	Currency *string  `json:"currency"`
	RoomType *string  `json:"roomType"`
	Persons  *int     `json:"persons"`
	Address  *string  `json:"address"`
	Location *string  `json:"location"`
	Image    *string  `json:"image"`

	InputID      string `json:"_inputId,omitempty"`
	InputType    string `json:"_inputType,omitempty"`
	InputName    string `json:"_inputName,omitempty"`
	InputCity    string `json:"_inputCity,omitempty"`
	InputCountry string `json:"_inputCountry,omitempty"`

	// Extra holds keys merged from a configured enrichment callback.
	Extra map[string]any `json:"-"`
}

// MarshalJSON flattens the enrichment keys into the record. Enrichment keys
// never override the extraction fields.
func (l *ExtractedListing) MarshalJSON() ([]byte, error) {
	type alias ExtractedListing
	base, err := json.Marshal((*alias)(l))
	if err != nil {
		return nil, err
	}
	if len(l.Extra) == 0 {
		return base, nil
	}
	merged := make(map[string]any, len(l.Extra)+16)
	if err = json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range l.Extra {
		if _, taken := merged[k]; !taken {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// EchoSeed copies the seed metadata onto the record.
func (l *ExtractedListing) EchoSeed(seed SeedData) *ExtractedListing {
	l.InputID = seed.ID
	l.InputType = seed.Type
	l.InputName = seed.Name
	l.InputCity = seed.City
	l.InputCountry = seed.Country
	return l
}

// SentinelListing is the all-null record emitted for a request that failed
// too many times, so downstream consumers see full coverage of the seed set.
func SentinelListing(seed SeedData) *ExtractedListing {
	return new(ExtractedListing).EchoSeed(seed)
}

// Ptr is a small helper for building listing fields.
func Ptr[T any](v T) *T { return &v }

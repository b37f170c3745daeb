package worldbank

import "encoding/json"

// The API returns a two-element array: page metadata, then observations.
type pageMeta struct {
	Page    json.Number `json:"page"`
	Pages   json.Number `json:"pages"`
	PerPage json.Number `json:"per_page"`
	Total   json.Number `json:"total"`
	Message []struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"message"`
}

type observation struct {
	Date      string   `json:"date"`
	Value     *float64 `json:"value"`
	Indicator struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"indicator"`
}

package models

import "fmt"

// Item is the canonical representation of a Booth listing, produced by both
// the JSON and the HTML extraction paths.
type Item struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Price        int64    `json:"price"`
	CategoryName string   `json:"category_name,omitempty"`
	ShopName     string   `json:"shop_name,omitempty"`
	URL          string   `json:"url"`
	Images       []string `json:"images"`
	Tags         []string `json:"tags"`
}

// ItemURL returns the canonical detail page URL for an item id.
func ItemURL(id int64) string {
	return fmt.Sprintf("https://booth.pm/ja/items/%d", id)
}

// Thumbnail returns the first image URL, or empty when no image was extracted.
func (i *Item) Thumbnail() string {
	if len(i.Images) == 0 {
		return ""
	}
	return i.Images[0]
}

// SearchParams are the user-supplied inputs for a search or browse request.
// Keyword may be empty when Category is set (pure category browsing).
type SearchParams struct {
	Keyword  string `json:"keyword"`
	Page     int    `json:"page"`
	Category string `json:"category,omitempty"`
	Sort     string `json:"sort,omitempty"`
	OnlyFree bool   `json:"only_free,omitempty"`
	PriceMin *int64 `json:"price_min,omitempty"`
	PriceMax *int64 `json:"price_max,omitempty"`
}

// SearchResult is one page of search results. TotalCount is scraped from
// auxiliary page text and may be unknown.
type SearchResult struct {
	Items       []Item `json:"items"`
	TotalCount  *int64 `json:"total_count,omitempty"`
	CurrentPage int    `json:"current_page"`
}

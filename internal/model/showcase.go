package model

import "time"

// DefaultCategory is applied when an item is listed without a category.
const DefaultCategory = "Hololive"

// ShowcaseItem is a pre-listed item offered for direct sale.  Listings are
// ordered by Priority descending, newest first among equal priorities.
type ShowcaseItem struct {
	ID        uint64    `json:"id"`
	Title     string    `json:"title"`
	Price     uint32    `json:"price"`
	ImageURL  string    `json:"image_url"`
	EbayURL   *string   `json:"ebay_url"`
	Category  string    `json:"category"`
	IsSold    bool      `json:"is_sold"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

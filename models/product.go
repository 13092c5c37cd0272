// Package models defines data structures for the crawler.
package models

import "time"

// Product is one normalized record extracted from a product detail document.
// Nullable fields stay nil when the source document does not carry them.
type Product struct {
	ItemID            string   `csv:"item_id" json:"item_id"`
	URL               *string  `csv:"url" json:"url"`
	ModelNumber       *string  `csv:"model_number" json:"model_number"`
	Brand             *string  `csv:"brand" json:"brand"`
	Price             *float64 `csv:"price" json:"price"`
	PriceHiddenInCart bool     `csv:"price_hidden_in_cart" json:"price_hidden_in_cart"`
	StoreNumber       string   `csv:"store_number" json:"store_number"`
	ZipCode           string   `csv:"zip_code" json:"zip_code"`
	// Date is stamped in UTC at extraction time, not at crawl start.
	Date time.Time `csv:"date" json:"date"`
}

// CrawlResult holds the overall outcome of a crawl run.
type CrawlResult struct {
	StartTime    time.Time
	EndTime      time.Time
	TotalCount   int
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	RetryCount   int
	RequestCount int
	PageCount    int
}

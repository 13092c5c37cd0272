package parser

import (
	"fmt"

	"github.com/retailscrape/lowes-crawler/models"
)

// ValidateProduct ensures the extractor produced a coherent record before it
// reaches a writer.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if p.ItemID == "" {
		return fmt.Errorf("product missing item id")
	}
	if !allDigits(p.StoreNumber, 4) {
		return fmt.Errorf("product %s has invalid store number %q", p.ItemID, p.StoreNumber)
	}
	if !allDigits(p.ZipCode, 5) {
		return fmt.Errorf("product %s has invalid zip code %q", p.ItemID, p.ZipCode)
	}
	if p.PriceHiddenInCart && p.Price != nil {
		return fmt.Errorf("product %s has a price while marked hidden-in-cart", p.ItemID)
	}
	if p.Date.IsZero() {
		return fmt.Errorf("product %s missing extraction timestamp", p.ItemID)
	}
	return nil
}

func allDigits(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Package parser turns preloaded-state documents and listing pages into
// detail-page targets, normalized product records, and pagination decisions.
package parser

import (
	"fmt"
	"log/slog"

	"github.com/retailscrape/lowes-crawler/state"
)

// detailURLTemplate must reproduce the site's detail API path exactly; the
// normalized form is reconstructible from (item id, store, zip) so the same
// item always maps to the same URL regardless of which listing surfaced it.
const detailURLTemplate = "https://www.lowes.com/wpd/%s/productdetail/%s/Guest/%s"

// ListingItem is one discovered product on a search-results page.
type ListingItem struct {
	ItemID    string
	DetailURL string
}

// DetailURL builds the canonical product-detail URL for an item.
func DetailURL(itemID, storeNumber, zipCode string) string {
	return fmt.Sprintf(detailURLTemplate, itemID, storeNumber, zipCode)
}

// Listing walks the state document's itemList in order and returns the
// discovered items. Entries without a usable item identifier are skipped with
// a diagnostic; one malformed entry never aborts the rest of the page.
func Listing(doc state.Document, storeNumber, zipCode string) []ListingItem {
	entries, ok := doc.List("itemList")
	if !ok {
		return nil
	}

	items := make([]ListingItem, 0, len(entries))
	for i, raw := range entries {
		entry, ok := state.AsDocument(raw)
		if !ok {
			slog.Warn("listing entry is not an object", slog.Int("index", i))
			continue
		}
		product, ok := entry.Object("product")
		if !ok {
			slog.Warn("listing entry has no product block", slog.Int("index", i))
			continue
		}
		itemID, ok := product.String("omniItemId")
		if !ok {
			slog.Warn("listing entry missing item id", slog.Int("index", i))
			continue
		}
		items = append(items, ListingItem{
			ItemID:    itemID,
			DetailURL: DetailURL(itemID, storeNumber, zipCode),
		})
	}
	return items
}

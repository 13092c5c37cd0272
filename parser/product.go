package parser

import (
	"fmt"
	"net/url"
	"time"

	"github.com/retailscrape/lowes-crawler/models"
	"github.com/retailscrape/lowes-crawler/state"
)

// mapPriceSentinel is the merchandising message the site uses when the price
// is withheld until the item is added to a cart.
const mapPriceSentinel = "View Lower Price In Cart"

// MissingProductDetailsError reports that a detail document has no
// productDetails entry for the requested item.
type MissingProductDetailsError struct {
	ItemID string
}

func (e MissingProductDetailsError) Error() string {
	return fmt.Sprintf("parser: no productDetails entry for item %s", e.ItemID)
}

// AmbiguousPricingError reports a price container that neither carries a
// retail price nor the in-cart sentinel. The record is dropped rather than
// guessed at.
type AmbiguousPricingError struct {
	ItemID string
}

func (e AmbiguousPricingError) Error() string {
	return fmt.Sprintf("parser: ambiguous pricing state for item %s", e.ItemID)
}

// Product extracts a normalized record for itemID from a parsed detail
// document. Optional fields (model, brand, URL, price) stay nil when absent;
// structural absence of the detail block or an ambiguous pricing state fails
// the whole item; no partial records are produced.
func Product(doc state.Document, itemID, baseURL, storeNumber, zipCode string) (*models.Product, error) {
	detailsByID, ok := doc.Object("productDetails")
	if !ok {
		return nil, MissingProductDetailsError{ItemID: itemID}
	}
	details, ok := detailsByID.Object(itemID)
	if !ok {
		return nil, MissingProductDetailsError{ItemID: itemID}
	}

	record := &models.Product{
		ItemID:      itemID,
		StoreNumber: storeNumber,
		ZipCode:     zipCode,
		Date:        time.Now().UTC(),
	}

	product, _ := details.Object("product")
	if model, ok := product.String("modelId"); ok {
		record.ModelNumber = &model
	}
	// brand stays nil for unbranded goods
	if brand, ok := product.String("brand"); ok {
		record.Brand = &brand
	}

	price, hidden, err := readPricing(details, itemID)
	if err != nil {
		return nil, err
	}
	record.Price = price
	record.PriceHiddenInCart = hidden

	if fragment, ok := product.String("pdURL"); ok {
		if joined, ok := joinURL(baseURL, fragment); ok {
			record.URL = &joined
		}
	}

	return record, nil
}

// readPricing resolves the (price, hiddenInCart) pair. An absent or
// wrong-shaped price container means "no price data", not an error; a present
// container must either name the in-cart sentinel or carry a numeric retail
// price.
func readPricing(details state.Document, itemID string) (*float64, bool, error) {
	mfe, ok := details.Object("mfePrice")
	if !ok {
		return nil, false, nil
	}
	price, ok := mfe.Object("price")
	if !ok {
		return nil, false, nil
	}

	if message, ok := price.String("mapPriceMessage"); ok && message == mapPriceSentinel {
		return nil, true, nil
	}

	additional, ok := price.Object("additionalData")
	if !ok {
		return nil, false, AmbiguousPricingError{ItemID: itemID}
	}
	retail, ok := additional.Number("retailPrice")
	if !ok {
		return nil, false, AmbiguousPricingError{ItemID: itemID}
	}
	return &retail, false, nil
}

func joinURL(baseURL, fragment string) (string, bool) {
	if fragment == "" {
		return "", false
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(fragment)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/retailscrape/lowes-crawler/state"
)

const detailBase = "https://www.lowes.com/wpd/1001/productdetail/2442/Guest/29730"

func detailDoc(itemID string, product, price map[string]any) state.Document {
	details := map[string]any{}
	if product != nil {
		details["product"] = product
	}
	if price != nil {
		details["mfePrice"] = map[string]any{"price": price}
	}
	return state.Document{
		"productDetails": map[string]any{
			itemID: details,
		},
	}
}

func TestProductFullRecord(t *testing.T) {
	doc := detailDoc("1001",
		map[string]any{
			"pdURL":   "/pd/dewalt-20v-drill/1001",
			"modelId": "DCD771C2",
			"brand":   "DeWalt",
		},
		map[string]any{
			"additionalData": map[string]any{"retailPrice": float64(199.99)},
		},
	)

	record, err := Product(doc, "1001", detailBase, "2442", "29730")
	if err != nil {
		t.Fatalf("Product() error = %v", err)
	}

	if record.ItemID != "1001" {
		t.Fatalf("ItemID = %q", record.ItemID)
	}
	if record.URL == nil || *record.URL != "https://www.lowes.com/pd/dewalt-20v-drill/1001" {
		t.Fatalf("URL = %v, want joined detail url", record.URL)
	}
	if record.ModelNumber == nil || *record.ModelNumber != "DCD771C2" {
		t.Fatalf("ModelNumber = %v", record.ModelNumber)
	}
	if record.Brand == nil || *record.Brand != "DeWalt" {
		t.Fatalf("Brand = %v", record.Brand)
	}
	if record.Price == nil || *record.Price != 199.99 {
		t.Fatalf("Price = %v", record.Price)
	}
	if record.PriceHiddenInCart {
		t.Fatalf("PriceHiddenInCart = true, want false")
	}
	if record.StoreNumber != "2442" || record.ZipCode != "29730" {
		t.Fatalf("store/zip = %q/%q", record.StoreNumber, record.ZipCode)
	}
	if record.Date.Location() != time.UTC {
		t.Fatalf("Date not in UTC")
	}
	if time.Since(record.Date) > time.Minute {
		t.Fatalf("Date not stamped at extraction time: %v", record.Date)
	}
}

func TestProductPriceHiddenInCart(t *testing.T) {
	doc := detailDoc("1001",
		map[string]any{"modelId": "DCD771C2"},
		map[string]any{"mapPriceMessage": "View Lower Price In Cart"},
	)

	record, err := Product(doc, "1001", detailBase, "2442", "29730")
	if err != nil {
		t.Fatalf("Product() error = %v", err)
	}
	if !record.PriceHiddenInCart {
		t.Fatalf("PriceHiddenInCart = false, want true")
	}
	if record.Price != nil {
		t.Fatalf("Price = %v, want nil when hidden in cart", *record.Price)
	}
}

func TestProductOtherMapMessageStillReadsPrice(t *testing.T) {
	doc := detailDoc("1001",
		nil,
		map[string]any{
			"mapPriceMessage": "Some other promotion",
			"additionalData":  map[string]any{"retailPrice": float64(49.5)},
		},
	)

	record, err := Product(doc, "1001", detailBase, "2442", "29730")
	if err != nil {
		t.Fatalf("Product() error = %v", err)
	}
	if record.PriceHiddenInCart {
		t.Fatalf("PriceHiddenInCart = true, want false")
	}
	if record.Price == nil || *record.Price != 49.5 {
		t.Fatalf("Price = %v, want 49.5", record.Price)
	}
}

func TestProductMissingDetails(t *testing.T) {
	tests := []struct {
		name string
		doc  state.Document
	}{
		{name: "no productDetails at all", doc: state.Document{"other": "x"}},
		{name: "different item only", doc: detailDoc("9999", map[string]any{"modelId": "M"}, nil)},
		{name: "productDetails wrong shape", doc: state.Document{"productDetails": "oops"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Product(tt.doc, "1001", detailBase, "2442", "29730")
			var missing MissingProductDetailsError
			if !errors.As(err, &missing) {
				t.Fatalf("Product() error = %v, want MissingProductDetailsError", err)
			}
			if missing.ItemID != "1001" {
				t.Fatalf("ItemID = %q", missing.ItemID)
			}
		})
	}
}

func TestProductNoPriceData(t *testing.T) {
	tests := []struct {
		name string
		doc  state.Document
	}{
		{
			name: "mfePrice absent",
			doc:  detailDoc("1001", map[string]any{"modelId": "M"}, nil),
		},
		{
			name: "price container wrong shape",
			doc: state.Document{
				"productDetails": map[string]any{
					"1001": map[string]any{
						"mfePrice": map[string]any{"price": "not an object"},
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := Product(tt.doc, "1001", detailBase, "2442", "29730")
			if err != nil {
				t.Fatalf("Product() error = %v, want no error for absent price data", err)
			}
			if record.Price != nil || record.PriceHiddenInCart {
				t.Fatalf("price = %v hidden = %v, want nil/false", record.Price, record.PriceHiddenInCart)
			}
		})
	}
}

func TestProductAmbiguousPricing(t *testing.T) {
	tests := []struct {
		name  string
		price map[string]any
	}{
		{
			name:  "container present but empty",
			price: map[string]any{},
		},
		{
			name:  "additionalData without retail price",
			price: map[string]any{"additionalData": map[string]any{"wasPrice": float64(10)}},
		},
		{
			name:  "non-sentinel message and no price",
			price: map[string]any{"mapPriceMessage": "Call for pricing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := detailDoc("1001", nil, tt.price)
			_, err := Product(doc, "1001", detailBase, "2442", "29730")
			var ambiguous AmbiguousPricingError
			if !errors.As(err, &ambiguous) {
				t.Fatalf("Product() error = %v, want AmbiguousPricingError", err)
			}
		})
	}
}

func TestProductOptionalIdentityFields(t *testing.T) {
	doc := detailDoc("1001",
		map[string]any{"modelId": "DCD771C2"},
		map[string]any{"additionalData": map[string]any{"retailPrice": float64(10)}},
	)

	record, err := Product(doc, "1001", detailBase, "2442", "29730")
	if err != nil {
		t.Fatalf("Product() error = %v", err)
	}
	if record.Brand != nil {
		t.Fatalf("Brand = %v, want nil for unbranded goods", *record.Brand)
	}
	if record.URL != nil {
		t.Fatalf("URL = %v, want nil when pdURL absent", *record.URL)
	}
	if record.ModelNumber == nil {
		t.Fatalf("ModelNumber should survive")
	}
}

package parser

import (
	"testing"

	"github.com/retailscrape/lowes-crawler/state"
)

func listingEntry(itemID string) map[string]any {
	return map[string]any{
		"product": map[string]any{
			"omniItemId": itemID,
		},
	}
}

func TestDetailURLTemplate(t *testing.T) {
	got := DetailURL("12345", "0416", "28278")
	want := "https://www.lowes.com/wpd/12345/productdetail/0416/Guest/28278"
	if got != want {
		t.Fatalf("DetailURL() = %q, want %q", got, want)
	}
}

func TestListingPreservesOrder(t *testing.T) {
	doc := state.Document{
		"itemList": []any{
			listingEntry("1003"),
			listingEntry("1001"),
			listingEntry("1002"),
		},
	}

	items := Listing(doc, "2442", "29730")
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}
	for i, want := range []string{"1003", "1001", "1002"} {
		if items[i].ItemID != want {
			t.Fatalf("items[%d].ItemID = %q, want %q", i, items[i].ItemID, want)
		}
		if items[i].DetailURL != DetailURL(want, "2442", "29730") {
			t.Fatalf("items[%d].DetailURL = %q", i, items[i].DetailURL)
		}
	}
}

func TestListingSkipsMalformedEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []any
		wantIDs []string
	}{
		{
			name: "missing item id",
			entries: []any{
				listingEntry("1001"),
				map[string]any{"product": map[string]any{}},
				listingEntry("1002"),
			},
			wantIDs: []string{"1001", "1002"},
		},
		{
			name: "non-string item id",
			entries: []any{
				map[string]any{"product": map[string]any{"omniItemId": float64(1001)}},
				listingEntry("1002"),
			},
			wantIDs: []string{"1002"},
		},
		{
			name: "empty item id",
			entries: []any{
				map[string]any{"product": map[string]any{"omniItemId": ""}},
				listingEntry("1002"),
			},
			wantIDs: []string{"1002"},
		},
		{
			name: "missing product block",
			entries: []any{
				map[string]any{"marketingBadge": "new"},
				listingEntry("1002"),
			},
			wantIDs: []string{"1002"},
		},
		{
			name: "entry is not an object",
			entries: []any{
				"garbage",
				listingEntry("1002"),
			},
			wantIDs: []string{"1002"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := state.Document{"itemList": tt.entries}
			items := Listing(doc, "2442", "29730")
			if len(items) != len(tt.wantIDs) {
				t.Fatalf("items = %d, want %d", len(items), len(tt.wantIDs))
			}
			for i, want := range tt.wantIDs {
				if items[i].ItemID != want {
					t.Fatalf("items[%d].ItemID = %q, want %q", i, items[i].ItemID, want)
				}
			}
		})
	}
}

func TestListingWithoutItemList(t *testing.T) {
	if items := Listing(state.Document{"other": "data"}, "2442", "29730"); len(items) != 0 {
		t.Fatalf("items = %d, want 0", len(items))
	}
	if items := Listing(nil, "2442", "29730"); len(items) != 0 {
		t.Fatalf("items from nil doc = %d, want 0", len(items))
	}
}

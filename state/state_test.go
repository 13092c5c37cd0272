package state

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func page(script string) string {
	return `<html><head><script>var other = 1;</script><script>` + script + `</script></head><body><p>hello</p></body></html>`
}

func TestExtractValidState(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "flat object",
			payload: `{"itemList":[],"searchModel":{"totalResults":100}}`,
		},
		{
			name:    "nested braces",
			payload: `{"productDetails":{"1001":{"product":{"brand":"DeWalt"}}},"itemList":[{"product":{"omniItemId":"1001"}}]}`,
		},
		{
			name:    "braces inside strings",
			payload: `{"description":"a {weird} value with } and {","count":2}`,
		},
		{
			name:    "escaped quotes inside strings",
			payload: `{"description":"he said \"hello {\" once","ok":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := page(`window['__PRELOADED_STATE__'] = ` + tt.payload + `;window.loaded = true;`)

			doc, err := Extract(html)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}

			var want map[string]any
			if err := json.Unmarshal([]byte(tt.payload), &want); err != nil {
				t.Fatalf("reference unmarshal: %v", err)
			}
			if !reflect.DeepEqual(map[string]any(doc), want) {
				t.Fatalf("Extract() = %#v, want %#v", doc, want)
			}
		})
	}
}

func TestExtractMarkerAbsent(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{name: "no scripts at all", html: `<html><body><p>empty result page</p></body></html>`},
		{name: "scripts without marker", html: page(`window.something = {"itemList":[]};`)},
		{name: "empty input", html: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Extract(tt.html); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Extract() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestExtractMalformedState(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{name: "invalid json", script: `window['__PRELOADED_STATE__'] = {"itemList":[,]};`},
		{name: "unbalanced braces", script: `window['__PRELOADED_STATE__'] = {"itemList":[{]`},
		{name: "no object after assignment", script: `window['__PRELOADED_STATE__'] = null;`},
		{name: "marker without assignment", script: `window['__PRELOADED_STATE__']`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(page(tt.script))
			var malformed MalformedStateError
			if !errors.As(err, &malformed) {
				t.Fatalf("Extract() error = %v, want MalformedStateError", err)
			}
			if errors.Is(err, ErrNotFound) {
				t.Fatalf("malformed state must be distinct from ErrNotFound")
			}
		})
	}
}

// Only the first script carrying the marker is considered, even when a later
// one would decode cleanly.
func TestExtractFirstMatchingScriptWins(t *testing.T) {
	html := `<html><head>` +
		`<script>window['__PRELOADED_STATE__'] = {"origin":"first"};</script>` +
		`<script>window['__PRELOADED_STATE__'] = {"origin":"second"};</script>` +
		`</head></html>`

	doc, err := Extract(html)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if origin, _ := doc.String("origin"); origin != "first" {
		t.Fatalf("origin = %q, want %q", origin, "first")
	}

	broken := `<html><head>` +
		`<script>window['__PRELOADED_STATE__'] = {"origin":;</script>` +
		`<script>window['__PRELOADED_STATE__'] = {"origin":"second"};</script>` +
		`</head></html>`

	_, err = Extract(broken)
	var malformed MalformedStateError
	if !errors.As(err, &malformed) {
		t.Fatalf("Extract() error = %v, want MalformedStateError from first script", err)
	}
}

func TestDocumentAccessors(t *testing.T) {
	doc := Document{
		"name":  "drill",
		"empty": "",
		"count": float64(24),
		"nested": map[string]any{
			"inner": "value",
		},
		"items":  []any{"a", "b"},
		"object": 42,
	}

	if v, ok := doc.String("name"); !ok || v != "drill" {
		t.Fatalf("String(name) = %q, %v", v, ok)
	}
	if _, ok := doc.String("empty"); ok {
		t.Fatalf("empty string should not be ok")
	}
	if _, ok := doc.String("missing"); ok {
		t.Fatalf("missing key should not be ok")
	}
	if v, ok := doc.Number("count"); !ok || v != 24 {
		t.Fatalf("Number(count) = %v, %v", v, ok)
	}
	if nested, ok := doc.Object("nested"); !ok {
		t.Fatalf("Object(nested) not ok")
	} else if v, _ := nested.String("inner"); v != "value" {
		t.Fatalf("nested inner = %q", v)
	}
	if _, ok := doc.Object("object"); ok {
		t.Fatalf("non-object value should not be ok")
	}
	if items, ok := doc.List("items"); !ok || len(items) != 2 {
		t.Fatalf("List(items) = %v, %v", items, ok)
	}

	var nilDoc Document
	if _, ok := nilDoc.String("anything"); ok {
		t.Fatalf("nil document access should not be ok")
	}
}

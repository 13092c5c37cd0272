package state

// Document is an untrusted, partially-populated JSON object. Every accessor
// tolerates absent keys and wrong shapes, returning ok=false instead of
// panicking; the extraction code never assumes a field is present.
type Document map[string]any

// Object returns the nested object under key.
func (d Document) Object(key string) (Document, bool) {
	if d == nil {
		return nil, false
	}
	value, ok := d[key].(map[string]any)
	if !ok {
		return nil, false
	}
	return Document(value), true
}

// List returns the array under key.
func (d Document) List(key string) ([]any, bool) {
	if d == nil {
		return nil, false
	}
	value, ok := d[key].([]any)
	return value, ok
}

// String returns the non-empty string under key.
func (d Document) String(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	value, ok := d[key].(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// Number returns the numeric value under key. JSON numbers decode as float64.
func (d Document) Number(key string) (float64, bool) {
	if d == nil {
		return 0, false
	}
	value, ok := d[key].(float64)
	return value, ok
}

// AsDocument converts a raw decoded value into a Document.
func AsDocument(value any) (Document, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	return Document(obj), true
}

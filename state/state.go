// Package state extracts the JSON blob that lowes.com embeds in each page to
// bootstrap its client-side rendering, and exposes it as a loosely-typed
// document with optional-safe accessors.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Marker is the global assignment that precedes the embedded state literal.
const Marker = "window['__PRELOADED_STATE__']"

// ErrNotFound reports that no script block carries the state marker. Many
// pages legitimately lack it (terminal or empty result pages), so callers
// treat it as a signal rather than a hard error.
var ErrNotFound = errors.New("state: preloaded state marker not found")

// MalformedStateError reports that the marker was present but the captured
// literal failed to decode as JSON.
type MalformedStateError struct {
	Err error
}

func (e MalformedStateError) Error() string {
	return fmt.Errorf("state: malformed preloaded state: %w", e.Err).Error()
}

func (e MalformedStateError) Unwrap() error {
	return e.Err
}

// Extract scans the inline script blocks of html for the state marker and
// decodes the assigned object literal. Only the first script block containing
// the marker is considered; later matches are ignored even when the first one
// fails to decode.
func Extract(html string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, MalformedStateError{Err: err}
	}

	script, ok := firstMarkedScript(doc)
	if !ok {
		return nil, ErrNotFound
	}

	literal, err := captureObjectLiteral(script)
	if err != nil {
		return nil, MalformedStateError{Err: err}
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(literal), &payload); err != nil {
		return nil, MalformedStateError{Err: err}
	}
	return Document(payload), nil
}

func firstMarkedScript(doc *goquery.Document) (string, bool) {
	var script string
	var found bool
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, Marker) {
			script = text
			found = true
			return false
		}
		return true
	})
	return script, found
}

// captureObjectLiteral isolates the object assigned to the marker. The literal
// may contain arbitrarily nested braces and brace characters inside strings,
// so it is walked with a depth counter instead of a regular expression.
func captureObjectLiteral(script string) (string, error) {
	idx := strings.Index(script, Marker)
	if idx < 0 {
		return "", fmt.Errorf("marker vanished between scan and capture")
	}
	rest := script[idx+len(Marker):]

	eq := strings.Index(rest, "=")
	if eq < 0 {
		return "", fmt.Errorf("no assignment after marker")
	}
	rest = rest[eq+1:]

	start := strings.Index(rest, "{")
	if start < 0 {
		return "", fmt.Errorf("no object literal after assignment")
	}
	rest = rest[start:]

	depth := 0
	inString := false
	escaped := false
	for i, r := range rest {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return rest[:i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced braces in state literal")
}

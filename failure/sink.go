// Package failure persists raw payloads that could not be parsed, keyed by
// item identifier or URL, for offline diagnosis. Artifacts are write-once and
// never read back by the crawler.
package failure

import (
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Category labels why a payload ended up in the sink.
type Category string

const (
	FailedRequest Category = "failed_request"
	FailedHTML    Category = "failed_html"
	FailedProduct Category = "failed_product"
)

// categoryDirs maps categories to their on-disk locations.
var categoryDirs = map[Category]string{
	FailedRequest: "failed_requests",
	FailedHTML:    "failed_html",
	FailedProduct: "failed_parses",
}

// maxKeyLen caps the sanitized key so URLs do not blow past filename limits.
const maxKeyLen = 100

// Sink writes categorized failure artifacts under a root directory. Category
// directories are created lazily on first use. Store never reports an error:
// losing a diagnostic artifact must not take down the crawl.
type Sink struct {
	root string

	mu      sync.Mutex
	created map[Category]struct{}
}

// NewSink builds a sink rooted at dir. Nothing is created until the first
// Store call.
func NewSink(dir string) *Sink {
	return &Sink{
		root:    dir,
		created: make(map[Category]struct{}),
	}
}

// Store persists payload under the category's directory, named by the
// sanitized key plus a nanosecond timestamp to avoid collisions.
func (s *Sink) Store(category Category, key string, payload []byte) {
	if s == nil {
		return
	}

	subdir, ok := categoryDirs[category]
	if !ok {
		slog.Error("failure sink: unknown category", slog.String("category", string(category)))
		return
	}

	dir := filepath.Join(s.root, subdir)
	if err := s.ensureDir(category, dir); err != nil {
		slog.Error("failure sink: create directory",
			slog.String("dir", dir),
			slog.Any("error", err),
		)
		return
	}

	name := sanitizeKey(key) + "_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		slog.Error("failure sink: write artifact",
			slog.String("path", path),
			slog.Any("error", err),
		)
	}
}

func (s *Sink) ensureDir(category Category, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.created[category]; ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	s.created[category] = struct{}{}
	return nil
}

// sanitizeKey percent-encodes the key and caps its length; keys are item
// identifiers or full URLs.
func sanitizeKey(key string) string {
	if key == "" {
		return "unknown"
	}
	escaped := url.QueryEscape(key)
	if len(escaped) > maxKeyLen {
		escaped = escaped[:maxKeyLen]
	}
	return escaped
}

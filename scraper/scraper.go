// Package scraper drives the crawl: it owns the colly collector, request
// scheduling, retries, and the dispatch of fetched pages into the listing,
// pagination, and product extraction logic.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/retailscrape/lowes-crawler/config"
	"github.com/retailscrape/lowes-crawler/failure"
	"github.com/retailscrape/lowes-crawler/models"
	"github.com/retailscrape/lowes-crawler/parser"
	"github.com/retailscrape/lowes-crawler/pipeline"
	"github.com/retailscrape/lowes-crawler/state"
)

// detailHost serves the product detail API regardless of which host the seed
// listings live on.
const detailHost = "www.lowes.com"

// Cookie names the site expects on every request: a per-run session token and
// the store number. Without them requests get blocked or served for the wrong
// location.
const (
	sessionCookie = "slid"
	storeCookie   = "sn"
)

// itemIDKey carries the target item identifier on detail requests.
const itemIDKey = "item_id"

// Crawler wraps the colly collector and the extraction callbacks.
type Crawler struct {
	cfg          *config.Config
	collector    *colly.Collector
	retry        *retryManager
	sink         *failure.Sink
	Metrics      *Metrics
	sessionToken string

	requestCount int64
	pageCount    int64
	errorCount   int64

	// dispatched de-duplicates detail targets reachable from more than one
	// listing page within a single run.
	dispatched *lru.Cache[string, struct{}]

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
	seeds        map[string]struct{}

	handlersOnce sync.Once
}

// NewCrawler builds a crawler configured from cfg, routing unparseable
// payloads to sink.
func NewCrawler(cfg *config.Config, sink *failure.Sink) (*Crawler, error) {
	hosts := map[string]struct{}{detailHost: {}}
	seeds := make(map[string]struct{}, len(cfg.SeedURLs))
	for _, seed := range cfg.SeedURLs {
		parsed, err := url.Parse(seed)
		if err != nil {
			return nil, fmt.Errorf("parse seed url %q: %w", seed, err)
		}
		if parsed.Host == "" {
			return nil, fmt.Errorf("seed url %q must include a host", seed)
		}
		hosts[parsed.Host] = struct{}{}
		seeds[seed] = struct{}{}
	}

	allowed := make([]string, 0, len(hosts))
	for host := range hosts {
		allowed = append(allowed, host)
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(allowed...),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	dispatched, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("build dispatch cache: %w", err)
	}

	c := &Crawler{
		cfg:          cfg,
		collector:    collector,
		sink:         sink,
		Metrics:      NewMetrics(),
		sessionToken: uuid.NewString(),
		dispatched:   dispatched,
		errorsByType: make(map[string]int),
		seeds:        seeds,
	}
	c.retry = newRetryManager(cfg, c.Metrics)
	return c, nil
}

// Run visits every seed URL and streams extracted records through the
// pipeline, blocking until all branches of the crawl are exhausted.
func (c *Crawler) Run(ctx context.Context, p *pipeline.Pipeline) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.retry.SetContext(ctx)
	c.configureHandlers(ctx, p)

	start := time.Now()
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			c.collector.Wait()
			c.retry.Stop()
		case <-done:
		}
	}()

	var visited int
	for _, seed := range c.cfg.SeedURLs {
		if err := c.collector.Visit(seed); err != nil {
			slog.Error("seed visit failed", slog.String("url", seed), slog.Any("error", err))
			continue
		}
		visited++
	}
	if visited == 0 {
		return nil, fmt.Errorf("no seed URL could be visited")
	}

	c.collector.Wait()
	c.retry.Stop()

	result := &models.CrawlResult{
		StartTime:    start,
		EndTime:      time.Now(),
		ErrorCount:   int(atomic.LoadInt64(&c.errorCount)),
		FailedURLs:   c.snapshotFailedURLs(),
		ErrorsByType: c.snapshotErrors(),
		RetryCount:   c.retry.TotalRetries(),
		RequestCount: int(atomic.LoadInt64(&c.requestCount)),
		PageCount:    int(atomic.LoadInt64(&c.pageCount)),
	}

	if metrics := p.GetMetrics(); metrics != nil {
		if processed, ok := metrics["processed_products"].(int64); ok {
			result.TotalCount = int(processed)
		}
	}

	return result, nil
}

func (c *Crawler) configureHandlers(ctx context.Context, p *pipeline.Pipeline) {
	c.handlersOnce.Do(func() {
		c.collector.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Cookie", fmt.Sprintf("%s=%s; %s=%s",
				sessionCookie, c.sessionToken,
				storeCookie, c.cfg.StoreNumber,
			))
			r.Ctx.Put("start", time.Now())
			current := atomic.AddInt64(&c.requestCount, 1)
			if c.Metrics != nil {
				c.Metrics.IncRequest("started")
			}
			if current%50 == 0 {
				slog.Debug("crawler request progress",
					slog.Int64("requests", current),
					slog.Int64("pages", atomic.LoadInt64(&c.pageCount)),
					slog.String("url", r.URL.String()),
				)
			}
		})

		c.collector.OnResponse(func(r *colly.Response) {
			if c.Metrics != nil {
				if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
					c.Metrics.ObserveDuration(time.Since(start))
				}
			}

			if c.Metrics != nil {
				c.Metrics.IncRequest("succeeded")
			}

			if itemID := r.Ctx.Get(itemIDKey); itemID != "" {
				c.handleDetail(r, itemID, p)
				return
			}
			c.handleListing(ctx, r)
		})

		c.collector.OnError(func(r *colly.Response, err error) {
			atomic.AddInt64(&c.errorCount, 1)
			statusCode := 0
			if r != nil {
				statusCode = r.StatusCode
			}
			classified := classifyError(err, statusCode)
			category := errorTypeLabel(classified)

			c.mu.Lock()
			c.errorsByType[category]++
			c.mu.Unlock()

			requestURL := ""
			if r != nil && r.Request != nil && r.Request.URL != nil {
				requestURL = r.Request.URL.String()
			}
			slog.Error("request error",
				slog.String("url", requestURL),
				slog.String("category", category),
				slog.Any("error", err),
			)
			if c.Metrics != nil {
				c.Metrics.IncError(category)
				c.Metrics.IncRequest("failed")
			}

			if isNotFound(classified) && c.isSeed(requestURL) {
				slog.Warn("seed URL returned not found; check that the store number and zip code are valid",
					slog.String("url", requestURL),
					slog.String("store_number", c.cfg.StoreNumber),
					slog.String("zip_code", c.cfg.ZipCode),
				)
			}

			payload := []byte(err.Error())
			if r != nil && len(r.Body) > 0 {
				payload = r.Body
			}
			c.sink.Store(failure.FailedRequest, requestURL, payload)

			var delay time.Duration
			ok := false
			if r != nil && r.Request != nil {
				delay, ok = c.retry.Schedule(requestURL)
			}
			if !ok {
				c.mu.Lock()
				c.failedURLs = append(c.failedURLs, requestURL)
				c.mu.Unlock()
				return
			}

			// Replay the original request rather than re-visiting the URL:
			// Retry keeps the request context (the item_id dispatch key) and
			// is exempt from the collector's already-visited check. Blocking
			// here keeps the replay inside the collector's wait group.
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
				if retryErr := r.Request.Retry(); retryErr != nil {
					slog.Debug("retry failed",
						slog.String("url", requestURL),
						slog.Any("error", retryErr),
					)
				}
			}
		})
	})
}

// handleListing processes one search-results page: extract the embedded
// state, dispatch a detail request per discovered item, then resolve the next
// listing target.
func (c *Crawler) handleListing(ctx context.Context, r *colly.Response) {
	atomic.AddInt64(&c.pageCount, 1)
	if c.Metrics != nil {
		c.Metrics.IncPages()
	}
	pageURL := r.Request.URL.String()
	html := string(r.Body)

	doc, err := state.Extract(html)
	switch {
	case errors.Is(err, state.ErrNotFound):
		// Legitimate on terminal or empty pages; captured for diagnosis but
		// not treated as an error.
		slog.Info("page has no preloaded state", slog.String("url", pageURL))
		c.sink.Store(failure.FailedHTML, pageURL, r.Body)
		if c.Metrics != nil {
			c.Metrics.IncExtractionFailure("state_not_found")
		}
	case err != nil:
		slog.Error("malformed preloaded state",
			slog.String("url", pageURL),
			slog.Any("error", err),
		)
		c.sink.Store(failure.FailedHTML, pageURL, r.Body)
		if c.Metrics != nil {
			c.Metrics.IncExtractionFailure("malformed_state")
		}
	default:
		for _, item := range parser.Listing(doc, c.cfg.StoreNumber, c.cfg.ZipCode) {
			if found, _ := c.dispatched.ContainsOrAdd(item.ItemID, struct{}{}); found {
				continue
			}
			c.visitDetail(item)
		}
	}

	c.visitNext(ctx, r, pageURL)
}

func (c *Crawler) visitDetail(item parser.ListingItem) {
	reqCtx := colly.NewContext()
	reqCtx.Put(itemIDKey, item.ItemID)
	if err := c.collector.Request(http.MethodGet, item.DetailURL, nil, reqCtx, nil); err != nil {
		slog.Debug("detail request rejected",
			slog.String("item_id", item.ItemID),
			slog.Any("error", err),
		)
	}
}

func (c *Crawler) visitNext(ctx context.Context, r *colly.Response, pageURL string) {
	if atomic.LoadInt64(&c.pageCount) >= int64(c.cfg.MaxPages) {
		slog.Info("page budget reached", slog.Int("max_pages", c.cfg.MaxPages))
		return
	}
	if ctx.Err() != nil {
		return
	}

	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		slog.Error("unparseable listing html", slog.String("url", pageURL), slog.Any("error", err))
		return
	}

	next, err := parser.NextPage(pageURL, gq, c.cfg.PageSize)
	if err != nil {
		// Ends this branch only; records extracted from the page stand.
		slog.Error("pagination failed", slog.String("url", pageURL), slog.Any("error", err))
		if c.Metrics != nil {
			c.Metrics.IncExtractionFailure("pagination")
		}
		return
	}
	if next == "" {
		slog.Info("result set exhausted", slog.String("url", pageURL))
		return
	}

	if err := c.collector.Visit(r.Request.AbsoluteURL(next)); err != nil {
		slog.Debug("next page visit rejected", slog.String("url", next), slog.Any("error", err))
	}
}

// handleDetail extracts a normalized record from a product detail response.
// Detail targets normally answer with a bare JSON document; HTML pages with
// embedded state are handled as a fallback.
func (c *Crawler) handleDetail(r *colly.Response, itemID string, p *pipeline.Pipeline) {
	doc, ok := c.parseDetailBody(r.Body)
	if !ok {
		slog.Error("undecodable detail payload",
			slog.String("item_id", itemID),
			slog.String("url", r.Request.URL.String()),
		)
		c.sink.Store(failure.FailedHTML, itemID, r.Body)
		if c.Metrics != nil {
			c.Metrics.IncExtractionFailure("undecodable_detail")
		}
		return
	}

	record, err := parser.Product(doc, itemID, r.Request.URL.String(), c.cfg.StoreNumber, c.cfg.ZipCode)
	if err != nil {
		slog.Error("product extraction failed",
			slog.String("item_id", itemID),
			slog.Any("error", err),
		)
		c.sink.Store(failure.FailedProduct, itemID, r.Body)
		if c.Metrics != nil {
			c.Metrics.IncExtractionFailure(extractionFailureLabel(err))
		}
		return
	}

	if c.Metrics != nil {
		c.Metrics.IncItems()
	}
	if err := p.Process(record); err != nil && err != pipeline.ErrPipelineClosed {
		slog.Error("pipeline process error", slog.Any("error", err))
	}
}

func (c *Crawler) parseDetailBody(body []byte) (state.Document, bool) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		return state.Document(payload), true
	}

	doc, err := state.Extract(string(body))
	if err != nil {
		return nil, false
	}
	return doc, true
}

func extractionFailureLabel(err error) string {
	var missing parser.MissingProductDetailsError
	if errors.As(err, &missing) {
		return "missing_product_details"
	}
	var ambiguous parser.AmbiguousPricingError
	if errors.As(err, &ambiguous) {
		return "ambiguous_pricing"
	}
	return "other"
}

func (c *Crawler) isSeed(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seeds[url]
	return ok
}

func (c *Crawler) snapshotFailedURLs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.failedURLs))
	copy(out, c.failedURLs)
	return out
}

func (c *Crawler) snapshotErrors() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.errorsByType))
	for k, v := range c.errorsByType {
		out[k] = v
	}
	return out
}

package scraper

import (
	"context"
	"sync"
	"time"

	"github.com/retailscrape/lowes-crawler/config"
)

// retryManager tracks the retry budget per URL and computes capped exponential
// backoff. Replaying the request itself is the caller's job: retries reuse the
// original colly request so the request context survives and the collector's
// revisit check does not reject the replay.
type retryManager struct {
	cfg     *config.Config
	metrics *Metrics
	ctx     context.Context

	mu           sync.Mutex
	attempts     map[string]int
	totalRetries int
	stopped      bool
}

func newRetryManager(cfg *config.Config, metrics *Metrics) *retryManager {
	return &retryManager{
		cfg:      cfg,
		attempts: make(map[string]int),
		metrics:  metrics,
		ctx:      context.Background(),
	}
}

// Schedule records a retry attempt for url and returns the backoff delay to
// wait before replaying it. ok is false when the retry budget for url is
// spent or the run is shutting down.
func (rm *retryManager) Schedule(url string) (delay time.Duration, ok bool) {
	if rm.cfg.MaxRetries == 0 {
		return 0, false
	}

	if rm.ctx != nil {
		select {
		case <-rm.ctx.Done():
			return 0, false
		default:
		}
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return 0, false
	}
	if rm.ctx != nil && rm.ctx.Err() != nil {
		return 0, false
	}

	attempt := rm.attempts[url]
	if attempt >= rm.cfg.MaxRetries {
		return 0, false
	}

	attempt++
	rm.attempts[url] = attempt
	rm.totalRetries++
	if rm.metrics != nil {
		rm.metrics.IncRetries()
	}

	return rm.backoff(attempt), true
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rm.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rm.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// Stop refuses any further scheduling.
func (rm *retryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.stopped = true
}

func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}

func (rm *retryManager) SetContext(ctx context.Context) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if ctx == nil {
		rm.ctx = context.Background()
		return
	}
	rm.ctx = ctx
}

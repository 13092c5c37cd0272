// Package config holds the immutable run configuration for the crawler.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Fallback identity used when the configured store or zip is malformed. The
// run proceeds with a warning rather than aborting.
const (
	DefaultStoreNumber = "2442"
	DefaultZipCode     = "29730"
)

// Config holds crawler configuration. It is built once at startup and passed
// into every component; nothing mutates it mid-run.
type Config struct {
	SeedURLs    []string
	StoreNumber string
	ZipCode     string
	PageSize    int

	MaxPages        int
	Parallelism     int
	Delay           time.Duration
	RandomDelay     time.Duration
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	OutputFile   string
	OutputFormat string // csv, json, or dual
	FailureDir   string

	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int

	UserAgent        string
	Verbose          bool
	RespectRobotsTxt bool
	MetricsAddr      string
}

// DefaultConfig returns conservative defaults for the target site.
func DefaultConfig() *Config {
	return &Config{
		StoreNumber:        DefaultStoreNumber,
		ZipCode:            DefaultZipCode,
		PageSize:           24,
		MaxPages:           50,
		Parallelism:        8,
		Delay:              250 * time.Millisecond,
		RandomDelay:        250 * time.Millisecond,
		Timeout:            15 * time.Second,
		MaxRetries:         2,
		RetryBackoff:       200 * time.Millisecond,
		RetryBackoffMax:    2 * time.Second,
		OutputFile:         "output/products.csv",
		OutputFormat:       "csv",
		FailureDir:         "output/failures",
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      100000,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:            false,
		RespectRobotsTxt:   false,
	}
}

// fileConfig mirrors the on-disk config.json shape.
type fileConfig struct {
	StartURLs   []string `json:"start_urls"`
	StoreNumber string   `json:"store_number"`
	ZipCode     string   `json:"zip_code"`
}

// LoadFile applies seed URLs and the store/zip identity from a JSON config
// file on top of the current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if len(fc.StartURLs) > 0 {
		c.SeedURLs = fc.StartURLs
	}
	if fc.StoreNumber != "" {
		c.StoreNumber = fc.StoreNumber
	}
	if fc.ZipCode != "" {
		c.ZipCode = fc.ZipCode
	}
	return nil
}

// Normalize repairs recoverable misconfiguration with a warning. A bad store
// number or zip code must never abort the run.
func (c *Config) Normalize() {
	if !allDigits(c.StoreNumber, 4) {
		slog.Warn("invalid store number, using default",
			slog.String("store_number", c.StoreNumber),
			slog.String("default", DefaultStoreNumber),
		)
		c.StoreNumber = DefaultStoreNumber
	}
	if !allDigits(c.ZipCode, 5) {
		slog.Warn("invalid zip code, using default",
			slog.String("zip_code", c.ZipCode),
			slog.String("default", DefaultZipCode),
		)
		c.ZipCode = DefaultZipCode
	}
	if c.PageSize <= 0 {
		c.PageSize = 24
	}
}

// Validate ensures all configuration values are coherent. Missing seed URLs
// are the one crash-worthy condition.
func (c *Config) Validate() error {
	if len(c.SeedURLs) == 0 {
		return fmt.Errorf("no seed URLs configured")
	}
	for _, seed := range c.SeedURLs {
		parsed, err := url.Parse(seed)
		if err != nil {
			return fmt.Errorf("invalid seed URL %q: %w", seed, err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("seed URL %q must include a host", seed)
		}
	}

	if !allDigits(c.StoreNumber, 4) {
		return fmt.Errorf("store number must be 4 digits")
	}
	if !allDigits(c.ZipCode, 5) {
		return fmt.Errorf("zip code must be 5 digits")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.FailureDir == "" {
		return fmt.Errorf("failure directory cannot be empty")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// EnvInt reads an integer environment variable. The second return reports
// whether the variable was set.
func EnvInt(name string) (int, bool, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s=%q is not an integer", name, raw)
	}
	return value, true, nil
}

// EnvString reads a string environment variable.
func EnvString(name string) (string, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}

func allDigits(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds scraper and server configuration.
type Config struct {
	// BaseURLs are candidate result-portal endpoints, tried in order.
	// HTTPS first, plain HTTP as a fallback for broken TLS deployments.
	BaseURLs []string

	UserAgent string

	// RequestTimeout bounds a single result POST.
	RequestTimeout time.Duration
	// ProbeTimeouts is the escalating timeout ladder used when probing
	// candidate endpoints.
	ProbeTimeouts []time.Duration
	// CollectTimeout bounds how long the scheduler waits for one
	// identifier's result after batch dispatch.
	CollectTimeout time.Duration

	// Workers is the size of the per-batch worker pool. Kept deliberately
	// small so the target portal is not overloaded.
	Workers    int
	BatchSize  int
	BatchPause time.Duration

	// Job layer limits.
	MaxPinsPerJob int
	MaxActiveJobs int
	JobTTL        time.Duration

	ListenAddr  string
	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns conservative defaults for the SBTET portal.
func DefaultConfig() *Config {
	return &Config{
		BaseURLs: []string{
			"https://sbtet.ap.gov.in/APSBTET/results.do",
			"http://sbtet.ap.gov.in/APSBTET/results.do",
		},
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		RequestTimeout: 30 * time.Second,
		ProbeTimeouts:  []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second},
		CollectTimeout: 30 * time.Second,
		Workers:        2,
		BatchSize:      10,
		BatchPause:     500 * time.Millisecond,
		MaxPinsPerJob:  200,
		MaxActiveJobs:  3,
		JobTTL:         time.Hour,
		ListenAddr:     ":8000",
		MetricsAddr:    "",
		Verbose:        false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if len(c.BaseURLs) == 0 {
		return fmt.Errorf("at least one base URL is required")
	}
	for _, raw := range c.BaseURLs {
		parsed, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid base URL %q: %w", raw, err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("base URL %q must include a host", raw)
		}
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if len(c.ProbeTimeouts) == 0 {
		return fmt.Errorf("at least one probe timeout is required")
	}
	for _, d := range c.ProbeTimeouts {
		if d <= 0 {
			return fmt.Errorf("probe timeouts must be positive")
		}
	}
	if c.CollectTimeout <= 0 {
		return fmt.Errorf("collect timeout must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.BatchPause < 0 {
		return fmt.Errorf("batch pause cannot be negative")
	}
	if c.MaxPinsPerJob <= 0 {
		return fmt.Errorf("max pins per job must be positive")
	}
	if c.MaxActiveJobs <= 0 {
		return fmt.Errorf("max active jobs must be positive")
	}
	if c.JobTTL <= 0 {
		return fmt.Errorf("job TTL must be positive")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	return nil
}

// EnvString reads a string environment variable, reporting whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment variable.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration reads a duration environment variable.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, true, nil
}

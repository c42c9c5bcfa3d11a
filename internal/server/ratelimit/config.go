package ratelimit

import (
	"time"
)

// EndpointConfig limits one route. Path is a pattern in which "*" matches a single segment.
type EndpointConfig struct {
	Path   string
	Method string
	Limit  int           // requests per window
	Window time.Duration // refill window
	Burst  int           // bucket capacity; Limit when zero
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	// IdleTTL is how long an unused bucket is kept
	IdleTTL   time.Duration
	Endpoints []EndpointConfig
}

// NewConfig builds the limits for the feedback API. createPerMinute applies to job
// creation and retry, which start pipeline runs; readPerMinute applies to everything else.
func NewConfig(enabled bool, createPerMinute, readPerMinute int) *Config {
	return &Config{
		Enabled:         enabled,
		DefaultLimit:    readPerMinute,
		DefaultWindow:   time.Minute,
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
		Endpoints:       FeedbackEndpoints(createPerMinute),
	}
}

// FeedbackEndpoints returns the routes with limits stricter than the default
func FeedbackEndpoints(createPerMinute int) []EndpointConfig {
	burst := max(1, createPerMinute/5)
	return []EndpointConfig{
		{Path: "/feedback/jobs", Method: "POST", Limit: createPerMinute, Window: time.Minute, Burst: burst},
		{Path: "/feedback/jobs/*/retry", Method: "POST", Limit: createPerMinute, Window: time.Minute, Burst: burst},
	}
}

package models

import (
	"strings"
	"time"
)

// CurrencyCode is a three-letter ISO-4217 style currency identifier
type CurrencyCode string

// Normalize upper-cases and trims a currency code
func (code CurrencyCode) Normalize() CurrencyCode {
	return CurrencyCode(strings.ToUpper(strings.TrimSpace(string(code))))
}

func (code CurrencyCode) String() string {
	return string(code)
}

// FreshnessTag is the backend's advisory classification of data age
type FreshnessTag string

const (
	FreshnessFresh  FreshnessTag = "fresh"
	FreshnessRecent FreshnessTag = "recent"
	FreshnessStale  FreshnessTag = "stale"
)

// RateEntry holds the rate of one currency relative to the base
type RateEntry struct {
	Code        CurrencyCode `json:"code"`
	Name        string       `json:"name"`
	Rate        float64      `json:"rate"`
	InverseRate float64      `json:"inverse_rate"`
}

// RateSnapshot is one complete set of rates plus metadata from a single
// successful fetch. Snapshots are never modified after construction.
type RateSnapshot struct {
	Base             CurrencyCode               `json:"base"`
	Rates            map[CurrencyCode]RateEntry `json:"rates"`
	LastUpdated      time.Time                  `json:"last_updated"`
	Freshness        FreshnessTag               `json:"freshness"`
	SourcesUsed      int                        `json:"sources_used"`
	SourcesAvailable int                        `json:"sources_available"`
	IsCached         bool                       `json:"is_cached"`
	CacheAgeSeconds  *int                       `json:"cache_age_seconds,omitempty"`
	Message          *string                    `json:"message,omitempty"`
	FetchedAt        time.Time                  `json:"fetched_at"`
}

// RatesPayload is the wire schema of GET /rates on the backend
type RatesPayload struct {
	Base             string                 `json:"base" validate:"omitempty,len=3"`
	Rates            map[string]RatePayload `json:"rates" validate:"required,dive"`
	LastUpdated      string                 `json:"last_updated" validate:"required"`
	Freshness        string                 `json:"freshness"`
	SourcesUsed      *int                   `json:"sources_used" validate:"required,gte=0"`
	SourcesAvailable *int                   `json:"sources_available" validate:"required,gte=0"`
	IsCached         *bool                  `json:"is_cached" validate:"required"`
	CacheAgeSeconds  *int                   `json:"cache_age_seconds" validate:"omitempty,gte=0"`
	Message          *string                `json:"message"`
}

// RatePayload is a single entry of RatesPayload.Rates
type RatePayload struct {
	Code        string   `json:"code" validate:"omitempty,len=3"`
	Name        string   `json:"name"`
	Rate        *float64 `json:"rate" validate:"required,gt=0"`
	InverseRate *float64 `json:"inverse_rate" validate:"required,gt=0"`
}

// HealthCheck is the view server health response
type HealthCheck struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	Uptime     string    `json:"uptime"`
	Controller string    `json:"controller"`
	Backend    string    `json:"backend"`
}

// ErrorResponse is the view server error body
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// BaseChangeRequest is the body of PUT /api/v1/base
type BaseChangeRequest struct {
	Base string `json:"base" binding:"required,len=3,alpha"`
}

package testutils

import (
	"time"

	"github.com/dalfonso89/ratewatch/internal/config"
	"github.com/dalfonso89/ratewatch/internal/logger"
	"github.com/dalfonso89/ratewatch/internal/models"
)

// MockLogger creates a logger that discards output
func MockLogger() *logger.Logger {
	return logger.Discard()
}

// MockConfig creates a configuration pointing at baseURL
func MockConfig(baseURL string) *config.Config {
	return &config.Config{
		LogLevel: "error",
		LogFile:  "",

		RatesBaseURL: baseURL,
		HTTPTimeout:  2 * time.Second,

		RefreshInterval:         60 * time.Second,
		DefaultBaseCurrency:     "USD",
		SupportedBaseCurrencies: []models.CurrencyCode{"USD", "EUR", "GBP", "JPY", "INR"},

		ViewEnabled: true,
		ViewPort:    "0",

		DashboardEnabled: false,
		DashboardColor:   "never",
		RedrawInterval:   15 * time.Second,

		RateLimitEnabled:  true,
		RateLimitRequests: 30,
		RateLimitWindow:   60 * time.Second,
		RateLimitBurst:    5,
	}
}

// MockSnapshot builds the reference USD snapshot
func MockSnapshot() models.RateSnapshot {
	return models.RateSnapshot{
		Base: "USD",
		Rates: map[models.CurrencyCode]models.RateEntry{
			"USD": {Code: "USD", Name: "US Dollar", Rate: 1.0, InverseRate: 1.0},
			"EUR": {Code: "EUR", Name: "Euro", Rate: 0.84, InverseRate: 1.19},
			"GBP": {Code: "GBP", Name: "British Pound", Rate: 0.73, InverseRate: 1.369863},
		},
		LastUpdated:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Freshness:        models.FreshnessFresh,
		SourcesUsed:      3,
		SourcesAvailable: 3,
		IsCached:         false,
		FetchedAt:        time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC),
	}
}

// MockSnapshotFor returns MockSnapshot rebased onto base
func MockSnapshotFor(base models.CurrencyCode) models.RateSnapshot {
	snapshot := MockSnapshot()
	snapshot.Base = base
	return snapshot
}

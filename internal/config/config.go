package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dalfonso89/ratewatch/internal/models"
)

// Config holds all configuration for the application
type Config struct {
	LogLevel string
	LogFile  string

	// Rate data backend
	RatesBaseURL string
	HTTPTimeout  time.Duration

	// Polling
	RefreshInterval         time.Duration
	DefaultBaseCurrency     models.CurrencyCode
	SupportedBaseCurrencies []models.CurrencyCode

	// View server
	ViewEnabled        bool
	ViewPort           string
	CORSAllowedOrigins []string

	// Terminal dashboard
	DashboardEnabled bool
	DashboardColor   string
	RedrawInterval   time.Duration

	// Rate limiting of the view server's mutating endpoints
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitBurst    int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	env := &envParser{}
	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", "ratewatch.log"),

		RatesBaseURL: strings.TrimRight(getEnv("RATES_BASE_URL", "http://localhost:8000"), "/"),
		HTTPTimeout:  env.seconds("HTTP_TIMEOUT_SECONDS", "10"),

		RefreshInterval:         env.seconds("REFRESH_INTERVAL_SECONDS", "60"),
		DefaultBaseCurrency:     models.CurrencyCode(getEnv("DEFAULT_BASE_CURRENCY", "USD")).Normalize(),
		SupportedBaseCurrencies: parseCurrencyList(getEnv("SUPPORTED_BASE_CURRENCIES", "USD,EUR,GBP,JPY,INR")),

		ViewEnabled:        getEnv("VIEW_ENABLED", "true") == "true",
		ViewPort:           getEnv("VIEW_PORT", "8090"),
		CORSAllowedOrigins: parseList(getEnv("CORS_ALLOWED_ORIGINS", "")),

		DashboardEnabled: getEnv("DASHBOARD_ENABLED", "true") == "true",
		DashboardColor:   strings.ToLower(getEnv("DASHBOARD_COLOR", "auto")),
		RedrawInterval:   env.seconds("REDRAW_INTERVAL_SECONDS", "15"),

		RateLimitEnabled:  getEnv("RATE_LIMIT_ENABLED", "true") == "true",
		RateLimitRequests: env.int("RATE_LIMIT_REQUESTS", "30"),
		RateLimitWindow:   env.seconds("RATE_LIMIT_WINDOW_SECONDS", "60"),
		RateLimitBurst:    env.int("RATE_LIMIT_BURST", "5"),
	}

	if err := env.err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would make the client unusable
func (cfg *Config) Validate() error {
	parsed, err := url.Parse(cfg.RatesBaseURL)
	if err != nil {
		return fmt.Errorf("invalid RATES_BASE_URL %q: %w", cfg.RatesBaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid RATES_BASE_URL %q: scheme must be http or https", cfg.RatesBaseURL)
	}
	if cfg.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL_SECONDS must be positive, got %s", cfg.RefreshInterval)
	}
	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive, got %s", cfg.HTTPTimeout)
	}
	if len(cfg.SupportedBaseCurrencies) == 0 {
		return fmt.Errorf("SUPPORTED_BASE_CURRENCIES must list at least one currency")
	}
	switch cfg.DashboardColor {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("DASHBOARD_COLOR must be auto, always or never, got %q", cfg.DashboardColor)
	}
	return nil
}

// IsSupportedBase reports whether code is one of the selectable base currencies
func (cfg *Config) IsSupportedBase(code models.CurrencyCode) bool {
	for _, supported := range cfg.SupportedBaseCurrencies {
		if supported == code {
			return true
		}
	}
	return false
}

// parseCurrencyList splits a comma separated list, dropping blanks and duplicates
func parseCurrencyList(raw string) []models.CurrencyCode {
	currencies := []models.CurrencyCode{}
	seen := make(map[models.CurrencyCode]bool)

	for _, part := range strings.Split(raw, ",") {
		code := models.CurrencyCode(part).Normalize()
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		currencies = append(currencies, code)
	}

	return currencies
}

// parseList splits a comma separated list, dropping blanks
func parseList(raw string) []string {
	values := []string{}
	for _, part := range strings.Split(raw, ",") {
		if value := strings.TrimSpace(part); value != "" {
			values = append(values, value)
		}
	}
	return values
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// envParser reads numeric settings and keeps every parse failure
type envParser struct {
	errs []error
}

func (p *envParser) int(key, fallback string) int {
	value := getEnv(key, fallback)
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s %q: %w", key, value, err))
		return 0
	}
	return i
}

func (p *envParser) seconds(key, fallback string) time.Duration {
	return time.Duration(p.int(key, fallback)) * time.Second
}

func (p *envParser) err() error {
	return errors.Join(p.errs...)
}

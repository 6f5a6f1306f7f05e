package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/dalfonso89/ratewatch/internal/config"
	"github.com/dalfonso89/ratewatch/internal/logger"
	"github.com/dalfonso89/ratewatch/internal/metrics"
	"github.com/dalfonso89/ratewatch/internal/models"
)

const maxBodyBytes = 1 << 20

// offset-less layouts are what the backend emits for naive UTC datetimes
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// RatesClient fetches aggregated rate snapshots from the backend
type RatesClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
	metrics    *metrics.RatesMetrics
	validate   *validator.Validate

	healthGroup singleflight.Group
}

// NewRatesClient creates a client for cfg.RatesBaseURL. metrics may be nil.
func NewRatesClient(configuration *config.Config, logger *logger.Logger, metrics *metrics.RatesMetrics) *RatesClient {
	httpTransport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &RatesClient{
		baseURL:    strings.TrimRight(configuration.RatesBaseURL, "/"),
		httpClient: &http.Client{Timeout: configuration.HTTPTimeout, Transport: httpTransport},
		logger:     logger,
		metrics:    metrics,
		validate:   validator.New(),
	}
}

// FetchRates fetches the snapshot for base. base is passed through unchecked.
// Every failure is a *FetchError; no partial snapshot is returned.
func (client *RatesClient) FetchRates(ctx context.Context, base models.CurrencyCode) (models.RateSnapshot, error) {
	requestID := uuid.NewString()
	started := time.Now()
	log := client.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"base":       base.String(),
	})

	snapshot, statusCode, err := client.fetch(ctx, base, requestID)
	elapsed := time.Since(started)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		kind, _ := KindOf(err)
		outcome = kind.String()
	}
	client.metrics.ObserveFetch(base.String(), outcome, elapsed.Seconds())

	log = log.WithFields(logrus.Fields{
		"status":  statusCode,
		"latency": elapsed.String(),
	})
	if err != nil {
		log.WithError(err).Debug("Rate fetch failed")
		return models.RateSnapshot{}, err
	}
	log.WithField("currencies", len(snapshot.Rates)).Debug("Rate fetch succeeded")
	return snapshot, nil
}

func (client *RatesClient) fetch(ctx context.Context, base models.CurrencyCode, requestID string) (models.RateSnapshot, int, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.ratesURL(base), nil)
	if err != nil {
		return models.RateSnapshot{}, 0, &FetchError{Kind: KindNetwork, Base: base, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("X-Request-ID", requestID)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return models.RateSnapshot{}, 0, &FetchError{Kind: KindNetwork, Base: base, Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		// body is not inspected for error detail
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxBodyBytes))
		return models.RateSnapshot{}, response.StatusCode, &FetchError{Kind: KindHTTP, Base: base, StatusCode: response.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBodyBytes))
	if err != nil {
		return models.RateSnapshot{}, response.StatusCode, &FetchError{Kind: KindNetwork, Base: base, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	snapshot, err := client.parseSnapshot(body, base)
	if err != nil {
		return models.RateSnapshot{}, response.StatusCode, &FetchError{Kind: KindParse, Base: base, StatusCode: response.StatusCode, Err: err}
	}
	return snapshot, response.StatusCode, nil
}

// ratesURL builds GET {base_url}/rates?base=XXX
func (client *RatesClient) ratesURL(base models.CurrencyCode) string {
	query := url.Values{}
	query.Set("base", base.String())
	return client.baseURL + "/rates?" + query.Encode()
}

// parseSnapshot decodes and validates a rates body into a snapshot
func (client *RatesClient) parseSnapshot(body []byte, requested models.CurrencyCode) (models.RateSnapshot, error) {
	var payload models.RatesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.RateSnapshot{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := client.validate.Struct(payload); err != nil {
		return models.RateSnapshot{}, fmt.Errorf("response does not match schema: %w", err)
	}

	base := requested
	if payload.Base != "" {
		if !strings.EqualFold(payload.Base, requested.String()) {
			return models.RateSnapshot{}, fmt.Errorf("response base %q does not match requested base %q", payload.Base, requested)
		}
		base = models.CurrencyCode(payload.Base).Normalize()
	}

	lastUpdated, err := parseTimestamp(payload.LastUpdated)
	if err != nil {
		return models.RateSnapshot{}, err
	}

	rates := make(map[models.CurrencyCode]models.RateEntry, len(payload.Rates))
	for key, entry := range payload.Rates {
		code := models.CurrencyCode(key).Normalize()
		entryCode := models.CurrencyCode(entry.Code).Normalize()
		if entryCode == "" {
			entryCode = code
		}
		if entryCode != code {
			return models.RateSnapshot{}, fmt.Errorf("rate %q carries code %q", key, entry.Code)
		}
		if _, exists := rates[code]; exists {
			return models.RateSnapshot{}, fmt.Errorf("duplicate rate for %s", code)
		}
		rates[code] = models.RateEntry{
			Code:        entryCode,
			Name:        entry.Name,
			Rate:        *entry.Rate,
			InverseRate: *entry.InverseRate,
		}
	}

	return models.RateSnapshot{
		Base:             base,
		Rates:            rates,
		LastUpdated:      lastUpdated,
		Freshness:        models.FreshnessTag(payload.Freshness),
		SourcesUsed:      *payload.SourcesUsed,
		SourcesAvailable: *payload.SourcesAvailable,
		IsCached:         *payload.IsCached,
		CacheAgeSeconds:  payload.CacheAgeSeconds,
		Message:          payload.Message,
		FetchedAt:        time.Now(),
	}, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid last_updated timestamp %q", raw)
}

// Health probes GET {base_url}/health. Concurrent probes share one request.
func (client *RatesClient) Health(ctx context.Context) error {
	// the shared call must not die with whichever caller started it
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), client.httpClient.Timeout)
	defer cancel()

	_, err, shared := client.healthGroup.Do("health", func() (interface{}, error) {
		return nil, client.probeHealth(probeCtx)
	})
	if shared {
		client.logger.Debug("Backend health probe shared with a concurrent caller")
	}
	return err
}

func (client *RatesClient) probeHealth(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	request.Header.Set("X-Request-ID", uuid.NewString())

	response, err := client.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxBodyBytes))

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("backend health check failed with status: %d", response.StatusCode)
	}
	return nil
}

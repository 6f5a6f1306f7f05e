package poller

import (
	"context"

	"github.com/dalfonso89/ratewatch/internal/models"
)

//go:generate mockgen -source=fetcher.go -destination=mocks/mock_fetcher.go -package=mocks

// Fetcher retrieves one rate snapshot for a base currency
type Fetcher interface {
	FetchRates(ctx context.Context, base models.CurrencyCode) (models.RateSnapshot, error)
}

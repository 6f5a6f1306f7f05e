package poller

import (
	"time"

	"github.com/dalfonso89/ratewatch/internal/models"
)

// Status is the poller's position in the view lifecycle
type Status string

const (
	StatusIdle            Status = "idle"
	StatusLoading         Status = "loading"
	StatusLoaded          Status = "loaded"
	StatusLoadedWithError Status = "loaded_with_error"
	StatusErrorNoData     Status = "error_no_data"
)

// AllStatuses lists every status, for metrics
var AllStatuses = []string{
	string(StatusIdle),
	string(StatusLoading),
	string(StatusLoaded),
	string(StatusLoadedWithError),
	string(StatusErrorNoData),
}

// BlockingErrorMessage is shown when no rates were ever loaded
const BlockingErrorMessage = "Unable to fetch exchange rates. Please try again."

// ViewState is what the presentation layer reads. Values are copies; the
// snapshot they point to is never modified.
type ViewState struct {
	Status       Status               `json:"status"`
	BaseCurrency models.CurrencyCode  `json:"base_currency"`
	Snapshot     *models.RateSnapshot `json:"snapshot,omitempty"`
	Loading      bool                 `json:"loading"`
	HasError     bool                 `json:"has_error"`
	ErrorMessage string               `json:"error_message,omitempty"`
	LastError    string               `json:"last_error,omitempty"`
	LastAttempt  time.Time            `json:"last_attempt"`
	Generation   uint64               `json:"generation"`
}

// Rates returns the displayed rates, or nil when nothing is loaded
func (state ViewState) Rates() map[models.CurrencyCode]models.RateEntry {
	if state.Snapshot == nil {
		return nil
	}
	return state.Snapshot.Rates
}

// ShowBlockingError reports whether the error view replaces the rate grid
func (state ViewState) ShowBlockingError() bool {
	return state.Snapshot == nil && state.ErrorMessage != ""
}

// ShowSpinner reports whether the loading view replaces the rate grid
func (state ViewState) ShowSpinner() bool {
	return state.Snapshot == nil && state.Loading
}

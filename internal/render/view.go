// Package render turns the poller's ViewState into what a user sees: the
// sorted rate cards, the freshness line, and the loading and error screens.
// Both the terminal dashboard and the view server build from View.
package render

import (
	"fmt"
	"sort"
	"time"

	"github.com/dalfonso89/ratewatch/internal/freshness"
	"github.com/dalfonso89/ratewatch/internal/models"
	"github.com/dalfonso89/ratewatch/internal/poller"
)

// Mode selects which body a view shows
type Mode string

const (
	ModeSpinner Mode = "spinner"
	ModeError   Mode = "error"
	ModeGrid    Mode = "grid"
	ModeEmpty   Mode = "empty"
)

// Card is one currency in the rate grid
type Card struct {
	Code        models.CurrencyCode `json:"code"`
	Name        string              `json:"name"`
	Rate        float64             `json:"rate"`
	InverseRate float64             `json:"inverse_rate"`
	RateText    string              `json:"rate_text"`
	InverseText string              `json:"inverse_text"`
}

// View is the presentation model derived from a ViewState at a point in time
type View struct {
	Status       poller.Status        `json:"status"`
	BaseCurrency models.CurrencyCode  `json:"base_currency"`
	Mode         Mode                 `json:"mode"`
	Loading      bool                 `json:"loading"`
	HasError     bool                 `json:"has_error"`
	ErrorMessage string               `json:"error_message,omitempty"`
	Message      string               `json:"message,omitempty"`
	Warning      bool                 `json:"warning"`
	Freshness    *freshness.Indicator `json:"freshness,omitempty"`
	Cards        []Card               `json:"cards"`
	RenderedAt   time.Time            `json:"rendered_at"`
}

// Cards lists every rate except the base, sorted by code
func Cards(rates map[models.CurrencyCode]models.RateEntry, base models.CurrencyCode) []Card {
	cards := make([]Card, 0, len(rates))
	for code, entry := range rates {
		if code == base {
			continue
		}
		cards = append(cards, Card{
			Code:        code,
			Name:        entry.Name,
			Rate:        entry.Rate,
			InverseRate: entry.InverseRate,
			RateText:    FormatRate(entry.Rate),
			InverseText: FormatRate(entry.InverseRate),
		})
	}

	sort.Slice(cards, func(i, j int) bool {
		return cards[i].Code < cards[j].Code
	})
	return cards
}

// FormatRate shows a rate with four decimals
func FormatRate(rate float64) string {
	return fmt.Sprintf("%.4f", rate)
}

// Build derives the view for state as of now. It never modifies state.
func Build(now time.Time, state poller.ViewState) View {
	view := View{
		Status:       state.Status,
		BaseCurrency: state.BaseCurrency,
		Loading:      state.Loading,
		HasError:     state.HasError,
		ErrorMessage: state.ErrorMessage,
		Cards:        []Card{},
		RenderedAt:   now,
	}

	switch {
	case state.ShowSpinner():
		view.Mode = ModeSpinner
	case state.ShowBlockingError():
		view.Mode = ModeError
	case state.Snapshot != nil:
		view.Mode = ModeGrid
	default:
		view.Mode = ModeEmpty
	}

	if state.Snapshot != nil {
		indicator := freshness.Summarize(now, *state.Snapshot)
		view.Freshness = &indicator
		view.Cards = Cards(state.Snapshot.Rates, state.BaseCurrency)
		if state.Snapshot.Message != nil {
			view.Message = *state.Snapshot.Message
			view.Warning = state.Snapshot.Freshness == models.FreshnessStale
		}
	}
	return view
}

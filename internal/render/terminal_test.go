package render

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalfonso89/ratewatch/internal/models"
	"github.com/dalfonso89/ratewatch/internal/poller"
)

var testBases = []models.CurrencyCode{"USD", "EUR", "GBP"}

func drawView(t *testing.T, options TerminalOptions, view View) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, NewTerminal(&out, options).Draw(view))
	return out.String()
}

func TestTerminalDrawsGrid(t *testing.T) {
	state := loadedState()
	view := Build(state.Snapshot.LastUpdated.Add(90*time.Second), state)

	output := drawView(t, TerminalOptions{Width: 100, Bases: testBases}, view)

	assert.Contains(t, output, "Currency Exchange Rates  (base USD)")
	assert.Contains(t, output, "Live Data | 1 min ago | 3/3 sources")
	assert.Contains(t, output, "0.8400 EUR")
	assert.Contains(t, output, "1 EUR = 1.1900 USD")
	assert.Contains(t, output, "GBP")
	assert.NotContains(t, output, "US Dollar")
	assert.Contains(t, output, "r retry  1 USD  2 EUR  3 GBP  q quit")
	assert.NotContains(t, output, "\x1b[")
	assert.Less(t, strings.Index(output, "EUR"), strings.Index(output, "GBP"))
}

func TestTerminalLongMultiByteName(t *testing.T) {
	view := View{
		BaseCurrency: "USD",
		Mode:         ModeGrid,
		Cards: []Card{
			{Code: "CNY", Name: strings.Repeat("人民币", 8), RateText: "7.1000", InverseText: "0.1408"},
			{Code: "EUR", Name: "Euro", RateText: "0.8400", InverseText: "1.1900"},
		},
	}

	output := drawView(t, TerminalOptions{Width: 100}, view)

	assert.True(t, utf8.ValidString(output))
	assert.Contains(t, output, "CNY  "+strings.Repeat("人民币", 6)+"人~ ")

	var cny, eur string
	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "CNY"):
			cny = line
		case strings.HasPrefix(line, "EUR"):
			eur = line
		}
	}
	require.NotEmpty(t, cny)
	require.NotEmpty(t, eur)
	assert.Equal(t, utf8.RuneCountInString(eur), utf8.RuneCountInString(cny))
}

func TestPadName(t *testing.T) {
	assert.Equal(t, "Euro  ", padName("Euro", 6))
	assert.Equal(t, "Swiss~", padName("Swiss Franc", 5))
	assert.Equal(t, "日本円 ", padName("日本円", 4))
}

func TestTerminalNarrowHidesInverse(t *testing.T) {
	state := loadedState()

	output := drawView(t, TerminalOptions{Width: 50}, Build(time.Now(), state))

	assert.Contains(t, output, "0.8400 EUR")
	assert.NotContains(t, output, "1 EUR =")
}

func TestTerminalSpinnerAndError(t *testing.T) {
	spinner := drawView(t, TerminalOptions{}, Build(time.Now(), poller.ViewState{
		Status:       poller.StatusLoading,
		BaseCurrency: "EUR",
		Loading:      true,
	}))
	assert.Contains(t, spinner, "Fetching latest exchange rates...")
	assert.Contains(t, spinner, "(base EUR)")

	failed := drawView(t, TerminalOptions{}, Build(time.Now(), poller.ViewState{
		Status:       poller.StatusErrorNoData,
		BaseCurrency: "USD",
		HasError:     true,
		ErrorMessage: poller.BlockingErrorMessage,
	}))
	assert.Contains(t, failed, "Rates Temporarily Unavailable")
	assert.Contains(t, failed, poller.BlockingErrorMessage)
	assert.Contains(t, failed, "Press r to try again.")
}

func TestTerminalCachedAndBanner(t *testing.T) {
	state := loadedState()
	snapshot := *state.Snapshot
	age := 120
	message := "Serving cached rates"
	snapshot.IsCached = true
	snapshot.CacheAgeSeconds = &age
	snapshot.Message = &message
	state.Snapshot = &snapshot

	output := drawView(t, TerminalOptions{}, Build(time.Now(), state))

	assert.Contains(t, output, "Cached 2m0s")
	assert.Contains(t, output, "i Serving cached rates")
}

func TestTerminalRawAndClear(t *testing.T) {
	output := drawView(t, TerminalOptions{Raw: true, Clear: true}, Build(time.Now(), poller.ViewState{Status: poller.StatusIdle}))

	assert.True(t, strings.HasPrefix(output, clearScreen))
	assert.Contains(t, output, "No rates loaded.\r\n")
}

func TestTerminalColor(t *testing.T) {
	output := drawView(t, TerminalOptions{Color: true}, Build(time.Now(), loadedState()))

	assert.Contains(t, output, "\x1b[")
}

func TestUseColor(t *testing.T) {
	assert.True(t, UseColor("always", false))
	assert.False(t, UseColor("never", true))
	assert.False(t, UseColor("auto", false))
}

package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/dalfonso89/ratewatch/internal/freshness"
	"github.com/dalfonso89/ratewatch/internal/models"
)

const (
	clearScreen  = "\x1b[H\x1b[2J"
	defaultWidth = 80
	minWidth     = 40
)

// TerminalOptions configures a Terminal
type TerminalOptions struct {
	Color bool
	// Width of the screen in columns. Zero means 80.
	Width int
	// Raw is set when stdin is in raw mode, which needs explicit carriage returns
	Raw bool
	// Clear redraws from the top of the screen instead of appending
	Clear bool
	Bases []models.CurrencyCode
}

// Terminal draws views as plain text, colored when enabled
type Terminal struct {
	out     io.Writer
	options TerminalOptions

	title   *color.Color
	fresh   *color.Color
	recent  *color.Color
	stale   *color.Color
	muted   *color.Color
	failure *color.Color
	warning *color.Color
	info    *color.Color
	code    *color.Color
}

// NewTerminal creates a renderer writing to out
func NewTerminal(out io.Writer, options TerminalOptions) *Terminal {
	if options.Width <= 0 {
		options.Width = defaultWidth
	}
	if options.Width < minWidth {
		options.Width = minWidth
	}

	t := &Terminal{
		out:     out,
		options: options,
		title:   color.New(color.Bold),
		fresh:   color.New(color.FgGreen, color.Bold),
		recent:  color.New(color.FgYellow, color.Bold),
		stale:   color.New(color.FgRed, color.Bold),
		muted:   color.New(color.Faint),
		failure: color.New(color.FgRed),
		warning: color.New(color.FgYellow),
		info:    color.New(color.FgCyan),
		code:    color.New(color.FgHiWhite, color.Bold),
	}

	for _, c := range []*color.Color{t.title, t.fresh, t.recent, t.stale, t.muted, t.failure, t.warning, t.info, t.code} {
		if options.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t
}

// Draw writes one full screen for view
func (t *Terminal) Draw(view View) error {
	var b strings.Builder
	if t.options.Clear {
		b.WriteString(clearScreen)
	}

	t.line(&b, t.title.Sprintf("Currency Exchange Rates  (base %s)", view.BaseCurrency))
	if view.Freshness != nil {
		t.line(&b, t.freshnessLine(*view.Freshness))
	}
	if view.Message != "" {
		banner := t.info
		if view.Warning {
			banner = t.warning
		}
		t.line(&b, banner.Sprint("i "+view.Message))
	}
	t.line(&b, "")

	switch view.Mode {
	case ModeSpinner:
		t.line(&b, t.muted.Sprint("Fetching latest exchange rates..."))
	case ModeError:
		t.line(&b, t.failure.Sprint("Rates Temporarily Unavailable"))
		t.line(&b, view.ErrorMessage)
		t.line(&b, t.muted.Sprint("Press r to try again."))
	case ModeGrid:
		for _, card := range view.Cards {
			t.line(&b, t.cardLine(card, view.BaseCurrency))
		}
		if view.Loading {
			t.line(&b, t.muted.Sprint("Refreshing..."))
		}
	default:
		t.line(&b, t.muted.Sprint("No rates loaded."))
	}

	t.line(&b, "")
	t.line(&b, t.muted.Sprint(t.helpLine()))

	_, err := io.WriteString(t.out, b.String())
	return err
}

func (t *Terminal) freshnessLine(indicator freshness.Indicator) string {
	var label *color.Color
	switch indicator.Tag {
	case models.FreshnessFresh:
		label = t.fresh
	case models.FreshnessRecent:
		label = t.recent
	case models.FreshnessStale:
		label = t.stale
	default:
		label = t.muted
	}

	parts := []string{label.Sprint(indicator.Label), indicator.Elapsed, indicator.Sources}
	if indicator.Cached {
		cached := "Cached"
		if indicator.CacheAge != "" {
			cached += " " + indicator.CacheAge
		}
		parts = append(parts, cached)
	}
	return strings.Join(parts, " | ")
}

// cardLine lays a card out in one row, dropping the inverse on narrow screens
func (t *Terminal) cardLine(card Card, base models.CurrencyCode) string {
	row := fmt.Sprintf("%s  %s %12s %s", t.code.Sprint(card.Code), padName(card.Name, nameWidth), card.RateText, card.Code)
	if t.options.Width >= 72 {
		row += t.muted.Sprintf("   1 %s = %s %s", card.Code, card.InverseText, base)
	}
	return row
}

const nameWidth = 20

// padName fits name into width runes, cutting it with a trailing ~
func padName(name string, width int) string {
	runes := []rune(name)
	if len(runes) > width {
		runes = append(runes[:width-1], '~')
	}
	return string(runes) + strings.Repeat(" ", width-len(runes))
}

func (t *Terminal) helpLine() string {
	help := "r retry"
	limit := len(t.options.Bases)
	if limit > 9 {
		limit = 9
	}
	for i := 0; i < limit; i++ {
		help += fmt.Sprintf("  %d %s", i+1, t.options.Bases[i])
	}
	return help + "  q quit"
}

func (t *Terminal) line(b *strings.Builder, text string) {
	b.WriteString(text)
	if t.options.Raw {
		b.WriteString("\r\n")
		return
	}
	b.WriteString("\n")
}

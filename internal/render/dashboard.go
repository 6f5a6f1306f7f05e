package render

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"

	"github.com/dalfonso89/ratewatch/internal/clock"
	"github.com/dalfonso89/ratewatch/internal/logger"
	"github.com/dalfonso89/ratewatch/internal/models"
	"github.com/dalfonso89/ratewatch/internal/poller"
)

// ErrQuit is returned by Dashboard.Run when the user asks to quit
var ErrQuit = errors.New("render: quit requested")

const ctrlC = 0x03

// ViewSource is the read side of the poller plus its presentation callbacks
type ViewSource interface {
	Subscribe() (<-chan poller.ViewState, func())
	OnRetry()
	OnBaseCurrencyChange(base models.CurrencyCode)
}

// Dashboard redraws the terminal on every state change and on a fixed
// interval, so elapsed labels keep moving while the rates do not.
type Dashboard struct {
	source   ViewSource
	terminal *Terminal
	input    io.Reader
	bases    []models.CurrencyCode
	clock    clock.Clock
	interval time.Duration
	logger   *logger.Logger
}

// DashboardOptions configures a Dashboard
type DashboardOptions struct {
	// Input supplies key presses. Nil disables key handling.
	Input          io.Reader
	Bases          []models.CurrencyCode
	Clock          clock.Clock
	RedrawInterval time.Duration
}

// NewDashboard creates a dashboard drawing source onto terminal
func NewDashboard(source ViewSource, terminal *Terminal, logger *logger.Logger, options DashboardOptions) *Dashboard {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.RedrawInterval <= 0 {
		options.RedrawInterval = 15 * time.Second
	}
	return &Dashboard{
		source:   source,
		terminal: terminal,
		input:    options.Input,
		bases:    options.Bases,
		clock:    options.Clock,
		interval: options.RedrawInterval,
		logger:   logger,
	}
}

// Run draws until ctx is done or the user quits, in which case it
// returns ErrQuit
func (d *Dashboard) Run(ctx context.Context) error {
	updates, unsubscribe := d.source.Subscribe()
	defer unsubscribe()

	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	keys := d.readKeys(ctx)

	var latest poller.ViewState
	for {
		select {
		case <-ctx.Done():
			return nil

		case state, ok := <-updates:
			if !ok {
				return nil
			}
			latest = state
			d.draw(latest)

		case <-ticker.C():
			d.draw(latest)

		case key, ok := <-keys:
			if !ok {
				// input closed; keep drawing without key handling
				keys = nil
				continue
			}
			if quit := d.handleKey(key); quit {
				return ErrQuit
			}
		}
	}
}

// handleKey maps a key press to a callback and reports whether to quit
func (d *Dashboard) handleKey(key byte) bool {
	switch {
	case key == 'q' || key == 'Q' || key == ctrlC:
		return true
	case key == 'r' || key == 'R':
		d.logger.Debug("Retry requested from dashboard")
		d.source.OnRetry()
	case key >= '1' && key <= '9':
		index := int(key - '1')
		if index < len(d.bases) {
			d.source.OnBaseCurrencyChange(d.bases[index])
		}
	}
	return false
}

func (d *Dashboard) draw(state poller.ViewState) {
	if err := d.terminal.Draw(Build(d.clock.Now(), state)); err != nil {
		d.logger.WithError(err).Warn("Failed to draw dashboard")
	}
}

// readKeys forwards single bytes from the input. The reader goroutine ends
// when the input does; a blocked read outlives ctx.
func (d *Dashboard) readKeys(ctx context.Context) <-chan byte {
	if d.input == nil {
		return nil
	}

	keys := make(chan byte)
	go func() {
		defer close(keys)
		reader := bufio.NewReader(d.input)
		for {
			key, err := reader.ReadByte()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					d.logger.WithError(err).Warn("Dashboard input closed")
				}
				return
			}
			select {
			case keys <- key:
			case <-ctx.Done():
				return
			}
		}
	}()
	return keys
}

// Package poller owns the refresh lifecycle of the rates view: the repeating
// fetch, manual retry, base currency switches, and the view state they
// produce.
//
// A single loop goroutine owns the view state. Fetches run on their own
// goroutines and hand results back to the loop, which applies a result only
// if it belongs to the latest fetch of the current activation.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/ratewatch/internal/clock"
	"github.com/dalfonso89/ratewatch/internal/logger"
	"github.com/dalfonso89/ratewatch/internal/metrics"
	"github.com/dalfonso89/ratewatch/internal/models"
)

var (
	// ErrNotRunning is returned by commands sent to a stopped controller
	ErrNotRunning = errors.New("poller: controller is not running")
	// ErrAlreadyRunning is returned by Start on an active controller
	ErrAlreadyRunning = errors.New("poller: controller already running")
	// ErrEmptyBase is returned by SetBaseCurrency for an empty code
	ErrEmptyBase = errors.New("poller: empty base currency")
)

// Options configures a Controller
type Options struct {
	Interval time.Duration
	Base     models.CurrencyCode
	Clock    clock.Clock
	Metrics  *metrics.RatesMetrics
}

type commandKind int

const (
	commandRetry commandKind = iota
	commandSetBase
)

type command struct {
	kind  commandKind
	base  models.CurrencyCode
	reply chan error
}

type fetchResult struct {
	generation uint64
	sequence   uint64
	base       models.CurrencyCode
	snapshot   models.RateSnapshot
	err        error
}

// loopState is owned by the loop goroutine
type loopState struct {
	view       ViewState
	latestSeq  uint64
	inFlight   bool
	generation uint64
}

// Controller polls a Fetcher on a fixed interval and maintains the ViewState
type Controller struct {
	fetcher  Fetcher
	logger   *logger.Logger
	metrics  *metrics.RatesMetrics
	clock    clock.Clock
	interval time.Duration
	base     models.CurrencyCode

	lifecycleMu sync.Mutex
	running     bool
	generation  uint64
	cancel      context.CancelFunc
	commands    chan command
	done        chan struct{}

	stateMu   sync.RWMutex
	published ViewState

	subscribersMu sync.Mutex
	subscribers   map[int]chan ViewState
	nextID        int
}

// NewController creates a stopped controller
func NewController(fetcher Fetcher, logger *logger.Logger, options Options) *Controller {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Interval <= 0 {
		options.Interval = 60 * time.Second
	}
	if options.Base == "" {
		options.Base = "USD"
	}

	return &Controller{
		fetcher:     fetcher,
		logger:      logger,
		metrics:     options.Metrics,
		clock:       options.Clock,
		interval:    options.Interval,
		base:        options.Base,
		published:   ViewState{Status: StatusIdle, BaseCurrency: options.Base},
		subscribers: make(map[int]chan ViewState),
	}
}

// Start activates the view: it acquires the ticker and issues the first
// fetch immediately. Stop releases everything Start acquired. Every
// activation begins empty with the configured base currency.
func (controller *Controller) Start(ctx context.Context) error {
	controller.lifecycleMu.Lock()
	defer controller.lifecycleMu.Unlock()

	if controller.running {
		return ErrAlreadyRunning
	}

	controller.generation++
	loopCtx, cancel := context.WithCancel(ctx)
	ticker := controller.clock.NewTicker(controller.interval)

	controller.running = true
	controller.cancel = cancel
	controller.commands = make(chan command)
	controller.done = make(chan struct{})

	state := &loopState{
		generation: controller.generation,
		view: ViewState{
			Status:       StatusIdle,
			BaseCurrency: controller.base,
			Generation:   controller.generation,
		},
	}

	controller.logger.WithFields(logrus.Fields{
		"base":       controller.base.String(),
		"interval":   controller.interval.String(),
		"generation": controller.generation,
	}).Info("Rates poller started")

	go controller.loop(loopCtx, state, ticker, controller.commands, controller.done)
	return nil
}

// Stop deactivates the view. It is safe to call more than once and returns
// after the ticker is released and the loop has exited. Results of fetches
// still in flight are discarded.
func (controller *Controller) Stop() {
	controller.lifecycleMu.Lock()
	defer controller.lifecycleMu.Unlock()

	if !controller.running {
		return
	}

	controller.cancel()
	<-controller.done
	controller.running = false

	controller.publish(ViewState{
		Status:       StatusIdle,
		BaseCurrency: controller.State().BaseCurrency,
		Generation:   controller.generation,
	})
	controller.logger.WithField("generation", controller.generation).Info("Rates poller stopped")
}

// Run starts the controller and blocks until ctx is done, then stops it
func (controller *Controller) Run(ctx context.Context) error {
	if err := controller.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	controller.Stop()
	return nil
}

// Running reports whether the controller is active
func (controller *Controller) Running() bool {
	controller.lifecycleMu.Lock()
	defer controller.lifecycleMu.Unlock()
	return controller.running
}

// Retry issues an immediate fetch for the current base. It is meant for
// the blocking error view; elsewhere it is a redundant refresh.
func (controller *Controller) Retry() error {
	return controller.send(command{kind: commandRetry})
}

// SetBaseCurrency switches the view to base. The current snapshot is
// discarded at once and a fetch for base is issued. Switching to the
// current base does nothing. base is normalized but not checked against
// any list.
func (controller *Controller) SetBaseCurrency(base models.CurrencyCode) error {
	base = base.Normalize()
	if base == "" {
		return ErrEmptyBase
	}
	return controller.send(command{kind: commandSetBase, base: base})
}

// OnRetry is the presentation callback for a retry request. Failures are
// logged, never returned.
func (controller *Controller) OnRetry() {
	if err := controller.Retry(); err != nil {
		controller.logger.WithError(err).Warn("Retry ignored")
	}
}

// OnBaseCurrencyChange is the presentation callback for a base switch
func (controller *Controller) OnBaseCurrencyChange(base models.CurrencyCode) {
	if err := controller.SetBaseCurrency(base); err != nil {
		controller.logger.WithError(err).WithField("base", base.String()).Warn("Base currency change ignored")
	}
}

// State returns a copy of the current view state
func (controller *Controller) State() ViewState {
	controller.stateMu.RLock()
	defer controller.stateMu.RUnlock()
	return controller.published
}

// Subscribe returns a channel that always holds the most recent state not
// yet received. It starts with the current state. The returned func
// unsubscribes and closes the channel.
func (controller *Controller) Subscribe() (<-chan ViewState, func()) {
	updates := make(chan ViewState, 1)

	controller.subscribersMu.Lock()
	id := controller.nextID
	controller.nextID++
	controller.subscribers[id] = updates
	updates <- controller.State()
	controller.subscribersMu.Unlock()

	var once sync.Once
	return updates, func() {
		once.Do(func() {
			controller.subscribersMu.Lock()
			defer controller.subscribersMu.Unlock()
			delete(controller.subscribers, id)
			close(updates)
		})
	}
}

func (controller *Controller) send(cmd command) error {
	controller.lifecycleMu.Lock()
	running, commands, done := controller.running, controller.commands, controller.done
	controller.lifecycleMu.Unlock()

	if !running {
		return ErrNotRunning
	}

	cmd.reply = make(chan error, 1)
	select {
	case commands <- cmd:
	case <-done:
		return ErrNotRunning
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-done:
		return ErrNotRunning
	}
}

func (controller *Controller) loop(ctx context.Context, state *loopState, ticker clock.Ticker, commands <-chan command, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	results := make(chan fetchResult)
	controller.issue(ctx, state, results, metrics.TriggerStart)

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C():
			if state.inFlight {
				controller.metrics.TickSkipped()
				controller.logger.Debug("Refresh tick skipped, fetch already in flight")
				continue
			}
			controller.issue(ctx, state, results, metrics.TriggerTick)

		case cmd := <-commands:
			cmd.reply <- controller.handle(ctx, state, results, cmd)

		case result := <-results:
			controller.apply(state, result)
		}
	}
}

func (controller *Controller) handle(ctx context.Context, state *loopState, results chan fetchResult, cmd command) error {
	switch cmd.kind {
	case commandRetry:
		state.view.ErrorMessage = ""
		controller.issue(ctx, state, results, metrics.TriggerRetry)
		return nil

	case commandSetBase:
		if cmd.base == state.view.BaseCurrency {
			return nil
		}
		controller.logger.WithFields(logrus.Fields{
			"from": state.view.BaseCurrency.String(),
			"to":   cmd.base.String(),
		}).Info("Base currency changed")

		// the old base's snapshot is never shown for the new base
		state.view.BaseCurrency = cmd.base
		state.view.Snapshot = nil
		state.view.HasError = false
		state.view.ErrorMessage = ""
		state.view.LastError = ""
		controller.issue(ctx, state, results, metrics.TriggerBaseChange)
		return nil
	}
	return nil
}

// issue starts a fetch tagged with the next sequence number and moves the
// view to loading
func (controller *Controller) issue(ctx context.Context, state *loopState, results chan<- fetchResult, trigger string) {
	state.latestSeq++
	state.inFlight = true
	state.view.Status = StatusLoading
	state.view.Loading = true
	controller.publish(state.view)
	controller.metrics.FetchIssued(trigger)

	generation, sequence, base := state.generation, state.latestSeq, state.view.BaseCurrency
	controller.logger.WithFields(logrus.Fields{
		"base":     base.String(),
		"trigger":  trigger,
		"sequence": sequence,
	}).Debug("Fetching rates")

	go func() {
		snapshot, err := controller.fetcher.FetchRates(ctx, base)
		select {
		case results <- fetchResult{generation: generation, sequence: sequence, base: base, snapshot: snapshot, err: err}:
		case <-ctx.Done():
			controller.metrics.ResultDropped(metrics.DiscardInactive)
		}
	}()
}

func (controller *Controller) apply(state *loopState, result fetchResult) {
	if result.generation != state.generation || result.sequence != state.latestSeq {
		controller.metrics.ResultDropped(metrics.DiscardSuperseded)
		controller.logger.WithFields(logrus.Fields{
			"base":     result.base.String(),
			"sequence": result.sequence,
			"latest":   state.latestSeq,
		}).Debug("Discarding superseded fetch result")
		return
	}

	now := controller.clock.Now()
	state.inFlight = false
	state.view.Loading = false
	state.view.LastAttempt = now

	log := controller.logger.WithField("base", result.base.String())

	if result.err == nil {
		snapshot := result.snapshot
		state.view.Snapshot = &snapshot
		state.view.Status = StatusLoaded
		state.view.HasError = false
		state.view.ErrorMessage = ""
		state.view.LastError = ""

		controller.metrics.SnapshotApplied(now.Sub(snapshot.LastUpdated).Seconds(), snapshot.SourcesUsed)
		log.WithFields(logrus.Fields{
			"currencies": len(snapshot.Rates),
			"freshness":  string(snapshot.Freshness),
			"cached":     snapshot.IsCached,
		}).Info("Rates updated")
	} else {
		state.view.HasError = true
		state.view.LastError = result.err.Error()

		if state.view.Snapshot != nil {
			state.view.Status = StatusLoadedWithError
			log.WithError(result.err).Warn("Rate refresh failed, keeping last good snapshot")
		} else {
			state.view.Status = StatusErrorNoData
			state.view.ErrorMessage = BlockingErrorMessage
			log.WithError(result.err).Error("Rate fetch failed with no data to show")
		}
	}

	controller.publish(state.view)
}

func (controller *Controller) publish(view ViewState) {
	controller.stateMu.Lock()
	controller.published = view
	controller.stateMu.Unlock()

	controller.metrics.SetStatus(string(view.Status), AllStatuses)

	controller.subscribersMu.Lock()
	defer controller.subscribersMu.Unlock()
	for _, updates := range controller.subscribers {
		// keep only the newest state in the one-slot buffer
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- view:
		default:
		}
	}
}

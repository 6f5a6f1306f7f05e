package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dalfonso89/ratewatch/internal/api"
	"github.com/dalfonso89/ratewatch/internal/client"
	"github.com/dalfonso89/ratewatch/internal/config"
	"github.com/dalfonso89/ratewatch/internal/logger"
	"github.com/dalfonso89/ratewatch/internal/metrics"
	"github.com/dalfonso89/ratewatch/internal/platform"
	"github.com/dalfonso89/ratewatch/internal/poller"
	"github.com/dalfonso89/ratewatch/internal/ratelimit"
	"github.com/dalfonso89/ratewatch/internal/render"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ratewatch:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// the dashboard owns stdout, so logs go to a file while it runs
	log := logger.New(cfg.LogLevel)
	if cfg.DashboardEnabled {
		fileLogger, closer, err := logger.NewFileLogger(cfg.LogLevel, cfg.LogFile)
		if err != nil {
			return err
		}
		defer closer.Close()
		log = fileLogger
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rateMetrics := metrics.NewRatesMetrics(registry)

	ratesClient := client.NewRatesClient(cfg, log, rateMetrics)
	controller := poller.NewController(ratesClient, log, poller.Options{
		Interval: cfg.RefreshInterval,
		Base:     cfg.DefaultBaseCurrency,
		Metrics:  rateMetrics,
	})

	shutdownCtx, stop := platform.NewShutdownContext(context.Background())
	defer stop()

	group, ctx := errgroup.WithContext(shutdownCtx)

	group.Go(func() error {
		return controller.Run(ctx)
	})

	if cfg.ViewEnabled {
		gin.SetMode(gin.ReleaseMode)

		rateLimiter := ratelimit.NewLimiter(cfg, log)
		defer rateLimiter.Stop()

		handlers := api.NewHandlers(api.HandlerConfig{
			Logger:        log,
			Configuration: cfg,
			Controller:    controller,
			Backend:       ratesClient,
			RateLimiter:   rateLimiter,
			Gatherer:      registry,
		})
		server := api.NewServer(":"+cfg.ViewPort, handlers.SetupRoutes(), log)
		group.Go(func() error {
			return server.Run(ctx)
		})
	}

	if cfg.DashboardEnabled {
		console, err := render.OpenConsole(cfg.DashboardColor)
		if err != nil {
			return fmt.Errorf("failed to prepare terminal: %w", err)
		}
		defer console.Close()

		options := console.Options
		options.Bases = cfg.SupportedBaseCurrencies
		dashboard := render.NewDashboard(controller, render.NewTerminal(os.Stdout, options), log, render.DashboardOptions{
			Input:          console.Input,
			Bases:          cfg.SupportedBaseCurrencies,
			RedrawInterval: cfg.RedrawInterval,
		})
		group.Go(func() error {
			return dashboard.Run(ctx)
		})
	}

	log.WithField("backend", cfg.RatesBaseURL).Info("ratewatch started")

	if err := group.Wait(); err != nil && !errors.Is(err, render.ErrQuit) {
		log.WithError(err).Error("ratewatch stopped with error")
		return err
	}

	log.Info("ratewatch exited")
	return nil
}

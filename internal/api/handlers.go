// Package api serves the rates view over HTTP: the current view as JSON, a
// server-sent event stream of it, and the retry and base change commands.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/ratewatch/internal/config"
	"github.com/dalfonso89/ratewatch/internal/logger"
	"github.com/dalfonso89/ratewatch/internal/middleware"
	"github.com/dalfonso89/ratewatch/internal/models"
	"github.com/dalfonso89/ratewatch/internal/poller"
	"github.com/dalfonso89/ratewatch/internal/ratelimit"
	"github.com/dalfonso89/ratewatch/internal/render"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// ViewController is what the view server needs from the poller
type ViewController interface {
	State() poller.ViewState
	Subscribe() (<-chan poller.ViewState, func())
	Retry() error
	SetBaseCurrency(base models.CurrencyCode) error
	Running() bool
}

// BackendProber checks that the rates backend is reachable
type BackendProber interface {
	Health(ctx context.Context) error
}

// HandlerConfig contains all dependencies for the Handlers
type HandlerConfig struct {
	Logger        *logger.Logger
	Configuration *config.Config
	Controller    ViewController
	Backend       BackendProber
	RateLimiter   *ratelimit.Limiter
	Gatherer      prometheus.Gatherer
}

// Handlers contains all HTTP handlers
type Handlers struct {
	logger        *logger.Logger
	configuration *config.Config
	controller    ViewController
	backend       BackendProber
	rateLimiter   *ratelimit.Limiter
	gatherer      prometheus.Gatherer
	startTime     time.Time
	now           func() time.Time
}

// ViewResponse is the body of GET /api/v1/view and of each stream event
type ViewResponse struct {
	render.View
	Snapshot    *models.RateSnapshot `json:"snapshot,omitempty"`
	LastError   string               `json:"last_error,omitempty"`
	LastAttempt time.Time            `json:"last_attempt"`
	Generation  uint64               `json:"generation"`
}

// NewHandlers creates a new handlers instance with all dependencies
func NewHandlers(handlerConfig HandlerConfig) *Handlers {
	return &Handlers{
		logger:        handlerConfig.Logger,
		configuration: handlerConfig.Configuration,
		controller:    handlerConfig.Controller,
		backend:       handlerConfig.Backend,
		rateLimiter:   handlerConfig.RateLimiter,
		gatherer:      handlerConfig.Gatherer,
		startTime:     time.Now(),
		now:           time.Now,
	}
}

// SetupRoutes configures all the routes using Gin
func (handlers *Handlers) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(handlers.logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(handlers.configuration.CORSAllowedOrigins))

	router.GET("/health", handlers.HealthCheck)
	if handlers.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(handlers.gatherer, promhttp.HandlerOpts{})))
	}

	// only commands are throttled; reads are cheap copies of the view state
	command := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		if handlers.rateLimiter == nil {
			return []gin.HandlerFunc{handler}
		}
		return []gin.HandlerFunc{handlers.rateLimiter.Middleware(), handler}
	}

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/view", handlers.GetView)
		apiV1.GET("/view/stream", handlers.StreamView)
		apiV1.POST("/retry", command(handlers.Retry)...)
		apiV1.PUT("/base", command(handlers.ChangeBase)...)
	}

	return router
}

// HealthCheck reports the view server, poller and backend status
func (handlers *Handlers) HealthCheck(context *gin.Context) {
	healthStatus := "healthy"

	controllerStatus := "stopped"
	if handlers.controller.Running() {
		controllerStatus = string(handlers.controller.State().Status)
	} else {
		healthStatus = "degraded"
	}

	backendStatus := "unknown"
	if handlers.backend != nil {
		if err := handlers.backend.Health(context.Request.Context()); err != nil {
			backendStatus = "unreachable"
			healthStatus = "degraded"
			handlers.logger.WithError(err).Warn("Backend health check failed")
		} else {
			backendStatus = "reachable"
		}
	}

	context.JSON(http.StatusOK, models.HealthCheck{
		Status:     healthStatus,
		Timestamp:  handlers.now(),
		Version:    Version,
		Uptime:     time.Since(handlers.startTime).String(),
		Controller: controllerStatus,
		Backend:    backendStatus,
	})
}

// GetView returns the current view
func (handlers *Handlers) GetView(context *gin.Context) {
	context.JSON(http.StatusOK, handlers.viewResponse(handlers.controller.State()))
}

// StreamView sends the view as a "view" event on every state change, and
// again every redraw interval so elapsed labels stay current
func (handlers *Handlers) StreamView(context *gin.Context) {
	updates, unsubscribe := handlers.controller.Subscribe()
	defer unsubscribe()

	redraw := handlers.configuration.RedrawInterval
	if redraw <= 0 {
		redraw = 15 * time.Second
	}
	ticker := time.NewTicker(redraw)
	defer ticker.Stop()

	context.Header("Cache-Control", "no-cache")
	context.Header("X-Accel-Buffering", "no")

	latest := handlers.controller.State()
	requestContext := context.Request.Context()

	context.Stream(func(w io.Writer) bool {
		select {
		case <-requestContext.Done():
			return false
		case state, ok := <-updates:
			if !ok {
				return false
			}
			latest = state
		case <-ticker.C:
		}
		context.SSEvent("view", handlers.viewResponse(latest))
		return true
	})
}

// Retry asks the poller for an immediate fetch
func (handlers *Handlers) Retry(context *gin.Context) {
	if err := handlers.controller.Retry(); err != nil {
		handlers.commandError(context, err)
		return
	}

	handlers.logger.WithField("request_id", context.GetString(middleware.RequestIDKey)).Info("Retry requested")
	context.JSON(http.StatusAccepted, handlers.viewResponse(handlers.controller.State()))
}

// ChangeBase switches the base currency to one of the supported bases
func (handlers *Handlers) ChangeBase(context *gin.Context) {
	var request models.BaseChangeRequest
	if err := context.ShouldBindJSON(&request); err != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	base := models.CurrencyCode(request.Base).Normalize()
	if !handlers.configuration.IsSupportedBase(base) {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "unsupported base currency", base.String()+" is not a selectable base currency")
		return
	}

	if err := handlers.controller.SetBaseCurrency(base); err != nil {
		handlers.commandError(context, err)
		return
	}

	handlers.logger.WithFields(logrus.Fields{
		"base":       base.String(),
		"request_id": context.GetString(middleware.RequestIDKey),
	}).Info("Base currency change requested")
	context.JSON(http.StatusAccepted, handlers.viewResponse(handlers.controller.State()))
}

func (handlers *Handlers) viewResponse(state poller.ViewState) ViewResponse {
	return ViewResponse{
		View:        render.Build(handlers.now(), state),
		Snapshot:    state.Snapshot,
		LastError:   state.LastError,
		LastAttempt: state.LastAttempt,
		Generation:  state.Generation,
	}
}

func (handlers *Handlers) commandError(context *gin.Context, err error) {
	if errors.Is(err, poller.ErrNotRunning) {
		handlers.writeErrorResponse(context, http.StatusServiceUnavailable, "poller not running", err.Error())
		return
	}
	handlers.writeErrorResponse(context, http.StatusBadRequest, "command rejected", err.Error())
}

// writeErrorResponse writes an error response using Gin context
func (handlers *Handlers) writeErrorResponse(context *gin.Context, statusCode int, errorMessage, errorDetails string) {
	context.JSON(statusCode, models.ErrorResponse{
		Error:   errorMessage,
		Message: errorDetails,
		Code:    statusCode,
	})
}

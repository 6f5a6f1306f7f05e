package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dalfonso89/ratewatch/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// Server runs the view server until its context is cancelled
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
}

// NewServer wraps handler in an http.Server listening on addr. WriteTimeout
// is left unset because the view stream is long lived.
func NewServer(addr string, handler http.Handler, logger *logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Run listens on the configured address and serves until ctx is done
func (server *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", server.httpServer.Addr)
	if err != nil {
		return err
	}
	return server.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done, then shuts down gracefully
func (server *Server) Serve(ctx context.Context, listener net.Listener) error {
	// requests inherit ctx so open view streams end on shutdown
	server.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	serveErr := make(chan error, 1)
	go func() {
		server.logger.WithField("addr", listener.Addr().String()).Info("View server listening")
		serveErr <- server.httpServer.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	server.logger.Info("Shutting down view server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.httpServer.Shutdown(shutdownCtx); err != nil {
		server.httpServer.Close()
		return err
	}
	return nil
}

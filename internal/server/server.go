// Package server assembles the HTTP front end: the middleware chain around
// the WebDAV dispatcher, the main listener and the optional metrics listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/browncloud/davfs/internal/logger"
	"github.com/browncloud/davfs/internal/ratelimiter"
	"github.com/browncloud/davfs/internal/users"
	"github.com/browncloud/davfs/internal/webdav"
	"github.com/browncloud/davfs/pkg/metrics"
)

// Server is the WebDAV HTTP server.
type Server struct {
	listen          string
	metricsListen   string
	shutdownTimeout time.Duration
	handler         http.Handler

	httpServer    *http.Server
	metricsServer *http.Server
}

// Options carries everything New needs to assemble the middleware chain.
type Options struct {
	// Listen is the main listener address, e.g. ":8080".
	Listen string

	// MetricsListen exposes /metrics on its own listener when non-empty.
	MetricsListen string

	// ShutdownTimeout bounds the graceful-shutdown drain.
	ShutdownTimeout time.Duration

	Dispatcher *webdav.Dispatcher
	Users      *users.Store
	Limiter    *ratelimiter.RateLimiter
}

// New assembles the middleware chain around the dispatcher. Order matters:
// the rate limiter runs first so rejected requests never hit authentication,
// and the access log wraps everything so rejections are logged too.
func New(opts Options) *Server {
	var handler http.Handler = opts.Dispatcher
	handler = withAuthentication(opts.Users, handler)
	if opts.Limiter != nil {
		handler = withRateLimit(opts.Limiter, handler)
	}
	handler = withAccessLog(handler)

	return &Server{
		listen:          opts.Listen,
		metricsListen:   opts.MetricsListen,
		shutdownTimeout: opts.ShutdownTimeout,
		handler:         handler,
	}
}

// Handler returns the assembled middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve runs the listeners until ctx is cancelled, then drains in-flight
// requests within the shutdown timeout.
func (s *Server) Serve(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.listen,
		Handler: s.handler,
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("WebDAV server listening on %s", s.listen)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("webdav listener: %w", err)
		}
	}()

	if s.metricsListen != "" && metrics.IsEnabled() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
		s.metricsServer = &http.Server{Addr: s.metricsListen, Handler: mux}
		go func() {
			logger.Info("metrics listening on %s", s.metricsListen)
			if err := s.metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics listener: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down, draining in-flight requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		shutdownErr = fmt.Errorf("webdav shutdown: %w", err)
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil && shutdownErr == nil {
			shutdownErr = fmt.Errorf("metrics shutdown: %w", err)
		}
	}
	return shutdownErr
}

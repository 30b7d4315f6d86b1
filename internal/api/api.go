// Package api provides the HTTP ingress for ackrelay.
//
// It exposes the provider webhook endpoints (acknowledgment callbacks and
// inbound messages), a health probe, and the Prometheus metrics endpoint.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/orbitdesk/ackrelay/internal/ack"
	"github.com/orbitdesk/ackrelay/internal/conversation"
	"github.com/orbitdesk/ackrelay/internal/identity"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default server timeouts.
const (
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// Server wires the webhook handlers to the reconciliation core.
type Server struct {
	updater  *ack.Updater
	resolver *identity.Resolver
	conv     conversation.Service
	httpSrv  *http.Server
}

// NewServer creates an API server listening on addr.
func NewServer(addr string, updater *ack.Updater, resolver *identity.Resolver, conv conversation.Service) *Server {
	s := &Server{
		updater:  updater,
		resolver: resolver,
		conv:     conv,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/ack", s.ackWebhookHandler)
	mux.HandleFunc("/webhooks/message", s.messageWebhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
	return s
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		slog.Info("Server.Run: shutting down")
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// Package rpc exposes the relay node's public HTTP surface: job intake,
// job status queries, and the health endpoint.
package rpc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/SeungheonOh/xreserve-relay/relayer/db"
	"github.com/SeungheonOh/xreserve-relay/runtime"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

var _ runtime.Service = (*Service)(nil)

// Config options for the intake API service.
type Config struct {
	Host     string
	Port     int
	Database db.Database
}

// Service serves the relay intake API over HTTP.
type Service struct {
	cfg          *Config
	server       *http.Server
	limiters     *clientLimiters
	startFailure error
}

// NewService sets up the router, throttle, and CORS policy.
func NewService(cfg *Config) *Service {
	s := &Service{
		cfg:      cfg,
		limiters: newClientLimiters(),
	}

	router := mux.NewRouter()
	router.Use(s.throttleMiddleware)
	router.HandleFunc("/relay", s.SubmitRelay).Methods(http.MethodPost)
	router.HandleFunc("/relay/{txHash}", s.GetRelayJob).Methods(http.MethodGet)
	router.HandleFunc("/health", s.GetHealth).Methods(http.MethodGet)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(router)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
	}
	return s
}

// Start the HTTP listener.
func (s *Service) Start() {
	go func() {
		log.WithField("address", s.server.Addr).Info("Starting relay API server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Could not serve relay API")
			s.startFailure = err
		}
	}()
}

// Stop the server gracefully, letting in-flight requests drain.
func (s *Service) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status reports a listener failure, if any occurred.
func (s *Service) Status() error {
	return s.startFailure
}

// Package api implements the HTTP surface of the route solver: batch solves,
// stored runs, live run events (SSE and WebSocket) and webhook subscriptions.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"ottoroute/internal/auth"
	"ottoroute/internal/config"
	"ottoroute/internal/metrics"
	"ottoroute/internal/mip"
	"ottoroute/internal/store"
	"ottoroute/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker
	Cfg    config.Config
	// MIP backs IP solves; nil selects the in-process branch-and-bound.
	MIP mip.Solver

	limiter *clientLimiter

	// ctx outlives requests and is cancelled by Close; async runs derive from it.
	ctx    context.Context
	cancel context.CancelFunc
	async  sync.WaitGroup
}

// NewServer wires a Server from cfg. Without DATABASE_URL it uses the
// in-memory store; without REDIS_URL the in-process broker.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sp.Migrate(context.Background()); err != nil {
			return nil, err
		}
		s = sp
	}
	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			log.Printf("api: redis broker unavailable, using in-process broker: %v", err)
		} else {
			broker = rb
		}
	}
	verifier, err := auth.NewVerifier(cfg.AuthMode, cfg.AuthSecret)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		Store:   s,
		Pub:     webhooks.NewPublisher(s),
		Auth:    verifier,
		Broker:  broker,
		Cfg:     cfg,
		limiter: newClientLimiter(cfg.RateRPS, cfg.RateBurst),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (s *Server) lifetime() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Close cancels in-flight async runs and waits for them to finish.
func (s *Server) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.async.Wait()
}

// Routes returns the full handler: routing plus request id, rate limiting,
// metrics and access logging.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Solving
	mux.HandleFunc("POST /v1/solve", s.SolveHandler)
	mux.HandleFunc("GET /v1/solve/ws", s.SolveWSHandler)
	mux.HandleFunc("GET /v1/config", s.ConfigHandler)

	// Runs
	mux.HandleFunc("GET /v1/runs", s.RunsIndexHandler)
	mux.HandleFunc("GET /v1/runs/{id}", s.RunByIDHandler)
	mux.HandleFunc("GET /v1/runs/{id}/events/stream", s.RunEventsHandler)

	// Subscriptions
	mux.HandleFunc("POST /v1/subscriptions", s.admin(s.CreateSubscriptionHandler))
	mux.HandleFunc("GET /v1/subscriptions", s.admin(s.ListSubscriptionsHandler))
	mux.HandleFunc("DELETE /v1/subscriptions/{id}", s.admin(s.DeleteSubscriptionHandler))

	// Admin
	mux.HandleFunc("GET /v1/admin/webhook-deliveries", s.admin(s.WebhookDeliveriesHandler))
	mux.HandleFunc("POST /v1/admin/webhook-deliveries/{id}/retry", s.admin(s.WebhookDeliveryRetryHandler))
	mux.HandleFunc("GET /v1/admin/stats", s.admin(s.SolveStatsHandler))

	// Health, metrics, docs
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /debug", s.admin(s.DebugJSON))
	mux.HandleFunc("GET /openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("GET /openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("GET /docs", s.DocsHandler)

	var h http.Handler = mux
	h = s.rateLimit(h)
	h = metricsMiddleware(h)
	h = logMiddleware(h)
	h = requestID(h)
	return h
}

// admin guards next with the configured verifier.
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.Auth.FromHeader(r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
			return
		}
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		next(w, r)
	}
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Cfg.WebhookMaxAttempts)
}

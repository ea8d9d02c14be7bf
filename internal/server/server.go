// Package server wires the HTTP router, middleware and handlers.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"arcade-backend/internal/config"
	"arcade-backend/internal/handler"
)

// TokenVerifier resolves a bearer token to an account id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// HealthChecker reports whether the database is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds everything the router needs.
type Dependencies struct {
	Config   config.ServerConfig
	Verifier TokenVerifier
	Health   HealthChecker

	Account *handler.AccountHandler
	Game    *handler.GameHandler
	Shop    *handler.ShopHandler
	Reward  *handler.RewardHandler
	Ranking *handler.RankingHandler
	Events  *handler.EventHandler
}

// Server is the arcade HTTP API.
type Server struct {
	http *http.Server
	cfg  config.ServerConfig
}

// New creates a Server listening on cfg.Addr.
func New(deps *Dependencies) *Server {
	return &Server{
		cfg: deps.Config,
		http: &http.Server{
			Addr:              deps.Config.Addr,
			Handler:           NewRouter(deps),
			ReadTimeout:       deps.Config.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      deps.Config.WriteTimeout,
		},
	}
}

// NewRouter builds the route table.
func NewRouter(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	origins := deps.Config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(log.Logger))
	r.Use(RecoveryMiddleware())
	r.Use(MetricsMiddleware())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", handler.IdempotencyHeader},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", healthz(deps.Health))

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/shop/items", deps.Shop.ListItems)
		r.Get("/leaderboard", deps.Ranking.Leaderboard)

		r.With(OptionalAuthMiddleware(deps.Verifier)).Post("/events", deps.Events.Track)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(deps.Verifier))

			r.Get("/wallet", deps.Account.GetWallet)
			r.Get("/wallet/transactions", deps.Account.ListTransactions)
			r.Post("/games/finish", deps.Game.Finish)
			r.Post("/shop/purchase", deps.Shop.Purchase)
			r.Get("/shop/inventory", deps.Shop.Inventory)
			r.Post("/rewards/daily", deps.Reward.ClaimDaily)
		})
	})

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("Starting HTTP server...")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping HTTP server...")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func healthz(h HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h != nil {
			if err := h.HealthCheck(r.Context()); err != nil {
				log.Warn().Err(err).Msg("Health check failed")
				writeStatus(w, http.StatusServiceUnavailable, "unavailable")
				return
			}
		}
		writeStatus(w, http.StatusOK, "ok")
	}
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/VampKunal/IdeaRoom/internal/api/middleware"
	"github.com/VampKunal/IdeaRoom/internal/handlers"
	"github.com/VampKunal/IdeaRoom/internal/identity"
)

// Options carries what the router needs beyond the handlers.
type Options struct {
	Realtime     http.Handler // websocket endpoint
	Handler      *handlers.Handler
	Redis        *redis.Client // rate limiter state
	Verifier     identity.Verifier
	AuthRequired bool
	RateLimit    middleware.RateLimiterConfig
	CORSOrigins  []string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ReadOnly)
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Identity before rate limiting so limits can key on the user
	auth := middleware.NewAuthMiddleware(opts.Verifier, opts.AuthRequired)
	r.Use(auth.Identify)

	// Rate limiting
	if opts.Redis != nil {
		limiter := middleware.NewRateLimiter(opts.Redis, logger, opts.RateLimit)
		r.Use(limiter.Middleware)
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := opts.Handler

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// Realtime; the gateway authenticates the upgrade itself
	if opts.Realtime != nil {
		r.Handle("/ws", opts.Realtime)
	}

	// Room reads follow the websocket auth policy
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/rooms/{id}/state", h.RoomState)
		r.Get("/rooms/{id}/users", h.RoomUsers)
		r.Get("/rooms/{id}/snapshots", h.RoomSnapshots)
	})

	return r
}

package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/angelmondragon/surfacemarket-backend/pkg/config"
)

// CORS applies the configured origin policy. Idempotency headers are exposed
// so browser clients can tell a replayed response from a fresh one.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			idempotencyHeader,
			chimw.RequestIDHeader,
		},
		ExposedHeaders:   []string{chimw.RequestIDHeader, replayedHeader},
		AllowCredentials: true,
		MaxAge:           int(cfg.MaxAge.Seconds()),
	})
}

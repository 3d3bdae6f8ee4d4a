package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns a configured CORS middleware.
func CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", CorrelationIDHeader, "Last-Event-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Export-Failed", CorrelationIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

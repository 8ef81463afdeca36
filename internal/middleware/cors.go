// Package middleware holds HTTP middleware shared by the API routes.
package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows browser clients on the given origins to call the API.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         600,
	})
	return c.Handler
}

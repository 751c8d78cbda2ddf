package gateway

import (
	"net/http"
	"slices"

	"github.com/rs/cors"
)

// CORSMiddleware applies the gateway's cross-origin policy to the REST routes.
func CORSMiddleware(allowedOrigins []string, next http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowedHeaders: []string{"*"},
		MaxAge:         86400, // 24 hours
	})
	return c.Handler(next)
}

// OriginChecker is the websocket upgrader counterpart of CORSMiddleware. Requests
// without an Origin header come from non-browser clients and are allowed.
func OriginChecker(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowedOrigins, "*") {
			return true
		}
		return slices.Contains(allowedOrigins, origin)
	}
}

package middleware

import (
	"net/http"
	"strings"
)

// CORS handles cross-origin requests for browser-based clients.
type CORS struct {
	allowed  []string
	allowAll bool
}

// NewCORS creates the CORS middleware. A "*" entry allows every origin.
func NewCORS(allowedOrigins []string) *CORS {
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
	}
	return &CORS{allowed: allowedOrigins, allowAll: allowAll}
}

// Handler returns the CORS middleware handler.
func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (c.allowAll || c.originAllowed(origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *CORS) originAllowed(origin string) bool {
	for _, allowed := range c.allowed {
		if allowed == origin || strings.HasSuffix(origin, allowed) {
			return true
		}
	}
	return false
}

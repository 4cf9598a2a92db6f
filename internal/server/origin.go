package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// OriginChecker accepts requests whose Origin is in the allow list. An empty
// list or a "*" entry allows every origin.
type OriginChecker struct {
	allowAll bool
	allowed  map[string]struct{}
}

func NewOriginChecker(allowedOrigins []string) *OriginChecker {
	checker := &OriginChecker{
		allowed: make(map[string]struct{}, len(allowedOrigins)),
	}

	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}

		if origin == "*" {
			checker.allowAll = true
		}

		checker.allowed[origin] = struct{}{}
	}

	if len(checker.allowed) == 0 {
		checker.allowAll = true
	}

	return checker
}

func (c *OriginChecker) Allowed(origin string) bool {
	if origin == "" || c.allowAll {
		return true
	}

	_, ok := c.allowed[origin]

	return ok
}

// Check is an upgrader CheckOrigin function.
func (c *OriginChecker) Check(r *http.Request) bool {
	return c.Allowed(r.Header.Get("Origin"))
}

// CORS answers preflight requests and sets the allow headers for accepted
// origins.
func (c *OriginChecker) CORS() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" && c.Allowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

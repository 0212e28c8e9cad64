package httpx

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy lists the browser origins allowed to call the API. Empty methods and headers fall back to what the
// availability and template endpoints need.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}
	defaultCORSHeaders = []string{"Authorization", "Content-Type", RequestIDHeader}
)

// WithCORS decorates responses for allowed origins and answers their preflights with 204. Preflights from other
// origins get 403; their simple requests pass through without CORS headers. No AllowedOrigins disables the
// middleware.
func WithCORS(policy CORSPolicy) Middleware {
	origins := trimmed(policy.AllowedOrigins)
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	wildcard := slices.Contains(origins, "*")

	static := http.Header{}
	static.Set("Access-Control-Allow-Methods", strings.Join(orDefault(trimmed(policy.AllowedMethods), defaultCORSMethods), ", "))
	static.Set("Access-Control-Allow-Headers", strings.Join(orDefault(trimmed(policy.AllowedHeaders), defaultCORSHeaders), ", "))
	if policy.AllowCredentials {
		static.Set("Access-Control-Allow-Credentials", "true")
	}
	if secs := int(policy.MaxAge.Seconds()); secs > 0 {
		static.Set("Access-Control-Max-Age", strconv.Itoa(secs))
	}

	allowOrigin := func(origin string) (string, bool) {
		if wildcard {
			if policy.AllowCredentials {
				return origin, true
			}
			return "*", true
		}
		for _, o := range origins {
			if strings.EqualFold(o, origin) {
				return origin, true
			}
		}
		return "", false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			value, ok := allowOrigin(origin)
			if !ok {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", value)
			for k := range static {
				h.Set(k, static.Get(k))
			}
			h.Add("Vary", "Origin")
			if preflight {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func trimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func orDefault(values, fallback []string) []string {
	if len(values) == 0 {
		return fallback
	}
	return values
}

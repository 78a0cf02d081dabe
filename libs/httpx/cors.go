package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy is the cross-origin policy for browser clients of the booking
// API. An empty AllowedOrigins disables CORS handling entirely.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// WithCORS answers preflights and stamps response headers for allowed
// origins. Requests from origins outside the policy pass through untouched
// and get no CORS headers, which the browser treats as a denial.
func WithCORS(policy CORSPolicy) Middleware {
	if len(policy.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	origins := trimNonEmpty(policy.AllowedOrigins)
	methods := strings.Join(trimNonEmpty(policy.AllowedMethods), ", ")
	headerList := strings.Join(trimNonEmpty(policy.AllowedHeaders), ", ")
	maxAge := int(policy.MaxAge.Seconds())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowOrigin, ok := resolveOrigin(origin, origins, policy.AllowCredentials)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowOrigin)
			if policy.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if methods != "" {
				h.Set("Access-Control-Allow-Methods", methods)
			}
			if headerList != "" {
				h.Set("Access-Control-Allow-Headers", headerList)
			}
			if maxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
			}
			h.Add("Vary", "Origin")
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// resolveOrigin picks the Allow-Origin value for a request origin. A "*"
// entry with credentials enabled must echo the concrete origin back, since
// browsers reject the wildcard in credentialed responses.
func resolveOrigin(origin string, allowed []string, credentials bool) (string, bool) {
	for _, a := range allowed {
		if a == "*" {
			if credentials {
				return origin, true
			}
			return "*", true
		}
		if strings.EqualFold(a, origin) {
			return origin, true
		}
	}
	return "", false
}

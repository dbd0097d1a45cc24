package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/pairsync/pairsync-server/internal/http/response"
	"github.com/pairsync/pairsync-server/internal/ratelimit"
)

// bulkPaths are the expensive admin endpoints throttled per client.
var bulkPaths = []string{
	"/api/v1/sync-posts-to-terms",
	"/api/v1/sync-terms-to-posts",
	"/api/v1/batch-sync/",
	"/api/v1/verify",
}

func isBulkPath(path string) bool {
	for _, p := range bulkPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// rateLimitMiddleware limits bulk endpoints by client IP.
// Returns 429 Too Many Requests when limit is exceeded.
func rateLimitMiddleware(limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isBulkPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key := getClientIP(r)
			if !limiter.Allow(key) {
				logger.Warn("Rate limit exceeded", "ip", key, "path", r.URL.Path)
				response.TooManyRequests(w, "Too many requests. Please try again later.", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP from the request. middleware.RealIP
// has already replaced RemoteAddr with the forwarded address when present.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

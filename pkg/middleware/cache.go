package middleware

import (
	"fmt"
	"net/http"
	"time"
)

// CacheControl marks GET responses as publicly cacheable for the given
// TTL. Running-promotion lists tolerate short staleness, so edge caches
// may serve them without hitting the service.
func CacheControl(ttl time.Duration) func(http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d", int(ttl.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}

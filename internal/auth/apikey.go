package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/septivank/solar-dashboard/internal/metrics"
	"go.uber.org/zap"
)

// APIKeyHeader carries the machine key
const APIKeyHeader = "X-API-Key"

// APIKeyMiddleware admits requests whose X-API-Key equals key.
// An empty configured key admits nothing. Callers are never told why a key failed.
func APIKeyMiddleware(key string, logger *zap.Logger) func(http.Handler) http.Handler {
	expected := []byte(key)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(APIKeyHeader)

			if len(expected) == 0 || presented == "" || subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
				metrics.AuthFailures.WithLabelValues("api_key").Inc()
				logger.Warn("rejected machine request",
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("path", r.URL.Path),
					zap.Bool("key_present", presented != ""),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "Invalid or missing API key."})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

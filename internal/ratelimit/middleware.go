package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/redmonkez12/printcost-auth/internal/httputil"
	"github.com/redmonkez12/printcost-auth/internal/logging"
)

// UnknownCaller is the key used when a request carries no X-Forwarded-For.
const UnknownCaller = "unknown"

// RejectionRecorder is notified every time a request is turned away.
type RejectionRecorder interface {
	RateLimited()
}

// CallerKey returns the first X-Forwarded-For address, or UnknownCaller.
func CallerKey(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return UnknownCaller
	}
	first, _, _ := strings.Cut(xff, ",")
	if first = strings.TrimSpace(first); first != "" {
		return first
	}
	return UnknownCaller
}

// Middleware rejects requests over budget with 429 before they reach a
// handler. Paths in exempt skip the check. Limiter errors fail open.
func Middleware(limiter Limiter, recorder RejectionRecorder, exempt ...string) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			logger := logging.GetLoggerFromContext(r.Context())
			key := CallerKey(r)

			decision, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Error("failed to check rate limit", "error", err.Error())
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				logger.Warn("rate limit exceeded", "caller", key)
				if recorder != nil {
					recorder.RateLimited()
				}
				if decision.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
				}
				httputil.RespondErrorWithCode(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

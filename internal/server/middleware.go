package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/browncloud/davfs/internal/logger"
	"github.com/browncloud/davfs/internal/ratelimiter"
	"github.com/browncloud/davfs/internal/users"
	"github.com/browncloud/davfs/internal/webdav"
)

// withAuthentication resolves Basic-auth credentials into a principal on the
// request context. Requests without credentials, or with credentials that do
// not verify, pass through unauthenticated; whether that is acceptable is
// decided per operation by the authorization gate, which issues the
// challenge.
func withAuthentication(store *users.Store, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name, password, ok := r.BasicAuth(); ok {
			if p := store.Authenticate(name, password); p != nil {
				r = r.WithContext(webdav.WithPrincipal(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects requests above the configured rate with 429.
func withRateLimit(limiter *ratelimiter.RateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.Warn("rate limit exceeded, rejecting %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAccessLog tags every request with an ID and logs one line when it
// completes.
func withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		start := time.Now()

		recorder := &accessRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		logger.Info("request %s: %s %s -> %d (%s, from %s)",
			id, r.Method, r.URL.Path, recorder.status, time.Since(start).Round(time.Millisecond), r.RemoteAddr)
	})
}

type accessRecorder struct {
	http.ResponseWriter
	status int
}

func (a *accessRecorder) WriteHeader(status int) {
	a.status = status
	a.ResponseWriter.WriteHeader(status)
}

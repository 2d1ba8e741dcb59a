package idempotency

import (
	"bytes"
	"net/http"
	"time"
)

const (
	// HeaderKey is the request header carrying the client's idempotency key.
	HeaderKey = "Idempotency-Key"

	// DefaultTTL is how long a successful response stays replayable.
	// Provisioning retries happen within minutes; 24h covers even a client
	// that crashed mid-signup and resumes the next day.
	DefaultTTL = 24 * time.Hour
)

// Middleware replays cached responses for retried state-changing requests
// (trial signup, cancellation). Requests without a key pass through
// untouched; replays are marked with an X-Idempotency-Replay header.
func Middleware(store Store, ttl time.Duration) func(http.Handler) http.Handler {
	if ttl == 0 {
		ttl = DefaultTTL
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get(HeaderKey)
			if rawKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Scope by method and path: the same key on POST /trial and
			// POST /cancel must not collide.
			key := r.Method + ":" + r.URL.Path + ":" + rawKey

			if cached, ok := store.Get(r.Context(), key); ok {
				for k, v := range cached.Headers {
					w.Header().Set(k, v)
				}
				w.Header().Set("X-Idempotency-Replay", "true")
				w.WriteHeader(cached.StatusCode)
				w.Write(cached.Body)
				return
			}

			rec := newRecorder(w)
			next.ServeHTTP(rec, r)

			// Only successful outcomes are replayable. A failed trial start
			// or cancel should run again on retry.
			if rec.statusCode >= 200 && rec.statusCode < 300 {
				store.Set(r.Context(), key, rec.snapshot(), ttl)
			}
		})
	}
}

// recorder tees the response so a successful outcome can be cached.
type recorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func newRecorder(w http.ResponseWriter) *recorder {
	return &recorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rec *recorder) WriteHeader(statusCode int) {
	rec.statusCode = statusCode
	rec.ResponseWriter.WriteHeader(statusCode)
}

func (rec *recorder) Write(b []byte) (int, error) {
	rec.body.Write(b)
	return rec.ResponseWriter.Write(b)
}

func (rec *recorder) snapshot() *Response {
	headers := make(map[string]string)
	for k := range rec.ResponseWriter.Header() {
		headers[k] = rec.ResponseWriter.Header().Get(k)
	}
	return &Response{
		StatusCode: rec.statusCode,
		Headers:    headers,
		Body:       rec.body.Bytes(),
		CachedAt:   time.Now(),
	}
}

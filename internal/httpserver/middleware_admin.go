package httpserver

import (
	"crypto/subtle"
	"net/http"

	apierrors "github.com/tidybook/subsync/internal/errors"
)

// adminAuth protects operator endpoints (/metrics, manual sync runs) with an
// API key. If no key is configured the endpoint is open; otherwise requests
// must carry an "Authorization: Bearer {key}" header.
func adminAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			expectedHeader := "Bearer " + apiKey

			if subtle.ConstantTimeCompare([]byte(authHeader), []byte(expectedHeader)) != 1 {
				apierrors.WriteSimpleError(w, apierrors.ErrCodeUnauthorized, "Invalid or missing admin API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

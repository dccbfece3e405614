package middleware

import (
	"context"
	"errors"
	"net/http"

	"fishcam/internal/logger"
	"fishcam/internal/services/identity"
)

// Authorizer checks an Authorization header value.
type Authorizer interface {
	Authorize(ctx context.Context, header string) error
}

// BearerAuth lets the request through only with a valid device bearer token.
func BearerAuth(auth Authorizer, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := auth.Authorize(r.Context(), r.Header.Get("Authorization"))
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, identity.ErrInvalidToken):
				w.Header().Set("WWW-Authenticate", `Bearer realm="fishcam"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
			default:
				// Brak tożsamości urządzenia to błąd serwera, nie klienta
				logger.Error("Authorization failed for %s: %v", r.URL.Path, err)
				http.Error(w, "Device identity unavailable", http.StatusServiceUnavailable)
			}
		})
	}
}

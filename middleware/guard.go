package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by a guard.
func ClaimsFromContext(ctx context.Context) (*authcore.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*authcore.AccessClaims)
	return claims, ok
}

// RequireAccess rejects requests without a valid bearer access token.
func RequireAccess(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, status := authenticate(r.Context(), engine, r.Header.Get("Authorization"))
			if status != 0 {
				http.Error(w, http.StatusText(status), status)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate returns a non-zero HTTP status when the request must be rejected.
func authenticate(ctx context.Context, engine *authcore.Engine, header string) (*authcore.AccessClaims, int) {
	if engine == nil {
		return nil, http.StatusUnauthorized
	}

	token, ok := bearerToken(header)
	if !ok {
		return nil, http.StatusUnauthorized
	}

	claims, err := engine.ValidateAccess(ctx, token)
	if err != nil {
		return nil, statusFor(err)
	}
	return claims, 0
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, authcore.ErrBackendUnavailable), errors.Is(err, authcore.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

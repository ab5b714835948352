package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/authcore"
)

type userContextKey struct{}

// UserFromContext returns the account loaded by [RequireUser].
func UserFromContext(ctx context.Context) (*authcore.PublicUser, bool) {
	user, ok := ctx.Value(userContextKey{}).(*authcore.PublicUser)
	return user, ok
}

// RequireUser validates the access token and then loads its subject from the
// user store. Tokens of deleted accounts are rejected even before they expire.
func RequireUser(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, status := authenticate(r.Context(), engine, r.Header.Get("Authorization"))
			if status != 0 {
				http.Error(w, http.StatusText(status), status)
				return
			}

			user, err := engine.AuthUser(r.Context(), claims.UserID())
			if err != nil {
				status := statusFor(err)
				http.Error(w, http.StatusText(status), status)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			ctx = context.WithValue(ctx, userContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

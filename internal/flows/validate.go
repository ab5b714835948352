package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrEthical07/authcore/jwt"
)

// RunValidateAccess verifies an access token. Every failure wraps
// Errors.Unauthorized together with the codec error.
func RunValidateAccess(ctx context.Context, accessToken string, deps Deps) (*jwt.AccessClaims, error) {
	normalizeDeps(&deps)
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	start := deps.Now()
	claims, err := deps.Access.Verify(strings.TrimSpace(accessToken))
	deps.Observe(deps.Metrics.ValidateLatency, deps.Now().Sub(start))
	if err != nil {
		deps.MetricInc(deps.Metrics.AccessInvalid)
		return nil, fmt.Errorf("%w: %w", deps.Errors.Unauthorized, err)
	}
	if claims.UserID() == "" {
		deps.MetricInc(deps.Metrics.AccessInvalid)
		return nil, fmt.Errorf("%w: %w", deps.Errors.Unauthorized, jwt.ErrMalformed)
	}

	deps.MetricInc(deps.Metrics.AccessValid)
	return claims, nil
}

// RunAuthUser loads the account behind a validated access token.
func RunAuthUser(ctx context.Context, userID string, deps Deps) (User, error) {
	normalizeDeps(&deps)
	if !deps.ready() {
		return User{}, deps.Errors.EngineNotReady
	}

	user, err := deps.Users.GetByID(ctx, userID)
	if err != nil {
		if deps.isUserNotFound(err) {
			return User{}, deps.Errors.UserNotFound
		}
		return User{}, deps.backend("load user", err)
	}
	user.PasswordHash = ""
	return user, nil
}

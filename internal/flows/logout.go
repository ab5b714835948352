package flows

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/MrEthical07/authcore/internal/stores"
)

// RunSignOut revokes the presented refresh token. Malformed, unknown and
// already revoked tokens are accepted silently.
func RunSignOut(ctx context.Context, rawRefreshToken string, deps Deps) error {
	normalizeDeps(&deps)
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	if !deps.Tokens.WellFormed(rawRefreshToken) {
		return nil
	}

	revoked, err := deps.Refresh.Revoke(ctx, deps.Tokens.Digest(rawRefreshToken), stores.RevokeReasonSignOut, deps.Now())
	if err != nil {
		if errors.Is(err, stores.ErrRefreshNotFound) {
			return nil
		}
		return deps.backend("revoke refresh token", err)
	}
	if revoked {
		deps.MetricInc(deps.Metrics.SignOut)
		deps.EmitAudit(ctx, deps.Events.SignOut, true, "", "", nil, nil)
	}
	return nil
}

// RunSignOutUser revokes every active refresh token of userID.
func RunSignOutUser(ctx context.Context, userID string, deps Deps) error {
	normalizeDeps(&deps)
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}

	count, err := deps.Refresh.RevokeAll(ctx, userID, stores.RevokeReasonSignOut, deps.Now())
	if err != nil {
		return deps.backend("revoke refresh tokens", err)
	}

	deps.MetricInc(deps.Metrics.SignOutAll)
	deps.EmitAudit(ctx, deps.Events.SignOutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(count)}
	})
	return nil
}

package flows

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/authcore/internal/stores"
	authjwt "github.com/MrEthical07/authcore/jwt"
	"github.com/golang-jwt/jwt/v5"
)

// issuePair signs an access token for user and stores a new refresh token as
// the active token of its family.
func issuePair(ctx context.Context, user User, clientIP string, deps *Deps) (*TokenPair, error) {
	now := deps.Now()

	access, err := signAccess(user.ID, user.Username, deps)
	if err != nil {
		return nil, err
	}

	raw, err := deps.Tokens.Generate()
	if err != nil {
		return nil, err
	}

	familyID := deps.NewID()
	familyKey := user.ID
	if deps.FamilyPerSession {
		familyKey = familyID
	}

	record := &stores.RefreshRecord{
		ID:          deps.NewID(),
		UserID:      user.ID,
		Username:    user.Username,
		FamilyID:    familyID,
		FamilyKey:   familyKey,
		IssuedAt:    now.UnixMilli(),
		ExpiresAt:   now.Add(deps.RefreshTTL).UnixMilli(),
		CreatedByIP: clientIP,
	}
	if err := deps.Refresh.Issue(ctx, deps.Tokens.Digest(raw), record, deps.RefreshTTL); err != nil {
		return nil, deps.backend("issue refresh token", err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     raw,
		AccessExpiresAt:  now.Add(deps.AccessTTL),
		RefreshExpiresAt: now.Add(deps.RefreshTTL),
	}, nil
}

func signAccess(userID, username string, deps *Deps) (string, error) {
	return deps.Access.Sign(authjwt.AccessClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
		},
	})
}

// RunRefresh exchanges a refresh token for a new pair. The access token is
// signed before the rotation commits, so a successful commit always yields
// a usable pair.
func RunRefresh(ctx context.Context, rawRefreshToken, clientIP string, deps Deps) (*TokenPair, error) {
	normalizeDeps(&deps)
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	if !deps.Tokens.WellFormed(rawRefreshToken) {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.EmitAudit(ctx, deps.Events.RefreshInvalid, false, "", "", deps.Errors.RefreshInvalid, nil)
		return nil, deps.Errors.RefreshInvalid
	}
	digest := deps.Tokens.Digest(rawRefreshToken)

	presented, err := deps.Refresh.Get(ctx, digest)
	if err != nil {
		if errors.Is(err, stores.ErrRefreshNotFound) {
			deps.MetricInc(deps.Metrics.RefreshFailure)
			deps.EmitAudit(ctx, deps.Events.RefreshInvalid, false, "", "", deps.Errors.RefreshInvalid, nil)
			return nil, deps.Errors.RefreshInvalid
		}
		deps.MetricInc(deps.Metrics.RefreshFailure)
		return nil, deps.backend("load refresh token", err)
	}

	var access string
	if !presented.Revoked() {
		access, err = signAccess(presented.UserID, presented.Username, &deps)
		if err != nil {
			deps.MetricInc(deps.Metrics.RefreshFailure)
			return nil, err
		}
	}

	successor, err := deps.Tokens.Generate()
	if err != nil {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		return nil, err
	}

	now := deps.Now()
	result, err := deps.Refresh.Rotate(ctx, stores.RotateInput{
		Presented:       presented,
		PresentedDigest: digest,
		SuccessorDigest: deps.Tokens.Digest(successor),
		SuccessorID:     deps.NewID(),
		CreatedByIP:     clientIP,
		Now:             now,
		TTL:             deps.RefreshTTL,
	})
	if err != nil {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		return nil, deps.backend("rotate refresh token", err)
	}

	switch result.Status {
	case stores.RotateStatusRotated:
		deps.MetricInc(deps.Metrics.RefreshSuccess)
		deps.EmitAudit(ctx, deps.Events.RefreshSuccess, true, result.UserID, result.Username, nil, func() map[string]string {
			return map[string]string{"family_id": result.FamilyID}
		})
		return &TokenPair{
			AccessToken:      access,
			RefreshToken:     successor,
			AccessExpiresAt:  now.Add(deps.AccessTTL),
			RefreshExpiresAt: now.Add(deps.RefreshTTL),
		}, nil

	case stores.RotateStatusReuse:
		onReuse(ctx, result, presented.FamilyID, &deps)
		return nil, deps.Errors.RefreshReuse

	default:
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.EmitAudit(ctx, deps.Events.RefreshInvalid, false, presented.UserID, presented.Username, deps.Errors.RefreshInvalid, nil)
		return nil, deps.Errors.RefreshInvalid
	}
}

// onReuse records a replayed refresh token and notifies the owner. Every
// family was already revoked by the rotate script.
func onReuse(ctx context.Context, result stores.RotateResult, familyID string, deps *Deps) {
	deps.MetricInc(deps.Metrics.RefreshReuseDetected)
	deps.Logger.WarnContext(ctx, "refresh token reuse detected",
		"user_id", result.UserID,
		"family_id", familyID,
		"revoked", result.Revoked,
	)
	deps.EmitAudit(ctx, deps.Events.RefreshReuseDetected, false, result.UserID, result.Username, deps.Errors.RefreshReuse, func() map[string]string {
		return map[string]string{
			"family_id": familyID,
			"revoked":   strconv.Itoa(result.Revoked),
		}
	})

	user, err := deps.Users.GetByID(ctx, result.UserID)
	if err != nil {
		if !deps.isUserNotFound(err) {
			deps.Logger.ErrorContext(ctx, "load user for reuse notice", "user_id", result.UserID, "error", err)
		}
		return
	}
	deps.SendMail(ctx, MailJob{
		Kind:  MailTokenReused,
		Email: user.Email,
		Name:  displayName(user),
	})
}

func displayName(user User) string {
	if user.Name != "" {
		return user.Name
	}
	return user.Username
}

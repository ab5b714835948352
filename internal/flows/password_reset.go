package flows

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/authcore/internal/stores"
)

// RevokeReasonPasswordReset is recorded on refresh tokens revoked by a reset.
const RevokeReasonPasswordReset = "password reset"

// RunRecoverAccount mails a password-reset token. The result is the same
// whether or not the email belongs to an account.
func RunRecoverAccount(ctx context.Context, email string, deps Deps) error {
	normalizeDeps(&deps)
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	deps.MetricInc(deps.Metrics.RecoveryRequest)

	user, err := deps.Users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if deps.isUserNotFound(err) {
			deps.EmitAudit(ctx, deps.Events.RecoveryRequest, true, "", "", nil, nil)
			return nil
		}
		return deps.backend("load user", err)
	}

	raw, err := issueSingleUse(ctx, stores.PurposePasswordReset, user.ID, &deps)
	if err != nil {
		return err
	}

	deps.EmitAudit(ctx, deps.Events.RecoveryRequest, true, user.ID, user.Username, nil, nil)
	deps.SendMail(ctx, MailJob{
		Kind:  MailAccountRecovery,
		Email: user.Email,
		Name:  displayName(user),
		Token: raw,
	})
	return nil
}

// RunResetPassword redeems a reset token and stores the new password. The
// password is checked before the token is spent so a rejected password
// leaves the token usable.
func RunResetPassword(ctx context.Context, rawToken, newPassword string, deps Deps) error {
	normalizeDeps(&deps)
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	hash, err := deps.Passwords.Hash(newPassword)
	if err != nil {
		deps.MetricInc(deps.Metrics.PasswordResetFailure)
		return errors.Join(deps.Errors.PasswordPolicy, err)
	}

	userID, err := consumeSingleUse(ctx, stores.PurposePasswordReset, rawToken, &deps)
	if err != nil {
		deps.MetricInc(deps.Metrics.PasswordResetFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordReset, false, "", "", err, nil)
		return err
	}

	if err := deps.Users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		deps.MetricInc(deps.Metrics.PasswordResetFailure)
		if deps.isUserNotFound(err) {
			return deps.Errors.InvalidOrExpiredToken
		}
		return deps.backend("update password", err)
	}

	var revoked int
	if deps.RevokeOnReset {
		revoked, err = deps.Refresh.RevokeAll(ctx, userID, RevokeReasonPasswordReset, deps.Now())
		if err != nil {
			// The password is already changed; report the stale sessions.
			deps.Logger.ErrorContext(ctx, "revoke sessions after password reset", "user_id", userID, "error", err)
		}
	}

	deps.MetricInc(deps.Metrics.PasswordResetSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordReset, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked_sessions": strconv.Itoa(revoked)}
	})
	return nil
}

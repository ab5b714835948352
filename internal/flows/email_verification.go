package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/internal/stores"
)

// issueSingleUse stores a fresh token of purpose for userID and returns the
// raw value. Any earlier unconsumed token of the same purpose stops working.
func issueSingleUse(ctx context.Context, purpose stores.Purpose, userID string, deps *Deps) (string, error) {
	ttl := deps.VerificationTTL
	if purpose == stores.PurposePasswordReset {
		ttl = deps.ResetTTL
	}

	raw, err := deps.Tokens.Generate()
	if err != nil {
		return "", err
	}

	record := &stores.SingleUseRecord{
		ID:        deps.NewID(),
		UserID:    userID,
		Purpose:   purpose,
		ExpiresAt: deps.Now().Add(ttl).UnixMilli(),
	}
	if err := deps.SingleUse.Issue(ctx, deps.Tokens.Digest(raw), record, ttl); err != nil {
		return "", deps.backend("issue "+purpose.String()+" token", err)
	}
	return raw, nil
}

// consumeSingleUse redeems raw for purpose and returns the owning user id.
func consumeSingleUse(ctx context.Context, purpose stores.Purpose, raw string, deps *Deps) (string, error) {
	if !deps.Tokens.WellFormed(raw) {
		return "", deps.Errors.InvalidOrExpiredToken
	}

	record, err := deps.SingleUse.Consume(ctx, purpose, deps.Tokens.Digest(raw), deps.Now())
	if err != nil {
		if errors.Is(err, stores.ErrSingleUseNotFound) {
			return "", deps.Errors.InvalidOrExpiredToken
		}
		return "", deps.backend("consume "+purpose.String()+" token", err)
	}
	return record.UserID, nil
}

func sendVerification(ctx context.Context, user User, deps *Deps) error {
	raw, err := issueSingleUse(ctx, stores.PurposeVerification, user.ID, deps)
	if err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.VerificationIssued)
	deps.EmitAudit(ctx, deps.Events.VerificationIssued, true, user.ID, user.Username, nil, nil)
	deps.SendMail(ctx, MailJob{
		Kind:  MailVerificationPrompt,
		Email: user.Email,
		Name:  displayName(user),
		Token: raw,
	})
	return nil
}

// RunSignUp registers a password account and sends a verification prompt.
// Signing up again with an unverified email resends the prompt; a verified
// email is a silent no-op.
func RunSignUp(ctx context.Context, email, username, password string, deps Deps) error {
	normalizeDeps(&deps)
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	email = normalizeEmail(email)
	username = strings.TrimSpace(username)
	if email == "" {
		return deps.Errors.EmailRequired
	}
	if username == "" {
		return deps.Errors.UsernameRequired
	}

	existing, err := deps.Users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return signUpExisting(ctx, existing, &deps)
	case !deps.isUserNotFound(err):
		return deps.backend("load user", err)
	}

	if _, err := deps.Users.GetByUsername(ctx, username); err == nil {
		deps.MetricInc(deps.Metrics.SignUpDuplicate)
		return deps.Errors.UsernameTaken
	} else if !deps.isUserNotFound(err) {
		return deps.backend("load user", err)
	}

	hash, err := deps.Passwords.Hash(password)
	if err != nil {
		return errors.Join(deps.Errors.PasswordPolicy, err)
	}

	user, err := deps.Users.Create(ctx, User{
		ID:           deps.NewID(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    deps.Now(),
	})
	if err != nil {
		if !deps.isUserExists(err) {
			return deps.backend("create user", err)
		}
		// A concurrent sign-up claimed the email or the username first.
		if existing, lookupErr := deps.Users.GetByEmail(ctx, email); lookupErr == nil {
			return signUpExisting(ctx, existing, &deps)
		}
		deps.MetricInc(deps.Metrics.SignUpDuplicate)
		return deps.Errors.UsernameTaken
	}

	deps.MetricInc(deps.Metrics.SignUpSuccess)
	deps.EmitAudit(ctx, deps.Events.SignUp, true, user.ID, user.Username, nil, nil)
	return sendVerification(ctx, user, &deps)
}

// signUpExisting handles a sign-up for an email that already has an account.
func signUpExisting(ctx context.Context, existing User, deps *Deps) error {
	deps.MetricInc(deps.Metrics.SignUpDuplicate)
	if existing.Verified {
		return nil
	}
	return sendVerification(ctx, existing, deps)
}

// RunResendVerification sends a new verification prompt. Unknown and
// already verified users succeed without side effects.
func RunResendVerification(ctx context.Context, username string, deps Deps) error {
	normalizeDeps(&deps)
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	user, err := deps.Users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if deps.isUserNotFound(err) {
			return nil
		}
		return deps.backend("load user", err)
	}
	if user.Verified {
		return nil
	}
	return sendVerification(ctx, user, &deps)
}

// RunVerifyAccount redeems a verification token and marks its owner verified.
func RunVerifyAccount(ctx context.Context, rawToken string, deps Deps) error {
	normalizeDeps(&deps)
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	userID, err := consumeSingleUse(ctx, stores.PurposeVerification, rawToken, &deps)
	if err != nil {
		deps.MetricInc(deps.Metrics.VerificationFailure)
		deps.EmitAudit(ctx, deps.Events.VerificationConfirm, false, "", "", err, nil)
		return err
	}

	if err := deps.Users.MarkVerified(ctx, userID); err != nil {
		deps.MetricInc(deps.Metrics.VerificationFailure)
		if deps.isUserNotFound(err) {
			return deps.Errors.InvalidOrExpiredToken
		}
		return deps.backend("mark verified", err)
	}

	deps.MetricInc(deps.Metrics.VerificationSuccess)
	deps.EmitAudit(ctx, deps.Events.VerificationConfirm, true, userID, "", nil, nil)
	return nil
}

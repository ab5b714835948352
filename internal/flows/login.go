package flows

import (
	"context"
	"strings"
)

// RunValidateCredential checks username and password and returns the user.
// Unknown users and wrong passwords are indistinguishable to the caller.
func RunValidateCredential(ctx context.Context, username, password string, deps Deps) (User, error) {
	normalizeDeps(&deps)
	if !deps.ready() {
		return User{}, deps.Errors.EngineNotReady
	}
	return validateCredential(ctx, username, password, &deps)
}

func validateCredential(ctx context.Context, username, password string, deps *Deps) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		deps.MetricInc(deps.Metrics.SignInFailure)
		return User{}, deps.Errors.Unauthorized
	}

	user, err := deps.Users.GetByUsername(ctx, username)
	if err != nil {
		if deps.isUserNotFound(err) {
			if deps.DummyHash != "" {
				deps.Passwords.Compare(password, deps.DummyHash)
			}
			deps.MetricInc(deps.Metrics.SignInFailure)
			deps.EmitAudit(ctx, deps.Events.SignInFailure, false, "", username, deps.Errors.Unauthorized, nil)
			return User{}, deps.Errors.Unauthorized
		}
		return User{}, deps.backend("load user", err)
	}

	if user.PasswordHash == "" || !deps.Passwords.Compare(password, user.PasswordHash) {
		deps.MetricInc(deps.Metrics.SignInFailure)
		deps.EmitAudit(ctx, deps.Events.SignInFailure, false, user.ID, user.Username, deps.Errors.Unauthorized, nil)
		return User{}, deps.Errors.Unauthorized
	}

	if deps.RequireVerified && !user.Verified {
		deps.MetricInc(deps.Metrics.SignInUnverified)
		if err := sendVerification(ctx, user, deps); err != nil {
			deps.Logger.ErrorContext(ctx, "issue verification on sign-in", "user_id", user.ID, "error", err)
		}
		deps.EmitAudit(ctx, deps.Events.SignInFailure, false, user.ID, user.Username, deps.Errors.AccountUnverified, nil)
		return User{}, deps.Errors.AccountUnverified
	}

	if deps.UpgradeOnLogin {
		rehash(ctx, user, password, deps)
	}

	return user, nil
}

// rehash replaces a hash produced with weaker parameters. Failures keep the
// old hash and are only logged.
func rehash(ctx context.Context, user User, password string, deps *Deps) {
	upgrade, err := deps.Passwords.NeedsUpgrade(user.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	hash, err := deps.Passwords.Hash(password)
	if err != nil {
		deps.Logger.WarnContext(ctx, "password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	if err := deps.Users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		deps.Logger.WarnContext(ctx, "password rehash not stored", "user_id", user.ID, "error", err)
		return
	}
	deps.MetricInc(deps.Metrics.PasswordRehash)
}

// RunSignIn validates the credential and issues a token pair.
func RunSignIn(ctx context.Context, username, password, clientIP string, deps Deps) (*TokenPair, error) {
	normalizeDeps(&deps)
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	user, err := validateCredential(ctx, username, password, &deps)
	if err != nil {
		return nil, err
	}

	pair, err := issuePair(ctx, user, clientIP, &deps)
	if err != nil {
		deps.MetricInc(deps.Metrics.SignInFailure)
		return nil, err
	}

	deps.MetricInc(deps.Metrics.SignInSuccess)
	deps.EmitAudit(ctx, deps.Events.SignInSuccess, true, user.ID, user.Username, nil, func() map[string]string {
		return map[string]string{"client_ip": clientIP}
	})
	return pair, nil
}

// RunSignInExternal signs in an identity already verified by a provider.
// An unknown email creates a verified account, which needs a username.
func RunSignInExternal(ctx context.Context, identity ExternalIdentity, clientIP string, deps Deps) (*TokenPair, error) {
	normalizeDeps(&deps)
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	email := normalizeEmail(identity.Email)
	if email == "" {
		return nil, deps.Errors.Unauthorized
	}

	user, err := deps.Users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if user, err = adoptExternalUser(ctx, user, &deps); err != nil {
			return nil, err
		}
	case deps.isUserNotFound(err):
		user, err = createExternalUser(ctx, email, identity, &deps)
		if err != nil {
			return nil, err
		}
	default:
		return nil, deps.backend("load user", err)
	}

	pair, err := issuePair(ctx, user, clientIP, &deps)
	if err != nil {
		deps.MetricInc(deps.Metrics.SignInFailure)
		return nil, err
	}

	deps.MetricInc(deps.Metrics.ExternalSignIn)
	deps.EmitAudit(ctx, deps.Events.SignInSuccess, true, user.ID, user.Username, nil, func() map[string]string {
		return map[string]string{
			"client_ip": clientIP,
			"provider":  identity.Provider,
		}
	})
	return pair, nil
}

func createExternalUser(ctx context.Context, email string, identity ExternalIdentity, deps *Deps) (User, error) {
	username := strings.TrimSpace(identity.Username)
	if username == "" {
		return User{}, deps.Errors.UsernameRequired
	}

	if _, err := deps.Users.GetByUsername(ctx, username); err == nil {
		return User{}, deps.Errors.UsernameTaken
	} else if !deps.isUserNotFound(err) {
		return User{}, deps.backend("load user", err)
	}

	user, err := deps.Users.Create(ctx, User{
		ID:        deps.NewID(),
		Email:     email,
		Username:  username,
		Name:      strings.TrimSpace(identity.Name),
		Verified:  true,
		Provider:  identity.Provider,
		CreatedAt: deps.Now(),
	})
	if err != nil {
		if !deps.isUserExists(err) {
			return User{}, deps.backend("create user", err)
		}
		// Lost a race against another sign-up for the same email.
		if existing, lookupErr := deps.Users.GetByEmail(ctx, email); lookupErr == nil {
			return adoptExternalUser(ctx, existing, deps)
		}
		return User{}, deps.Errors.UsernameTaken
	}
	deps.MetricInc(deps.Metrics.SignUpSuccess)
	deps.EmitAudit(ctx, deps.Events.SignUp, true, user.ID, user.Username, nil, func() map[string]string {
		return map[string]string{"provider": identity.Provider}
	})
	return user, nil
}

// adoptExternalUser marks an existing account verified, since the provider
// vouched for its email.
func adoptExternalUser(ctx context.Context, user User, deps *Deps) (User, error) {
	if user.Verified {
		return user, nil
	}
	if err := deps.Users.MarkVerified(ctx, user.ID); err != nil {
		return User{}, deps.backend("mark verified", err)
	}
	user.Verified = true
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

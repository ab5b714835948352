package flows

import (
	"context"

	"github.com/MrEthical07/authcore/jwt"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	normalizeDeps(&deps)
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.ready()
}

func (s Service) ValidateCredential(ctx context.Context, username, password string) (User, error) {
	return RunValidateCredential(ctx, username, password, s.deps)
}

func (s Service) SignIn(ctx context.Context, username, password, clientIP string) (*TokenPair, error) {
	return RunSignIn(ctx, username, password, clientIP, s.deps)
}

func (s Service) SignInExternal(ctx context.Context, identity ExternalIdentity, clientIP string) (*TokenPair, error) {
	return RunSignInExternal(ctx, identity, clientIP, s.deps)
}

func (s Service) Refresh(ctx context.Context, rawRefreshToken, clientIP string) (*TokenPair, error) {
	return RunRefresh(ctx, rawRefreshToken, clientIP, s.deps)
}

func (s Service) SignOut(ctx context.Context, rawRefreshToken string) error {
	return RunSignOut(ctx, rawRefreshToken, s.deps)
}

func (s Service) SignOutUser(ctx context.Context, userID string) error {
	return RunSignOutUser(ctx, userID, s.deps)
}

func (s Service) SignUp(ctx context.Context, email, username, password string) error {
	return RunSignUp(ctx, email, username, password, s.deps)
}

func (s Service) ResendVerification(ctx context.Context, username string) error {
	return RunResendVerification(ctx, username, s.deps)
}

func (s Service) VerifyAccount(ctx context.Context, rawToken string) error {
	return RunVerifyAccount(ctx, rawToken, s.deps)
}

func (s Service) RecoverAccount(ctx context.Context, email string) error {
	return RunRecoverAccount(ctx, email, s.deps)
}

func (s Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	return RunResetPassword(ctx, rawToken, newPassword, s.deps)
}

func (s Service) ValidateAccess(ctx context.Context, accessToken string) (*jwt.AccessClaims, error) {
	return RunValidateAccess(ctx, accessToken, s.deps)
}

func (s Service) AuthUser(ctx context.Context, userID string) (User, error) {
	return RunAuthUser(ctx, userID, s.deps)
}

package authcore

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned for bad credentials and for malformed,
	// forged or expired access tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAccountUnverified is returned when valid credentials belong to an
	// account whose email has not been verified yet.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrInvalidOrExpiredToken is returned when a single-use or refresh token
	// is unknown, already consumed or expired.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrRefreshInvalid is the refresh flavor of ErrInvalidOrExpiredToken.
	ErrRefreshInvalid = fmt.Errorf("invalid refresh token: %w", ErrInvalidOrExpiredToken)
	// ErrRefreshReuse is returned when a rotated or revoked refresh token is
	// presented again. Every refresh token of the user has been revoked by
	// the time it is returned.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrEmailRequired is returned by SignUp for a blank email.
	ErrEmailRequired = errors.New("email required")
	// ErrUsernameRequired is returned by external sign-in when a new account
	// would be created without a username.
	ErrUsernameRequired = errors.New("username required")
	ErrUsernameTaken    = errors.New("username already taken")
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("user already exists")
	ErrPasswordPolicy   = errors.New("password policy violation")
	// ErrBackendUnavailable wraps persistence failures unrelated to business rules.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	ErrEngineNotReady     = errors.New("engine not initialized")
)

package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal/flows"
)

const (
	auditEventSignInSuccess        = "sign_in_success"
	auditEventSignInFailure        = "sign_in_failure"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventSignOut              = "sign_out"
	auditEventSignOutAll           = "sign_out_all"
	auditEventSignUp               = "sign_up"
	auditEventVerificationIssued   = "verification_issued"
	auditEventVerificationConfirm  = "verification_confirm"
	auditEventRecoveryRequest      = "recovery_request"
	auditEventPasswordReset        = "password_reset"
)

// AuditErrorCode is the stable error label written into [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrUnauthorized      AuditErrorCode = "unauthorized"
	auditErrAccountUnverified AuditErrorCode = "account_unverified"
	auditErrRefreshReuse      AuditErrorCode = "refresh_reuse"
	auditErrInvalidToken      AuditErrorCode = "invalid_token"
	auditErrEmailRequired     AuditErrorCode = "email_required"
	auditErrUsernameRequired  AuditErrorCode = "username_required"
	auditErrDuplicate         AuditErrorCode = "duplicate"
	auditErrUserNotFound      AuditErrorCode = "user_not_found"
	auditErrPasswordPolicy    AuditErrorCode = "password_policy"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func flowEvents() flows.Events {
	return flows.Events{
		SignInSuccess:        auditEventSignInSuccess,
		SignInFailure:        auditEventSignInFailure,
		RefreshSuccess:       auditEventRefreshSuccess,
		RefreshInvalid:       auditEventRefreshInvalid,
		RefreshReuseDetected: auditEventRefreshReuseDetected,
		SignOut:              auditEventSignOut,
		SignOutAll:           auditEventSignOutAll,
		SignUp:               auditEventSignUp,
		VerificationIssued:   auditEventVerificationIssued,
		VerificationConfirm:  auditEventVerificationConfirm,
		RecoveryRequest:      auditEventRecoveryRequest,
		PasswordReset:        auditEventPasswordReset,
	}
}

// emitAudit is the flows.AuditFunc of the engine. meta is only evaluated
// when an audit dispatcher is running.
func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, username string, err error, meta func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	ev := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Username:  username,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Error:     string(auditErrorCode(err)),
	}
	if meta != nil {
		ev.Metadata = meta()
	}
	e.audit.Submit(ctx, ev)
}

// auditErrorCodes is matched in order; the first sentinel err wraps wins.
var auditErrorCodes = [...]struct {
	sentinel error
	code     AuditErrorCode
}{
	{ErrUnauthorized, auditErrUnauthorized},
	{ErrAccountUnverified, auditErrAccountUnverified},
	{ErrRefreshReuse, auditErrRefreshReuse},
	{ErrInvalidOrExpiredToken, auditErrInvalidToken},
	{ErrEmailRequired, auditErrEmailRequired},
	{ErrUsernameRequired, auditErrUsernameRequired},
	{ErrUsernameTaken, auditErrDuplicate},
	{ErrUserExists, auditErrDuplicate},
	{ErrUserNotFound, auditErrUserNotFound},
	{ErrPasswordPolicy, auditErrPasswordPolicy},
	{ErrBackendUnavailable, auditErrUnavailable},
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	for _, c := range auditErrorCodes {
		if errors.Is(err, c.sentinel) {
			return c.code
		}
	}
	return auditErrInternal
}

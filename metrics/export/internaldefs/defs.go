package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// Source is what exporters read. *authcore.Engine satisfies it.
type Source interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
	MailDropped() uint64
}

type Def struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var Counters = []Def{
	{ID: authcore.MetricSignInSuccess, Name: "authcore_sign_in_success_total", Help: "Successful sign-ins."},
	{ID: authcore.MetricSignInFailure, Name: "authcore_sign_in_failure_total", Help: "Sign-ins rejected for bad credentials."},
	{ID: authcore.MetricSignInUnverified, Name: "authcore_sign_in_unverified_total", Help: "Sign-ins rejected because the account is unverified."},
	{ID: authcore.MetricExternalSignIn, Name: "authcore_external_sign_in_total", Help: "Sign-ins through an external identity provider."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Refresh attempts with unknown or expired tokens."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Replays of rotated or revoked refresh tokens."},
	{ID: authcore.MetricSignOut, Name: "authcore_sign_out_total", Help: "Refresh tokens revoked by sign-out."},
	{ID: authcore.MetricSignOutAll, Name: "authcore_sign_out_all_total", Help: "Sign-outs of every session of a user."},
	{ID: authcore.MetricSignUpSuccess, Name: "authcore_sign_up_success_total", Help: "Accounts created."},
	{ID: authcore.MetricSignUpDuplicate, Name: "authcore_sign_up_duplicate_total", Help: "Sign-ups rejected for a taken username."},
	{ID: authcore.MetricVerificationIssued, Name: "authcore_verification_issued_total", Help: "Verification tokens issued."},
	{ID: authcore.MetricVerificationSuccess, Name: "authcore_verification_success_total", Help: "Accounts verified."},
	{ID: authcore.MetricVerificationFailure, Name: "authcore_verification_failure_total", Help: "Invalid or expired verification tokens."},
	{ID: authcore.MetricRecoveryRequest, Name: "authcore_recovery_request_total", Help: "Account recovery requests for known emails."},
	{ID: authcore.MetricPasswordResetSuccess, Name: "authcore_password_reset_success_total", Help: "Completed password resets."},
	{ID: authcore.MetricPasswordResetFailure, Name: "authcore_password_reset_failure_total", Help: "Invalid or expired password reset tokens."},
	{ID: authcore.MetricPasswordRehash, Name: "authcore_password_rehash_total", Help: "Password hashes upgraded at sign-in."},
	{ID: authcore.MetricAccessValid, Name: "authcore_access_valid_total", Help: "Access tokens accepted."},
	{ID: authcore.MetricAccessInvalid, Name: "authcore_access_invalid_total", Help: "Access tokens rejected."},
}

var ValidateLatency = Def{
	ID:   authcore.MetricValidateLatency,
	Name: "authcore_validate_latency_seconds",
	Help: "Access token validation latency.",
}

// Drop counters are read from the engine, not the snapshot.
var (
	AuditDropped = Def{Name: "authcore_audit_dropped_total", Help: "Audit events dropped under dispatcher backpressure."}
	MailDropped  = Def{Name: "authcore_mail_dropped_total", Help: "Mail jobs dropped under dispatcher backpressure."}
)

// Sample is one drop counter reading.
type Sample struct {
	Def   Def
	Value uint64
}

func DropSamples(src Source) []Sample {
	return []Sample{
		{Def: AuditDropped, Value: src.AuditDropped()},
		{Def: MailDropped, Value: src.MailDropped()},
	}
}

// Bucket is one histogram upper bound, as a Prometheus label and as a
// suffix usable in instrument names.
type Bucket struct {
	LE     string
	Suffix string
}

var Buckets = [8]Bucket{
	{LE: "0.005", Suffix: "0_005"},
	{LE: "0.01", Suffix: "0_01"},
	{LE: "0.025", Suffix: "0_025"},
	{LE: "0.05", Suffix: "0_05"},
	{LE: "0.1", Suffix: "0_1"},
	{LE: "0.25", Suffix: "0_25"},
	{LE: "0.5", Suffix: "0_5"},
	{LE: "+Inf", Suffix: "inf"},
}

// Cumulative converts per-bucket counts into cumulative counts. Missing
// buckets count as zero; extra ones are ignored.
func Cumulative(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}

package internaldefs

import (
	"github.com/MrEthical07/passly"
)

// CounterDef names one passly counter for export.
type CounterDef struct {
	ID   passly.MetricID
	Name string
	Help string
}

// HistogramDef names one passly histogram for export.
type HistogramDef struct {
	ID   passly.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter of security events lost to a full buffer.
const AuditDroppedName = "passly_audit_dropped_total"

// AuditDroppedHelp is the help text of AuditDroppedName.
const AuditDroppedHelp = "Security events dropped because the dispatcher buffer was full."

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: passly.MetricRegisterSuccess, Name: "passly_register_success_total", Help: "Accounts created."},
	{ID: passly.MetricRegisterDuplicate, Name: "passly_register_duplicate_total", Help: "Registrations rejected for an email already in use."},
	{ID: passly.MetricLoginSuccess, Name: "passly_login_success_total", Help: "Logins that issued a token pair."},
	{ID: passly.MetricLoginFailure, Name: "passly_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: passly.MetricLoginUnverified, Name: "passly_login_unverified_total", Help: "Logins rejected because the email is not verified."},
	{ID: passly.MetricLoginSecondFactor, Name: "passly_login_second_factor_total", Help: "Logins that sent a login code."},
	{ID: passly.MetricRefreshSuccess, Name: "passly_refresh_success_total", Help: "Refresh tokens rotated."},
	{ID: passly.MetricRefreshFailure, Name: "passly_refresh_failure_total", Help: "Refresh tokens rejected."},
	{ID: passly.MetricRefreshReuseDetected, Name: "passly_refresh_reuse_detected_total", Help: "Rotated refresh tokens presented again."},
	{ID: passly.MetricLogout, Name: "passly_logout_total", Help: "Refresh tokens revoked by logout."},
	{ID: passly.MetricOTPIssued, Name: "passly_otp_issued_total", Help: "One-time codes generated."},
	{ID: passly.MetricOTPVerified, Name: "passly_otp_verified_total", Help: "One-time codes verified."},
	{ID: passly.MetricOTPFailed, Name: "passly_otp_failed_total", Help: "Failed one-time code verifications."},
	{ID: passly.MetricEmailVerified, Name: "passly_email_verified_total", Help: "Accounts whose email got verified."},
	{ID: passly.MetricPasswordResetRequest, Name: "passly_password_reset_request_total", Help: "Password reset requests."},
	{ID: passly.MetricPasswordResetSuccess, Name: "passly_password_reset_success_total", Help: "Completed password resets."},
	{ID: passly.MetricPasswordResetFailure, Name: "passly_password_reset_failure_total", Help: "Rejected password resets."},
	{ID: passly.MetricOTPSwept, Name: "passly_otp_swept_total", Help: "Expired one-time codes removed by the sweeper."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: passly.MetricPasswordHashLatency, Name: "passly_password_hash_duration_seconds", Help: "Argon2id derivation time."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// bucket of a snapshot is +Inf.
var HistogramUpperBounds = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten a histogram into gauges.
var HistogramBoundSuffix = []string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

// BucketCount is the number of buckets in a snapshot histogram, +Inf included.
const BucketCount = 8

// NormalizeBuckets copies raw into a fixed array, zero filling or truncating.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals. The last
// element is the sample count.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

package internaldefs

import (
	"github.com/MrEthical07/formauth"
)

type CounterDef struct {
	ID   formauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   formauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter. Names follow Prometheus
// conventions; the OpenTelemetry exporter reuses them verbatim.
var CounterDefs = []CounterDef{
	{ID: formauth.MetricLoginSuccess, Name: "formauth_login_success_total", Help: "Successful form logins."},
	{ID: formauth.MetricLoginFailure, Name: "formauth_login_failure_total", Help: "Failed form logins of any kind."},
	{ID: formauth.MetricLoginRateLimited, Name: "formauth_login_rate_limited_total", Help: "Login attempts rejected by throttling."},
	{ID: formauth.MetricUserNotFound, Name: "formauth_user_not_found_total", Help: "Login attempts for unknown usernames."},
	{ID: formauth.MetricBadCredentials, Name: "formauth_bad_credentials_total", Help: "Login attempts with a wrong password."},
	{ID: formauth.MetricAccountDisabled, Name: "formauth_account_disabled_total", Help: "Login attempts rejected for disabled accounts."},
	{ID: formauth.MetricAccountLocked, Name: "formauth_account_locked_total", Help: "Login attempts rejected for locked accounts."},
	{ID: formauth.MetricAccountExpired, Name: "formauth_account_expired_total", Help: "Login attempts rejected for expired accounts."},
	{ID: formauth.MetricCredentialsExpired, Name: "formauth_credentials_expired_total", Help: "Login attempts rejected for expired credentials."},
	{ID: formauth.MetricChallengeIssued, Name: "formauth_challenge_issued_total", Help: "Verification codes issued."},
	{ID: formauth.MetricChallengeFailed, Name: "formauth_challenge_failed_total", Help: "Submissions rejected by the verification code check."},
	{ID: formauth.MetricRememberMeIssued, Name: "formauth_remember_me_issued_total", Help: "Remember-me series created."},
	{ID: formauth.MetricRememberMeLogin, Name: "formauth_remember_me_login_total", Help: "Sessions restored from a remember-me cookie."},
	{ID: formauth.MetricRememberMeRejected, Name: "formauth_remember_me_rejected_total", Help: "Remember-me cookies rejected as invalid or expired."},
	{ID: formauth.MetricRememberMeTheft, Name: "formauth_remember_me_theft_total", Help: "Remember-me token reuse detections."},
	{ID: formauth.MetricSessionCreated, Name: "formauth_session_created_total", Help: "Authenticated sessions created."},
	{ID: formauth.MetricLogout, Name: "formauth_logout_total", Help: "Logouts."},
	{ID: formauth.MetricStoreUnavailable, Name: "formauth_store_unavailable_total", Help: "Operations failed by a backing store outage."},
	{ID: formauth.MetricPasswordUpgraded, Name: "formauth_password_upgraded_total", Help: "Password hashes re-encoded after login."},
}

var HistogramDefs = []HistogramDef{
	{ID: formauth.MetricAuthenticateLatency, Name: "formauth_authenticate_latency_seconds", Help: "Credential verification latency."},
}

// HistogramBounds are the finite upper bounds in seconds. The engine keeps
// one extra overflow bucket for +Inf.
var HistogramBounds = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

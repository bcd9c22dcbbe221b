package internaldefs

import (
	authgate "github.com/tripwell/authgate"
)

// CounterDef defines a public type used by authgate APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication gateway.
var CounterDefs = []CounterDef{
	{ID: authgate.MetricLoginSuccess, Name: "authgate_login_success_total", Help: "Successful login attempts."},
	{ID: authgate.MetricLoginFailure, Name: "authgate_login_failure_total", Help: "Failed login attempts."},
	{ID: authgate.MetricOtpSent, Name: "authgate_otp_sent_total", Help: "One-time codes dispatched upstream."},
	{ID: authgate.MetricOtpSendFailure, Name: "authgate_otp_send_failure_total", Help: "Failed one-time code dispatches."},
	{ID: authgate.MetricOtpVerifySuccess, Name: "authgate_otp_verify_success_total", Help: "Accepted one-time codes."},
	{ID: authgate.MetricOtpVerifyFailure, Name: "authgate_otp_verify_failure_total", Help: "Rejected one-time codes."},
	{ID: authgate.MetricLogout, Name: "authgate_logout_total", Help: "Logout operations."},
	{ID: authgate.MetricLogoutUpstreamFailure, Name: "authgate_logout_upstream_failure_total", Help: "Best-effort logout calls rejected upstream."},
	{ID: authgate.MetricSessionCreated, Name: "authgate_session_created_total", Help: "Minted cookie sessions."},
	{ID: authgate.MetricSessionCleared, Name: "authgate_session_cleared_total", Help: "Sessions returned to anonymous."},
	{ID: authgate.MetricTransportFailure, Name: "authgate_transport_failure_total", Help: "Upstream calls failing at the transport layer."},
}

package authcore

import "sync/atomic"

// MetricID indexes a single engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshRateLimited
	MetricSessionRevoked
	MetricSessionRevokedAll
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricPasswordChangeSuccess
	MetricPasswordChangeFailure
	MetricResetRequested
	MetricResetCompleted
	MetricResetFailure
	MetricOAuthLogin
	MetricOAuthNewUser
	MetricOAuthAutoLink
	MetricOAuthConflict
	MetricOAuthProviderError
	MetricUnlinkSuccess
	MetricUnlinkBlocked

	metricCount
)

var metricNames = [metricCount]string{
	MetricLoginSuccess:          "login_success",
	MetricLoginFailure:          "login_failure",
	MetricLoginRateLimited:      "login_rate_limited",
	MetricRefreshSuccess:        "refresh_success",
	MetricRefreshFailure:        "refresh_failure",
	MetricRefreshRateLimited:    "refresh_rate_limited",
	MetricSessionRevoked:        "session_revoked",
	MetricSessionRevokedAll:     "session_revoked_all",
	MetricRegisterSuccess:       "register_success",
	MetricRegisterDuplicate:     "register_duplicate",
	MetricPasswordChangeSuccess: "password_change_success",
	MetricPasswordChangeFailure: "password_change_failure",
	MetricResetRequested:        "reset_requested",
	MetricResetCompleted:        "reset_completed",
	MetricResetFailure:          "reset_failure",
	MetricOAuthLogin:            "oauth_login",
	MetricOAuthNewUser:          "oauth_new_user",
	MetricOAuthAutoLink:         "oauth_auto_link",
	MetricOAuthConflict:         "oauth_conflict",
	MetricOAuthProviderError:    "oauth_provider_error",
	MetricUnlinkSuccess:         "unlink_success",
	MetricUnlinkBlocked:         "unlink_blocked",
}

// metrics is a fixed array of atomic counters. A nil *metrics (metrics
// disabled) makes every operation a no-op.
type metrics struct {
	counters [metricCount]atomic.Uint64
}

func newMetrics(cfg MetricsConfig) *metrics {
	if !cfg.Enabled {
		return nil
	}
	return &metrics{}
}

func (m *metrics) inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

func (m *metrics) snapshot() MetricsSnapshot {
	if m == nil {
		return nil
	}
	out := make(MetricsSnapshot, metricCount)
	for id := MetricID(0); id < metricCount; id++ {
		out[metricNames[id]] = m.counters[id].Load()
	}
	return out
}

// Metrics returns a point-in-time copy of the engine counters, or nil when
// metrics are disabled.
func (e *Engine) Metrics() MetricsSnapshot {
	return e.metrics.snapshot()
}

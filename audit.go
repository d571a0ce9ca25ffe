package authcore

import (
	"context"
	"io"
	"time"

	"github.com/eduportal/authcore/internal/audit"
)

// Audit surface re-exported so integrators never import internal/audit.
type (
	AuditEvent     = audit.Event
	AuditSink      = audit.Sink
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
)

// NewChannelSink returns a sink that forwards events to a buffered channel.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that writes one JSON event per line.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// Audit event types emitted by the engine.
const (
	auditEventLoginSuccess     = "login_success"
	auditEventLoginFailure     = "login_failure"
	auditEventLoginRateLimited = "login_rate_limited"
	auditEventRefreshSuccess   = "refresh_success"
	auditEventRefreshFailure   = "refresh_failure"
	auditEventLogout           = "logout"
	auditEventLogoutAll        = "logout_all"
	auditEventRegister         = "register"
	auditEventRegisterFailure  = "register_failure"
	auditEventPasswordChange   = "password_change"
	auditEventResetRequested   = "reset_requested"
	auditEventResetCompleted   = "reset_completed"
	auditEventResetFailure     = "reset_failure"
	auditEventOAuthLogin       = "oauth_login"
	auditEventOAuthFailure     = "oauth_failure"
	auditEventUnlink           = "unlink"
	auditEventUnlinkBlocked    = "unlink_blocked"
)

// emitAudit builds event metadata lazily so disabled audit pays nothing
// beyond a nil check.
func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID string, cause error, metadata func() map[string]string) {
	if e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		ClientIP:  clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}
	e.audit.Emit(ctx, event)
}

// AuditDropped reports how many audit events were lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

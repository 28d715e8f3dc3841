package formauth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLoginRateLimited   = "login_rate_limited"
	auditEventChallengeIssued    = "challenge_issued"
	auditEventChallengeFailed    = "challenge_failed"
	auditEventRememberMeIssued   = "remember_me_issued"
	auditEventRememberMeLogin    = "remember_me_login"
	auditEventRememberMeRejected = "remember_me_rejected"
	auditEventRememberMeTheft    = "remember_me_theft"
	auditEventPasswordUpgraded   = "password_upgraded"
	auditEventLogout             = "logout"
	auditEventLogoutAll          = "logout_all"
)

// AuditErrorCode is the Error field of failed audit events. Failures carry
// their [FailureKind] code; anything else is internal_error.
type AuditErrorCode string

const (
	auditErrSessionNotFound       AuditErrorCode = "session_not_found"
	auditErrSessionCreationFailed AuditErrorCode = "session_creation_failed"
	auditErrInternal              AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	username string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Username:  username,
		SessionID: sessionID,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var f *Failure
	if errors.As(err, &f) {
		return AuditErrorCode(f.Kind.String())
	}

	switch {
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionCreationFailed):
		return auditErrSessionCreationFailed
	default:
		for _, kind := range []FailureKind{
			UserNotFound, AccountDisabled, AccountLocked, AccountExpired, CredentialsExpired,
			BadCredentials, ChallengeFailed, TokenInvalid, TokenExpired, StoreUnavailable, RateLimited,
		} {
			if errors.Is(err, kind.Sentinel()) {
				return AuditErrorCode(kind.String())
			}
		}
		return auditErrInternal
	}
}

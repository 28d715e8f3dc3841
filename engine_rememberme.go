package formauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/formauth/rememberme"
)

// RememberMeEnabled reports whether remember-me tokens are issued.
func (e *Engine) RememberMeEnabled() bool {
	return e != nil && e.rememberMe != nil
}

func parseRememberMeCookie(cookie string) (string, string, error) {
	return rememberme.ParseCookie(cookie)
}

// issueRememberMe creates a series for username. Failure to issue does not
// fail the login that requested it.
func (e *Engine) issueRememberMe(ctx context.Context, username, sessionID string) *rememberme.Token {
	tok, err := e.rememberMe.Issue(ctx, username)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		e.logger.ErrorContext(ctx, "remember-me issue failed", "operation", "remember_me_issue", "username", username, "error", err)
		return nil
	}

	e.metricInc(MetricRememberMeIssued)
	e.emitAudit(ctx, auditEventRememberMeIssued, true, username, sessionID, nil, nil)
	return &tok
}

// AutoLogin re-authenticates a browser from its remember-me cookie. The
// presented token is rotated, the user is reloaded and the account checks
// run again; a failing check revokes the series. On success a fresh session
// replaces sessionID and the rotated token is returned for the cookie.
// Failures are returned as *Failure.
//
// When a backend fails after the token was rotated, the series is kept and
// the result carries only RememberMe next to the StoreUnavailable failure,
// so the caller can still hand the browser its new cookie.
func (e *Engine) AutoLogin(ctx context.Context, cookie, sessionID string) (*LoginResult, error) {
	if e.rememberMe == nil {
		return nil, ErrRememberMeDisabled
	}

	series, value, err := rememberme.ParseCookie(cookie)
	if err != nil {
		return nil, e.rejectRememberMe(ctx, TokenInvalid, "", sessionID, err)
	}

	tok, err := e.rememberMe.ValidateAndRotate(ctx, series, value)
	if err != nil {
		switch {
		case errors.Is(err, rememberme.ErrTokenTheft):
			e.handleTheft(ctx, tok.Username, sessionID)
			return nil, e.newFailure(TokenInvalid, err)
		case errors.Is(err, rememberme.ErrTokenExpired):
			return nil, e.rejectRememberMe(ctx, TokenExpired, tok.Username, sessionID, err)
		case errors.Is(err, rememberme.ErrTokenNotFound), errors.Is(err, rememberme.ErrMalformedCookie):
			return nil, e.rejectRememberMe(ctx, TokenInvalid, tok.Username, sessionID, err)
		default:
			e.metricInc(MetricStoreUnavailable)
			e.logger.ErrorContext(ctx, "remember-me store unavailable", "operation", "remember_me_login", "error", err)
			return nil, e.newFailure(StoreUnavailable, err)
		}
	}

	user, err := e.credentials.FindByUsername(ctx, tok.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			if rerr := e.rememberMe.Revoke(ctx, tok.Series); rerr != nil {
				e.logger.WarnContext(ctx, "remember-me revoke failed", "operation", "remember_me_login", "username", tok.Username, "error", rerr)
			}
			return nil, e.rejectRememberMe(ctx, UserNotFound, tok.Username, sessionID, err)
		}
		e.metricInc(MetricStoreUnavailable)
		e.logger.ErrorContext(ctx, "credential backend unavailable", "operation", "remember_me_login", "username", tok.Username, "error", err)
		return &LoginResult{RememberMe: &tok}, e.newFailure(StoreUnavailable, err)
	}
	if kind, ok := accountStatusFailure(user); !ok {
		if err := e.rememberMe.Revoke(ctx, tok.Series); err != nil {
			e.logger.WarnContext(ctx, "remember-me revoke failed", "operation", "remember_me_login", "username", user.Username, "error", err)
		}
		return nil, e.rejectRememberMe(ctx, kind, user.Username, sessionID, nil)
	}

	identity := &Identity{
		Username:        user.Username,
		Authorities:     append([]string(nil), user.Authorities...),
		AuthenticatedAt: time.Now().UTC(),
	}
	newID, savedTarget, err := e.establishSession(ctx, sessionID, identity, tok.Series)
	if err != nil {
		return &LoginResult{RememberMe: &tok}, e.newFailure(StoreUnavailable, err)
	}

	e.metricInc(MetricRememberMeLogin)
	e.emitAudit(ctx, auditEventRememberMeLogin, true, user.Username, newID, nil, nil)

	return &LoginResult{
		Identity:    identity,
		SessionID:   newID,
		SavedTarget: savedTarget,
		RememberMe:  &tok,
	}, nil
}

func (e *Engine) rejectRememberMe(ctx context.Context, kind FailureKind, username, sessionID string, cause error) *Failure {
	f := e.newFailure(kind, cause)
	e.metricInc(MetricRememberMeRejected)
	e.emitAudit(ctx, auditEventRememberMeRejected, false, username, sessionID, f, nil)
	return f
}

// handleTheft treats a reused token value as proof that the cookie was
// copied: every series of the user is revoked. Sessions are left alone so
// a request that won the rotation keeps the session it was just given.
func (e *Engine) handleTheft(ctx context.Context, username, sessionID string) {
	e.metricInc(MetricRememberMeTheft)
	e.logger.WarnContext(ctx, "remember-me token reuse detected",
		"operation", "remember_me_login",
		"outcome", "theft",
		"username", username,
	)
	e.emitAudit(ctx, auditEventRememberMeTheft, false, username, sessionID, ErrTokenInvalid, nil)

	if username == "" {
		return
	}
	if err := e.rememberMe.RevokeAllForUser(ctx, username); err != nil {
		e.logger.ErrorContext(ctx, "remember-me revoke all failed", "operation", "remember_me_theft", "username", username, "error", err)
	}
}

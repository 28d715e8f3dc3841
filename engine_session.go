package formauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/formauth/internal"
	"github.com/MrEthical07/formauth/session"
)

// maxSavedTarget matches the longest target the session encoding accepts.
const maxSavedTarget = 4096

// Session loads a session by identifier. Malformed identifiers are reported
// as [ErrSessionNotFound] without touching Redis.
func (e *Engine) Session(ctx context.Context, sessionID string) (*session.Session, error) {
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		return nil, ErrSessionNotFound
	}

	sess, err := e.sessionStore.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrInvalidEncoding) {
			return nil, ErrSessionNotFound
		}
		e.metricInc(MetricStoreUnavailable)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sess, nil
}

// SessionIdentity returns the identity held by an authenticated session.
// Anonymous sessions are reported as [ErrSessionNotFound].
func (e *Engine) SessionIdentity(ctx context.Context, sessionID string) (*Identity, error) {
	sess, err := e.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Authenticated() {
		return nil, ErrSessionNotFound
	}
	return identityFromSession(sess), nil
}

func identityFromSession(sess *session.Session) *Identity {
	return &Identity{
		Username:        sess.Username,
		Authorities:     append([]string(nil), sess.Authorities...),
		AuthenticatedAt: time.Unix(sess.AuthenticatedAt, 0).UTC(),
	}
}

// EnsureSession returns the existing session or creates an anonymous one.
// created reports whether the caller must set a new cookie.
func (e *Engine) EnsureSession(ctx context.Context, sessionID string) (sess *session.Session, created bool, err error) {
	if sessionID != "" {
		sess, err = e.Session(ctx, sessionID)
		if err == nil {
			return sess, false, nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, false, err
		}
	}

	id, err := internal.NewSessionID()
	if err != nil {
		return nil, false, err
	}
	now := time.Now()
	sess = &session.Session{
		SessionID: id.String(),
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(e.config.Session.Lifetime).Unix(),
	}
	if err := e.sessionStore.Save(ctx, sess, e.config.Session.Lifetime); err != nil {
		e.metricInc(MetricStoreUnavailable)
		return nil, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sess, true, nil
}

// SaveTarget remembers the URL an unauthenticated request asked for so the
// success handler can return to it after login. Targets longer than the
// session encoding allows are dropped.
func (e *Engine) SaveTarget(ctx context.Context, sessionID, target string) (*session.Session, bool, error) {
	sess, created, err := e.EnsureSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if len(target) > maxSavedTarget || sess.SavedTarget == target {
		return sess, created, nil
	}

	sess.SavedTarget = target
	if err := e.saveRemaining(ctx, sess); err != nil {
		return nil, false, err
	}
	return sess, created, nil
}

func (e *Engine) saveRemaining(ctx context.Context, sess *session.Session) error {
	ttl := time.Until(time.Unix(sess.ExpiresAt, 0))
	if ttl <= 0 {
		return ErrSessionNotFound
	}
	if err := e.sessionStore.Save(ctx, sess, ttl); err != nil {
		e.metricInc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// establishSession replaces oldID with a fresh authenticated session and
// returns the new identifier and the saved target carried by the old one.
func (e *Engine) establishSession(ctx context.Context, oldID string, identity *Identity, series string) (string, string, error) {
	savedTarget := ""
	if oldID != "" {
		prev, err := e.Session(ctx, oldID)
		switch {
		case err == nil:
			savedTarget = prev.SavedTarget
			if prev.RememberMeSeries != "" && prev.RememberMeSeries != series && e.rememberMe != nil {
				if err := e.rememberMe.Revoke(ctx, prev.RememberMeSeries); err != nil {
					e.logger.WarnContext(ctx, "remember-me revoke failed", "operation", "establish_session", "username", identity.Username, "error", err)
				}
			}
		case errors.Is(err, ErrSessionNotFound):
			oldID = ""
		default:
			return "", "", errors.Join(ErrSessionCreationFailed, err)
		}
	}

	id, err := internal.NewSessionID()
	if err != nil {
		return "", "", errors.Join(ErrSessionCreationFailed, err)
	}
	now := time.Now()
	sess := &session.Session{
		Username:         identity.Username,
		Authorities:      identity.Authorities,
		AuthenticatedAt:  identity.AuthenticatedAt.Unix(),
		RememberMeSeries: series,
		CreatedAt:        now.Unix(),
		ExpiresAt:        now.Add(e.config.Session.Lifetime).Unix(),
	}
	if err := e.sessionStore.Rotate(ctx, oldID, id.String(), sess, e.config.Session.Lifetime); err != nil {
		e.metricInc(MetricStoreUnavailable)
		e.logger.ErrorContext(ctx, "session rotation failed", "operation", "establish_session", "username", identity.Username, "error", err)
		return "", "", errors.Join(ErrSessionCreationFailed, err)
	}

	e.metricInc(MetricSessionCreated)
	return sess.SessionID, savedTarget, nil
}

// Logout destroys the session and revokes the remember-me series linked to
// it or named by rememberCookie. Unknown sessions and cookies are ignored.
func (e *Engine) Logout(ctx context.Context, sessionID, rememberCookie string) error {
	username := ""
	var series []string

	if sessionID != "" {
		sess, err := e.Session(ctx, sessionID)
		switch {
		case err == nil:
			username = sess.Username
			if sess.RememberMeSeries != "" {
				series = append(series, sess.RememberMeSeries)
			}
			if err := e.sessionStore.Delete(ctx, sessionID); err != nil {
				e.metricInc(MetricStoreUnavailable)
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		case errors.Is(err, ErrSessionNotFound):
		default:
			return err
		}
	}

	if e.rememberMe != nil {
		if rememberCookie != "" {
			if s, _, err := parseRememberMeCookie(rememberCookie); err == nil {
				series = append(series, s)
			}
		}
		for _, s := range series {
			if err := e.rememberMe.Revoke(ctx, s); err != nil {
				e.metricInc(MetricStoreUnavailable)
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, username, sessionID, nil, nil)
	return nil
}

// LogoutAll destroys every session and remember-me series of username.
func (e *Engine) LogoutAll(ctx context.Context, username string) error {
	if err := e.sessionStore.DeleteAllForUser(ctx, username); err != nil {
		e.metricInc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if e.rememberMe != nil {
		if err := e.rememberMe.RevokeAllForUser(ctx, username); err != nil {
			e.metricInc(MetricStoreUnavailable)
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutAll, true, username, "", nil, nil)
	return nil
}

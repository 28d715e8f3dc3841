package formauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/formauth/challenge"
)

// ChallengeEnabled reports whether form logins must carry a verification
// code.
func (e *Engine) ChallengeEnabled() bool {
	return e != nil && e.challengeStore != nil
}

// IssueChallenge mints a verification code bound to the caller's session,
// creating an anonymous session when there is none. The returned session
// identifier must be written back if it differs from sessionID.
func (e *Engine) IssueChallenge(ctx context.Context, sessionID string) (code, boundSessionID string, err error) {
	if e.challengeStore == nil {
		return "", "", ErrChallengeDisabled
	}

	sess, _, err := e.EnsureSession(ctx, sessionID)
	if err != nil {
		return "", "", err
	}

	code, err = e.challengeStore.Issue(ctx, sess.SessionID)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		e.logger.ErrorContext(ctx, "challenge issue failed", "operation", "challenge_issue", "error", err)
		return "", "", e.newFailure(StoreUnavailable, err)
	}

	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, auditEventChallengeIssued, true, "", sess.SessionID, nil, nil)
	return code, sess.SessionID, nil
}

// VerifyChallenge consumes the pending code of sessionID and compares it
// with presented. It returns nil on match or when the challenge is
// disabled. The pending code is gone after this call whatever the result.
func (e *Engine) VerifyChallenge(ctx context.Context, sessionID, presented string) *Failure {
	if e.challengeStore == nil {
		return nil
	}

	err := e.challengeStore.Verify(ctx, sessionID, presented)
	if err == nil {
		return nil
	}

	kind := ChallengeFailed
	if errors.Is(err, challenge.ErrRedisUnavailable) {
		kind = StoreUnavailable
		e.logger.ErrorContext(ctx, "challenge verify failed", "operation", "challenge_verify", "error", err)
	}

	f := e.newFailure(kind, err)
	e.metricInc(MetricLoginFailure)
	e.metricInc(failureMetrics[kind])
	e.emitAudit(ctx, auditEventChallengeFailed, false, "", sessionID, f, nil)
	return f
}

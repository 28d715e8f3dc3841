package formauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/formauth/challenge"
	"github.com/MrEthical07/formauth/internal/rate"
	"github.com/MrEthical07/formauth/jwt"
	"github.com/MrEthical07/formauth/rememberme"
	"github.com/MrEthical07/formauth/session"
)

// Engine runs the authentication pipeline. It is safe for concurrent use
// once built.
type Engine struct {
	config         Config
	logger         *slog.Logger
	credentials    CredentialStore
	hasher         PasswordHasher
	dummyHash      string
	sessionStore   *session.Store
	challengeStore *challenge.Store
	rememberMe     RememberMeStore
	rateLimiter    *rate.Limiter
	audit          *auditDispatcher
	metrics        *Metrics
	jwtManager     *jwt.Manager
}

// Close drains pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Ping reports whether the session store answers, with its round-trip
// latency. Failures wrap [ErrStoreUnavailable].
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	latency, err := e.sessionStore.Ping(ctx)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return latency, nil
}

// AuditDropped returns how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByEvent breaks [Engine.AuditDropped] down by event type.
func (e *Engine) AuditDroppedByEvent() map[string]uint64 {
	if e == nil || e.audit == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByEvent()
}

// MetricsSnapshot copies the current counters and histograms. It returns
// empty maps when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

var failureMetrics = map[FailureKind]MetricID{
	UserNotFound:       MetricUserNotFound,
	BadCredentials:     MetricBadCredentials,
	AccountDisabled:    MetricAccountDisabled,
	AccountLocked:      MetricAccountLocked,
	AccountExpired:     MetricAccountExpired,
	CredentialsExpired: MetricCredentialsExpired,
	ChallengeFailed:    MetricChallengeFailed,
	StoreUnavailable:   MetricStoreUnavailable,
	RateLimited:        MetricLoginRateLimited,
}

// Authenticate verifies one credential submission. The checks run in a
// fixed order and the first failing one decides the outcome: throttling,
// empty password, lookup, enabled, locked, account expiry, credential
// expiry, password. It never returns a nil Identity together with a nil
// Failure.
func (e *Engine) Authenticate(ctx context.Context, req AuthenticationRequest) Outcome {
	if e == nil || e.hasher == nil || e.credentials == nil {
		return Outcome{Failure: &Failure{Kind: StoreUnavailable, Message: failureMessages[StoreUnavailable], Err: ErrEngineNotReady}}
	}
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}
	}()

	if req.ClientAddress == "" {
		req.ClientAddress = ClientIPFromContext(ctx)
	} else {
		ctx = WithClientIP(ctx, req.ClientAddress)
	}
	username := strings.TrimSpace(req.Username)

	if err := e.rateLimiter.CheckLogin(ctx, username, req.ClientAddress); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return e.failLogin(ctx, RateLimited, username, req.SessionID, err)
		}
		return e.failLogin(ctx, StoreUnavailable, username, req.SessionID, err)
	}

	if req.RawPassword == "" {
		e.countAttempt(ctx, username, req.ClientAddress)
		return e.failLogin(ctx, BadCredentials, username, req.SessionID, errors.New("empty password"))
	}

	user, err := e.credentials.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = e.hasher.Verify(req.RawPassword, e.dummyHash)
			e.countAttempt(ctx, username, req.ClientAddress)
			return e.failLogin(ctx, UserNotFound, username, req.SessionID, err)
		}
		return e.failLogin(ctx, StoreUnavailable, username, req.SessionID, err)
	}

	if kind, ok := accountStatusFailure(user); !ok {
		return e.failLogin(ctx, kind, username, req.SessionID, nil)
	}

	match, err := e.hasher.Verify(req.RawPassword, user.PasswordHash)
	if err != nil {
		e.logger.ErrorContext(ctx, "stored password hash rejected",
			"operation", "authenticate",
			"username", username,
			"error", err,
		)
	}
	if !match {
		e.countAttempt(ctx, username, req.ClientAddress)
		return e.failLogin(ctx, BadCredentials, username, req.SessionID, err)
	}

	if err := e.rateLimiter.ResetLogin(ctx, username); err != nil {
		e.logger.WarnContext(ctx, "login counter reset failed", "operation", "authenticate", "username", username, "error", err)
	}
	e.maybeUpgradePassword(ctx, user, req.RawPassword)

	identity := &Identity{
		Username:        user.Username,
		Authorities:     append([]string(nil), user.Authorities...),
		AuthenticatedAt: time.Now().UTC(),
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.Username, req.SessionID, nil, nil)

	return Outcome{Identity: identity}
}

// accountStatusFailure applies the account-state checks in order.
func accountStatusFailure(u User) (FailureKind, bool) {
	switch {
	case !u.Enabled:
		return AccountDisabled, false
	case !u.AccountNonLocked:
		return AccountLocked, false
	case !u.AccountNonExpired:
		return AccountExpired, false
	case !u.CredentialsNonExpired:
		return CredentialsExpired, false
	default:
		return 0, true
	}
}

func (e *Engine) failLogin(ctx context.Context, kind FailureKind, username, sessionID string, cause error) Outcome {
	f := e.newFailure(kind, cause)

	e.metricInc(MetricLoginFailure)
	if id, ok := failureMetrics[kind]; ok {
		e.metricInc(id)
	}

	eventType := auditEventLoginFailure
	if kind == RateLimited {
		eventType = auditEventLoginRateLimited
	}
	e.emitAudit(ctx, eventType, false, username, sessionID, f, func() map[string]string {
		return map[string]string{"reason": kind.String()}
	})

	if kind == StoreUnavailable {
		e.logger.ErrorContext(ctx, "credential backend unavailable",
			"operation", "authenticate",
			"outcome", kind.String(),
			"username", username,
			"error", cause,
		)
	} else {
		e.logger.DebugContext(ctx, "authentication failed",
			"operation", "authenticate",
			"outcome", kind.String(),
			"username", username,
		)
	}

	return Outcome{Failure: f}
}

func (e *Engine) newFailure(kind FailureKind, cause error) *Failure {
	return newFailure(kind, e.config.Security.HideFailureDetail, cause)
}

// countAttempt records a failed credential check. A counter failure is
// logged and otherwise ignored: the next CheckLogin will surface the outage.
func (e *Engine) countAttempt(ctx context.Context, username, ip string) {
	if err := e.rateLimiter.IncrementLogin(ctx, username, ip); err != nil {
		e.logger.WarnContext(ctx, "login counter update failed", "operation", "authenticate", "username", username, "error", err)
	}
}

// maybeUpgradePassword re-hashes the password when the stored hash uses a
// legacy algorithm or outdated parameters. It is best-effort and never
// fails the login.
func (e *Engine) maybeUpgradePassword(ctx context.Context, user User, raw string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	checker, ok := e.hasher.(upgradeChecker)
	if !ok {
		return
	}
	upgrader, ok := e.credentials.(PasswordUpgrader)
	if !ok {
		return
	}

	needs, err := checker.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	upgraded, err := e.hasher.Hash(raw)
	if err != nil {
		e.logger.WarnContext(ctx, "password hash upgrade generation failed", "operation", "upgrade_password", "username", user.Username, "error", err)
		return
	}
	if err := upgrader.UpdatePasswordHash(ctx, user.Username, upgraded); err != nil {
		e.logger.WarnContext(ctx, "password hash upgrade update failed", "operation", "upgrade_password", "username", user.Username, "error", err)
		return
	}

	e.metricInc(MetricPasswordUpgraded)
	e.emitAudit(ctx, auditEventPasswordUpgraded, true, user.Username, "", nil, nil)
}

// Login authenticates req and, on success, establishes a fresh session.
// The caller's previous session identifier is retired so an identifier
// planted before login cannot be reused; its saved target is returned in
// the result. When req.RememberMe is set and remember-me is enabled a new
// series is issued. Failures are returned as *Failure.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	outcome := e.Authenticate(ctx, AuthenticationRequest{
		Username:      req.Username,
		RawPassword:   req.Password,
		ClientAddress: ClientIPFromContext(ctx),
		SessionID:     req.SessionID,
	})
	if outcome.Failure != nil {
		return nil, outcome.Failure
	}
	identity := outcome.Identity

	var token *rememberme.Token
	if req.RememberMe && e.rememberMe != nil {
		token = e.issueRememberMe(ctx, identity.Username, req.SessionID)
	}

	series := ""
	if token != nil {
		series = token.Series
	}
	sessionID, savedTarget, err := e.establishSession(ctx, req.SessionID, identity, series)
	if err != nil {
		if token != nil {
			if rerr := e.rememberMe.Revoke(ctx, series); rerr != nil {
				e.logger.WarnContext(ctx, "remember-me revoke failed", "operation", "login", "username", identity.Username, "error", rerr)
			}
		}
		return nil, e.newFailure(StoreUnavailable, err)
	}

	return &LoginResult{
		Identity:    identity,
		SessionID:   sessionID,
		SavedTarget: savedTarget,
		RememberMe:  token,
	}, nil
}

package formauth

import (
	"context"
	"errors"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// BearerEnabled reports whether bearer tokens are issued and accepted.
func (e *Engine) BearerEnabled() bool {
	return e != nil && e.jwtManager != nil
}

// IssueAccessToken signs a bearer token for identity, bound to sessionID.
func (e *Engine) IssueAccessToken(identity *Identity, sessionID string) (string, time.Duration, error) {
	if e.jwtManager == nil {
		return "", 0, ErrJWTDisabled
	}
	token, err := e.jwtManager.CreateAccess(identity.Username, sessionID, identity.Authorities, identity.AuthenticatedAt)
	if err != nil {
		return "", 0, err
	}
	return token, e.jwtManager.TTL(), nil
}

// ValidateAccessToken verifies a bearer token and returns the identity it
// carries. Failures are returned as *Failure with kind TokenExpired or
// TokenInvalid.
func (e *Engine) ValidateAccessToken(ctx context.Context, token string) (*Identity, error) {
	if e.jwtManager == nil {
		return nil, ErrJWTDisabled
	}

	claims, err := e.jwtManager.ParseAccess(token)
	if err != nil {
		if errors.Is(err, gjwt.ErrTokenExpired) {
			return nil, e.newFailure(TokenExpired, err)
		}
		e.logger.DebugContext(ctx, "bearer token rejected", "operation", "validate_bearer", "error", err)
		return nil, e.newFailure(TokenInvalid, err)
	}

	identity := &Identity{
		Username:    claims.Subject,
		Authorities: claims.Authorities,
	}
	if claims.AuthTime > 0 {
		identity.AuthenticatedAt = time.Unix(claims.AuthTime, 0).UTC()
	} else if claims.IssuedAt != nil {
		identity.AuthenticatedAt = claims.IssuedAt.Time.UTC()
	}
	return identity, nil
}

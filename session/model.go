package session

// Session is the server-side state behind the session cookie. A session with
// an empty Username is anonymous: it exists to carry a saved target or a
// pending challenge before login.
type Session struct {
	SessionID string

	Username        string
	Authorities     []string
	AuthenticatedAt int64

	// SavedTarget is the URL the browser asked for before being sent to the
	// login page. It is cleared once consumed by the success handler.
	SavedTarget string

	// RememberMeSeries links the session to the series that authenticated it
	// so logout can revoke that series.
	RememberMeSeries string

	CreatedAt int64
	ExpiresAt int64
}

// Authenticated reports whether the session carries an identity.
func (s *Session) Authenticated() bool {
	return s != nil && s.Username != ""
}

// Package jwt issues and verifies the bearer tokens handed to API clients
// after a form login. Tokens carry the username as subject plus the
// authorities of the identity; they are not a substitute for the session
// cookie used by browsers.
package jwt

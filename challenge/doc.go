// Package challenge stores the short-lived verification codes that must be
// presented alongside a login form.
//
// A code is bound to one session, expires after a fixed TTL, and is consumed
// by the first verification attempt whether or not it matched.
package challenge

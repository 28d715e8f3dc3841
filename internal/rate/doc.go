// Package rate provides the Redis-backed fixed-window counters used to
// throttle failed form logins.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on first hit. With the default
// prefix "fl" the keys are:
//   - fl:<username>  failed logins per username
//   - fli:<address>  failed logins per client address
package rate

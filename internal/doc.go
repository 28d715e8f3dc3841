// Package internal contains helper utilities that are private to formauth:
// session identifiers, remember-me series and token values, and challenge
// code generation, all drawn from crypto/rand.
//
// # Sub-packages
//
//   - logging: slog handler setup with trace correlation
//   - rate: Redis-backed fixed-window login throttling
//   - security: security posture report for an engine configuration
//   - store: embedded SQL migrations and the migration runner
package internal

// Package middleware adapts formauth.Engine to net/http.
//
// # Guards
//
//   - [Guard] protects everything outside Routes.PermitAll: session cookie,
//     then bearer token, then remember-me cookie, then the entry point.
//   - [RequireBearer] accepts bearer tokens only.
//   - [RequireAuthority] checks an authority on the identity a guard set.
//   - [ChallengeFilter] verifies the login form's verification code before
//     any credential is checked.
//
// [CSRF], [RequestID], [ClientIP] and [AccessLog] are the request plumbing
// the router installs in front of them.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not
// implement authentication itself and never touches Redis or the
// credential store directly.
package middleware

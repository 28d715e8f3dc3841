// Package formauth authenticates interactive form logins against a
// username/password credential store and keeps the result in a Redis-backed
// server-side session.
//
// The pipeline is: optional verification-code challenge, login throttling,
// credential lookup, account-state checks (enabled, locked, expired,
// credentials expired), password verification, then session establishment
// with identifier rotation. Browsers that opted in get a rotating
// remember-me token that re-authenticates them after the session expires;
// a reused token value is treated as theft and revokes every remember-me
// token of the user.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// formauth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types ([User], [Identity], [Failure], [MetricsSnapshot]).
// Storage, throttling and code generation live in sub-packages and
// internal/. HTTP handling lives in the middleware and web packages, which
// import formauth and never the other way round.
//
// # Failures
//
// Authentication failures are returned as *[Failure]. Every Failure
// matches the sentinel of its [FailureKind] through errors.Is, and its
// Message is safe to render. With Security.HideFailureDetail set, unknown
// users, wrong passwords and account-state failures all read
// "Bad credentials"; the precise kind still reaches logs, metrics and audit.
package formauth

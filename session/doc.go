// Package session provides Redis-backed persistence for browser sessions and
// their compact binary encoding.
//
// # Binary encoding
//
// Sessions are stored as a versioned, length-prefixed binary blob. Decoding
// rejects unknown versions rather than guessing.
//
// # Fixation protection
//
// [Store.Rotate] moves a session to a fresh identifier in one MULTI/EXEC so
// an identifier planted before login is never the one that becomes
// authenticated.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does not verify
// credentials or decide whether a request is allowed; that belongs to the
// engine and the middleware.
package session

// Package password implements salted, one-way password hashing and verification.
//
// # Output formats
//
// [Argon2] encodes hashes in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Bcrypt] produces standard modular-crypt strings ($2a$/$2b$).
//
// [Delegating] writes with one algorithm and reads with any registered one,
// so bcrypt hashes imported from older deployments keep verifying and are
// reported by NeedsUpgrade until re-hashed.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. It never stores, logs or
// echoes plaintext, and it does not import any other formauth package.
package password

// Package store holds the Postgres plumbing shared by the credential and
// remember-me adapters: the [Pool] abstraction, pool construction, and the
// embedded schema migrations applied by [Migrator].
package store

// Package credentials provides [formauth.CredentialStore] implementations.
//
// [Memory] keeps users in a map and is meant for development and tests.
// [Postgres] reads the users and authorities tables created by the
// migrations in internal/store. Both report unknown users with
// [formauth.ErrUserNotFound]; any other error is a backend failure and is
// surfaced by the engine as StoreUnavailable.
package credentials

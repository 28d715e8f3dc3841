// Package web is the HTTP surface of form login: the login page and form
// endpoint, the authentication entry point, the verification code image,
// logout, and the success and failure handlers that shape responses for
// browsers and script clients.
//
// [NewRouter] wires these endpoints behind the middleware package's
// guard, CSRF protection and challenge filter.
package web

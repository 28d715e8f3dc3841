// Package security summarizes the security posture of an engine
// configuration.
//
// [BuildReport] turns flat configuration inputs into a [Report] with the
// active protections and a list of warnings for settings that weaken them.
// The root package exposes it as Engine.SecurityReport; the server binary
// logs it at startup.
package security

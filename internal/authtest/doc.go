// Package authtest is an in-process fake of the authentication backend the
// session client talks to.
//
// It implements the login, refresh, register, me, logout and logout-all
// endpoints with real mechanics: Argon2id password checks, HS256 access
// tokens, rotating opaque refresh tokens with reuse detection, a Redis
// login throttle and an account lockout. Any other path under /api/ is an
// authenticated echo endpoint.
//
// Tests script failures with [Backend.FailNext], revoke credentials with
// [Backend.ExpireAccessTokens] or [Backend.RevokeSessions], and read
// per-path call counts with [Backend.Calls].
//
// # What this package must NOT do
//
//   - Be imported by library code; it exists for tests and demos.
package authtest

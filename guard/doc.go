// Package guard gates navigation on the session's authenticated state.
//
// [Check] is the pure predicate: an authenticated session is allowed through,
// anything else is redirected to the login route with the intended
// destination attached as a return parameter. [Require] wraps Check as HTTP
// middleware for hosts that serve pages.
//
// # What this package must NOT do
//
//   - Call the backend or refresh tokens. The decision reads IsAuth only.
//   - Redirect to another origin. Return targets pass through [SafeReturnPath].
package guard

// Package goSession manages a user's authenticated session against a fixed
// HTTP authentication backend: token storage, silent renewal on 401,
// inactivity auto-logout, and the lifecycle operations login, refresh,
// profile load, logout and logout-all.
//
// A [Client] is built once through [Builder.Build] and is safe to use from
// multiple goroutines. Application requests go through [Client.HTTPClient],
// which attaches the access token and recovers from expired tokens.
//
// # Architecture boundaries
//
// goSession is the public surface and the only writer of session state
// (authenticated flag, current user). Wire types live in authapi, the request
// pipeline in transport, persistence in token, and idle detection in
// inactivity. UI-facing controllers (guard, loginpage, dashboard) consume the
// Client through small interfaces.
//
// # What this package must NOT do
//
//   - Log or audit token values or passwords.
//   - Let a failed server-side logout block local cleanup.
//   - Retry a request more than once after a refresh.
package goSession

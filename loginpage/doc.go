// Package loginpage drives the login screen on top of a session client.
//
// A [Controller] submits credentials, counts rejected attempts, runs the
// rate-limit countdown after a 429 and opens a [LockDialog] after a 403 that
// carries a lock expiry. Every piece of screen state is available both as a
// [State] snapshot and as an [observable.Value].
//
// Timers come from a clockwork.Clock so hosts and tests share one time source.
// Starting a countdown always cancels the prior one; [Controller.Close] stops
// every timer the controller owns.
//
// # What this package must NOT do
//
//   - Store tokens or talk to the backend directly. Login goes through the
//     session client.
//   - Navigate anywhere but the sanitised return path or the home route.
package loginpage

// Package limiters provides the account lockout policy of the fake
// authentication backend.
//
// [LockoutLimiter] counts failed logins per user and, once the threshold is
// reached, stores a lock deadline that the backend reports as lockedUntil.
//
// All methods are nil-safe: calling any method on a nil receiver is a no-op.
//
// # Architecture boundaries
//
// The limiter owns the "alo:" (failure counter) and "alk:" (lock deadline)
// Redis key namespaces. Thresholds come from [LockoutConfig].
//
// # What this package must NOT do
//
//   - Import goSession or any sibling internal package.
//   - Decide HTTP responses; the backend maps a lock to 403.
package limiters

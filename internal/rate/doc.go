// Package rate provides the Redis-backed login throttle used by the fake
// authentication backend.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - "rl:" login per-identifier
//   - "rli:" login per-IP
//
// A rejected check reports the remaining window (PTTL) so the backend can
// answer 429 with a retry-after hint.
//
// # What this package must NOT do
//
//   - Decide account lockout (that lives in internal/limiters).
//   - Be imported outside the goSession module.
package rate

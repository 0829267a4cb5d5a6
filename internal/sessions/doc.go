// Package sessions is the fake backend's Redis session store.
//
// # Refresh tokens
//
// Refresh tokens are opaque base64url strings carrying the KSUID session ID and a
// random secret. Only the SHA-256 hash of the secret is stored, and every
// refresh rotates it with a Lua compare-and-swap so a replayed token is
// detected as a hash mismatch.
//
// # Key layout
//
//   - <prefix>:<sid> hash with uid, rh (hex refresh hash), created
//   - <prefix>u:<uid> set of the user's session IDs
//
// # What this package must NOT do
//
//   - Issue or verify access tokens.
//   - Store plaintext refresh secrets.
package sessions

// Package jwt reads access-token claims on the client side and issues HS256 or
// Ed25519 access tokens for the local fake backend.
//
// Client code only ever peeks at claims: a browser-style client holds no
// verification key, so [ExpiresAt] and [Subject] decode without verifying the
// signature. [Manager] is the signing half, used by internal/authtest.
package jwt

// Package transport provides the two http.RoundTripper decorators every
// session-aware request flows through.
//
//   - [BearerTransport] attaches the in-memory access token and recovers from a
//     401 with one refresh-and-retry.
//   - [NormalizeTransport] turns non-2xx responses and transport failures into a
//     [*StatusError] carrying a user-presentable message.
//
// [Chain] assembles them as Bearer → Normalize → base, so a 401 reaches the
// bearer layer as a *StatusError.
//
// # Deliberate RoundTripper deviation
//
// NormalizeTransport returns a non-nil error for non-2xx responses. Callers
// going through http.Client receive it wrapped in *url.Error; use errors.As to
// recover the *StatusError.
//
// # What this package must NOT do
//
//   - Store or clear tokens (reads them through [TokenSource] only).
//   - Decide what a failed refresh means; [Refresher.ForceLogout] owns that.
package transport

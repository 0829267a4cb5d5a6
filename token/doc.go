// Package token holds the client's credential pair.
//
// The access token lives only in process memory and is exposed as an
// observable cell. The refresh token lives in a [Storage] under one fixed
// key so it survives a restart of the same browser or terminal session.
//
// Storage backends: [MemoryStorage] for one process, [RedisStorage] and
// [SQLStorage] for sessions that outlive it. The persistent backends group
// keys by a scope ID; reusing the scope resumes the session.
//
// # What this package must NOT do
//
//   - Write the access token to any Storage.
//   - Interpret token contents (tokens are opaque strings here).
//   - Perform network calls other than through a Storage implementation.
package token

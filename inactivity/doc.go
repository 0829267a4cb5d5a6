// Package inactivity detects idle users and emits a one-shot notification.
//
// A [Monitor] listens to a fixed set of activity signals from a [Source],
// coalesces bursts within a short window, and fires once when no activity
// has been seen for the configured timeout. After firing it is stopped;
// callers resume with StartWatching.
//
// # Architecture boundaries
//
// The monitor knows nothing about sessions or logout. Hosts feed activity
// through [Bus.Dispatch] (terminal input, HTTP requests, UI events) and
// consumers react to the channel returned by [Monitor.Subscribe].
package inactivity

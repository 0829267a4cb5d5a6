// Package observable provides a small reactive cell used for session state
// (authenticated flag, current user, countdowns).
//
// A [Value] offers a synchronous snapshot read plus an observer list. It
// does not buffer or coalesce changes: every Set reaches every subscriber.
package observable

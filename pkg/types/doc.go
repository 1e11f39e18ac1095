// Package types holds the domain model only — no persistence, no network
// calls. Everything here is a value type or a pure function over state
// sets, so it is safe to share across goroutines without synchronization.
package types

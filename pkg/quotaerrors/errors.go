// Package quotaerrors defines the typed errors the accounting core raises
// to callers, matching the taxonomy of input errors, lock timeouts, and
// store communication failures. Store arithmetic errors and event-handler
// delta errors never reach this package: they are handled locally (treated
// as a cache miss, or logged and swallowed) and never propagate as typed
// errors.
package quotaerrors

import (
	"fmt"
	"time"
)

// NotFoundError reports that an organization does not exist.
type NotFoundError struct {
	OrganizationID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("organization %q not found", e.OrganizationID)
}

// BadRequestError reports a caller-supplied argument mismatch, such as an
// Organization value whose ID does not match the ID requested.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad request: %s", e.Reason)
}

// LockTimeoutError reports that a distributed lock could not be acquired
// within its wait bound.
type LockTimeoutError struct {
	Key    string
	Waited time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting %s for lock %q", e.Waited, e.Key)
}

// StoreError wraps a backing-store failure: a shared in-memory store
// communication error, or a projection store read that failed during
// rehydrate. Callers distinguish it from arithmetic errors (never wrapped
// this way) because a StoreError means a backing store itself failed, not
// that a cached value failed to parse.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

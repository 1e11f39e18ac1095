package quotalock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/quotaledger/pkg/log"
	"github.com/cuemby/quotaledger/pkg/quotaerrors"
	"github.com/cuemby/quotaledger/pkg/rstore"
)

// backoffStart and backoffMax bound the retry loop in WaitForLock: start
// small so uncontended locks acquire almost immediately, cap so a
// long-held lock doesn't starve the caller's own timeout budget.
const (
	backoffStart = 10 * time.Millisecond
	backoffMax   = 500 * time.Millisecond
)

// Provider issues short-lived, owner-tagged locks over a shared store so
// concurrent rehydrates of the same organization serialize instead of
// racing.
type Provider struct {
	store *rstore.Client
}

// New creates a Provider backed by store.
func New(store *rstore.Client) *Provider {
	return &Provider{store: store}
}

// Lock is a held lock's release token.
type Lock struct {
	key   string
	owner string
}

// WaitForLock blocks until key is acquired or timeout elapses, retrying
// with bounded exponential backoff. ttl bounds how long the lock is held
// before it auto-expires, protecting against a crashed holder.
func (p *Provider) WaitForLock(ctx context.Context, key string, ttl, timeout time.Duration) (*Lock, error) {
	owner := uuid.NewString()
	deadline := time.Now().Add(timeout)
	wait := backoffStart

	for {
		ok, err := p.store.TryAcquire(ctx, key, owner, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lock{key: key, owner: owner}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &quotaerrors.LockTimeoutError{Key: key, Waited: timeout}
		}

		sleep := wait
		if sleep > remaining {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}

		wait *= 2
		if wait > backoffMax {
			wait = backoffMax
		}
	}
}

// Unlock releases l. Safe to call twice: a double-release is a silent
// no-op, not an error — the second caller's owner token either never
// matched or the lock already expired. Only a store failure during
// release is logged, at warn level.
func (p *Provider) Unlock(ctx context.Context, l *Lock) {
	if l == nil {
		return
	}
	if err := p.store.Release(ctx, l.key, l.owner); err != nil {
		log.WithComponent("quotalock").Warn().Err(err).Str("key", l.key).Msg("lock release failed")
	}
}

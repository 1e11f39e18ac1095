package quota

import (
	"context"
	"time"

	"github.com/cuemby/quotaledger/pkg/rstore"
	"github.com/cuemby/quotaledger/pkg/types"
)

// Store is the Quota Counter Store plus Staleness Tracker, a typed
// accessor layer over pkg/rstore's raw key/script primitives.
type Store struct {
	rc           *rstore.Client
	ttlSeconds   int
	maxAgeMillis int64
}

// New creates a Store. ttlSeconds is the TTL applied to every confirmed
// and pending write; maxAgeMillis is CACHE_MAX_AGE_MS, the staleness bound.
func New(rc *rstore.Client, ttlSeconds int, maxAgeMillis int64) *Store {
	return &Store{rc: rc, ttlSeconds: ttlSeconds, maxAgeMillis: maxAgeMillis}
}

// IsStale reports whether a family's staleness stamp is absent, not
// numeric, or older than the configured max age.
func (s *Store) IsStale(ctx context.Context, org types.OrganizationID, family types.ResourceFamily) (bool, error) {
	stamp, ok, err := s.rc.GetInt(ctx, stalenessKey(org, family))
	if err != nil {
		return true, err
	}
	if !ok {
		return true, nil
	}
	age := time.Now().UnixMilli() - stamp
	return age > s.maxAgeMillis, nil
}

// NearStale reports whether a family's staleness stamp is within margin
// of going stale (absent, non-numeric entries count as already past it).
// Used by the background sweep to rehydrate proactively, ahead of a
// reader ever observing the stale path.
func (s *Store) NearStale(ctx context.Context, org types.OrganizationID, family types.ResourceFamily, margin int64) (bool, error) {
	stamp, ok, err := s.rc.GetInt(ctx, stalenessKey(org, family))
	if err != nil {
		return true, err
	}
	if !ok {
		return true, nil
	}
	age := time.Now().UnixMilli() - stamp
	return age > s.maxAgeMillis-margin, nil
}

// GetFamily reads every kind in kinds for org. If the family is stale, or
// any confirmed counter is absent or invalid, the whole family is reported
// as a cache miss (ok=false) rather than returning a partial result.
func (s *Store) GetFamily(ctx context.Context, org types.OrganizationID, family types.ResourceFamily, kinds []types.QuotaKind) (values map[types.QuotaKind]int64, ok bool, err error) {
	stale, err := s.IsStale(ctx, org, family)
	if err != nil {
		return nil, false, err
	}
	if stale {
		return nil, false, nil
	}

	keys := make([]string, len(kinds))
	for i, k := range kinds {
		keys[i] = confirmedKey(org, k)
	}
	vals, oks, err := s.rc.MGetInt(ctx, keys)
	if err != nil {
		return nil, false, err
	}

	values = make(map[types.QuotaKind]int64, len(kinds))
	for i, k := range kinds {
		if !oks[i] {
			return nil, false, nil
		}
		values[k] = vals[i]
	}
	return values, true, nil
}

// SetRehydrated atomically writes every kind's confirmed value for family
// and stamps the family's fetched_at, clearing its staleness.
func (s *Store) SetRehydrated(ctx context.Context, org types.OrganizationID, family types.ResourceFamily, values map[types.QuotaKind]int64) error {
	kinds := kindsForFamily(family)
	keys := make([]string, len(kinds))
	vals := make([]int64, len(kinds))
	for i, k := range kinds {
		keys[i] = confirmedKey(org, k)
		vals[i] = values[k]
	}
	return s.rc.SetRehydrated(ctx, keys, vals, stalenessKey(org, family), s.ttlSeconds, time.Now().UnixMilli())
}

// ApplyDelta applies delta to a single confirmed counter with no pending
// settlement. No-ops (returns applied=false) if the counter was evicted.
func (s *Store) ApplyDelta(ctx context.Context, org types.OrganizationID, kind types.QuotaKind, delta int64) (bool, error) {
	return s.rc.ApplyDelta(ctx, confirmedKey(org, kind), delta, s.ttlSeconds, "")
}

// ApplyDeltaSettlingPending applies delta to a confirmed counter and, if
// delta>0, settles the matching pending reservation by min(pending,delta)
// in the same atomic script. Only valid for kinds that carry a pending
// counter (cpu, memory, disk).
func (s *Store) ApplyDeltaSettlingPending(ctx context.Context, org types.OrganizationID, kind types.QuotaKind, delta int64) (bool, error) {
	return s.rc.ApplyDelta(ctx, confirmedKey(org, kind), delta, s.ttlSeconds, pendingKey(org, kind))
}

// IncrementPending increments each pending kind by its matching amount,
// refreshing TTL, and returns the post-increment values.
func (s *Store) IncrementPending(ctx context.Context, org types.OrganizationID, kinds []types.QuotaKind, amounts []int64) (map[types.QuotaKind]int64, error) {
	keys := make([]string, len(kinds))
	for i, k := range kinds {
		keys[i] = pendingKey(org, k)
	}
	vals, err := s.rc.IncrementPending(ctx, keys, amounts, s.ttlSeconds)
	if err != nil {
		return nil, err
	}
	out := make(map[types.QuotaKind]int64, len(kinds))
	for i, k := range kinds {
		out[k] = vals[i]
	}
	return out, nil
}

// DecrementPending decrements each pending kind by its matching amount,
// without refreshing TTL. The read path clamps any resulting negative
// value to zero.
func (s *Store) DecrementPending(ctx context.Context, org types.OrganizationID, kinds []types.QuotaKind, amounts []int64) error {
	keys := make([]string, len(kinds))
	for i, k := range kinds {
		keys[i] = pendingKey(org, k)
	}
	_, err := s.rc.DecrementPending(ctx, keys, amounts)
	return err
}

// DualView reads the three sandbox confirmed counters and their three
// pending counterparts under one atomic script, so the two never reflect
// different moments in time.
func (s *Store) DualView(ctx context.Context, org types.OrganizationID) (confirmed map[types.QuotaKind]int64, confirmedOK bool, pending map[types.QuotaKind]int64, err error) {
	stale, err := s.IsStale(ctx, org, types.FamilySandbox)
	if err != nil {
		return nil, false, nil, err
	}

	var confirmedKeys, pendingKeys [3]string
	for i, k := range types.SandboxKinds {
		confirmedKeys[i] = confirmedKey(org, k)
		pendingKeys[i] = pendingKey(org, k)
	}

	cVals, cOK, pVals, pOK, err := s.rc.DualView(ctx, confirmedKeys, pendingKeys)
	if err != nil {
		return nil, false, nil, err
	}

	pending = make(map[types.QuotaKind]int64, 3)
	for i, k := range types.SandboxKinds {
		if pOK[i] {
			pending[k] = pVals[i]
		}
	}

	if stale {
		return nil, false, pending, nil
	}

	confirmed = make(map[types.QuotaKind]int64, 3)
	for i, k := range types.SandboxKinds {
		if !cOK[i] {
			return nil, false, pending, nil
		}
		confirmed[k] = cVals[i]
	}
	return confirmed, true, pending, nil
}

func kindsForFamily(family types.ResourceFamily) []types.QuotaKind {
	switch family {
	case types.FamilySandbox:
		return types.SandboxKinds
	case types.FamilySnapshot:
		return []types.QuotaKind{types.QuotaSnapshotCount}
	case types.FamilyVolume:
		return []types.QuotaKind{types.QuotaVolumeCount}
	default:
		return nil
	}
}

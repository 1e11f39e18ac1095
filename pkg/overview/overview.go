package overview

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/quotaledger/pkg/log"
	"github.com/cuemby/quotaledger/pkg/metrics"
	"github.com/cuemby/quotaledger/pkg/projection"
	"github.com/cuemby/quotaledger/pkg/quota"
	"github.com/cuemby/quotaledger/pkg/quotaerrors"
	"github.com/cuemby/quotaledger/pkg/quotalock"
	"github.com/cuemby/quotaledger/pkg/types"
)

// SandboxUsageOverview is the {cpu, memory, disk} DTO returned by every
// sandbox-family read.
type SandboxUsageOverview struct {
	CPU    int64
	Memory int64
	Disk   int64
}

// SandboxUsageWithPending pairs confirmed sandbox usage with its pending
// reservation counters.
type SandboxUsageWithPending struct {
	Confirmed SandboxUsageOverview
	Pending   SandboxUsageOverview
}

// PendingIncrementResult reports, per kind, whether the reservation was
// actually incremented (a kind already covered by an excluded sandbox's
// own confirmed state is skipped).
type PendingIncrementResult struct {
	CPUIncremented    bool
	MemoryIncremented bool
	DiskIncremented   bool
}

// Overview is the merged DTO returned by GetUsageOverview.
type Overview struct {
	Organization  types.Organization
	Sandbox       SandboxUsageOverview
	SnapshotCount int64
	VolumeCount   int64
}

// Service is the Usage Overview Service.
type Service struct {
	quota      *quota.Store
	lock       *quotalock.Provider
	projection projection.Store

	lockTTL         time.Duration
	lockWaitTimeout time.Duration
}

// New creates a Service. lockTTL bounds how long a rehydrate lock is held
// before auto-expiring; lockWaitTimeout bounds how long a caller waits to
// acquire it before giving up with a LockTimeoutError.
func New(q *quota.Store, lock *quotalock.Provider, store projection.Store, lockTTL, lockWaitTimeout time.Duration) *Service {
	return &Service{quota: q, lock: lock, projection: store, lockTTL: lockTTL, lockWaitTimeout: lockWaitTimeout}
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// GetUsageOverview merges organization-level quota limits with current
// usage across the sandbox, snapshot, and volume families.
func (s *Service) GetUsageOverview(ctx context.Context, orgID types.OrganizationID, org *types.Organization) (*Overview, error) {
	if org != nil && org.ID != orgID {
		return nil, &quotaerrors.BadRequestError{Reason: fmt.Sprintf("organization id mismatch: got %q, want %q", org.ID, orgID)}
	}

	resolved := org
	if resolved == nil {
		fetched, err := s.projection.GetOrganization(ctx, orgID)
		if err != nil {
			return nil, &quotaerrors.NotFoundError{OrganizationID: string(orgID)}
		}
		resolved = fetched
	}

	sandbox, err := s.GetSandboxUsageOverview(ctx, orgID, "")
	if err != nil {
		return nil, err
	}
	snapCount, err := s.GetSnapshotUsageOverview(ctx, orgID)
	if err != nil {
		return nil, err
	}
	volCount, err := s.GetVolumeUsageOverview(ctx, orgID)
	if err != nil {
		return nil, err
	}

	return &Overview{
		Organization:  *resolved,
		Sandbox:       sandbox,
		SnapshotCount: snapCount,
		VolumeCount:   volCount,
	}, nil
}

// GetSandboxUsageOverview returns confirmed sandbox usage, optionally
// excluding one sandbox's own contribution based on its current state —
// callers use this to check a sandbox's own resize or restart against the
// limit without its existing footprint double-counting.
func (s *Service) GetSandboxUsageOverview(ctx context.Context, orgID types.OrganizationID, excludeSandboxID string) (SandboxUsageOverview, error) {
	confirmed, err := s.getSandboxConfirmed(ctx, orgID)
	if err != nil {
		return SandboxUsageOverview{}, err
	}
	usage := SandboxUsageOverview{CPU: confirmed[types.QuotaCPU], Memory: confirmed[types.QuotaMemory], Disk: confirmed[types.QuotaDisk]}
	if excludeSandboxID == "" {
		return usage, nil
	}

	sb, err := s.projection.GetSandbox(ctx, excludeSandboxID)
	if err != nil {
		return usage, nil
	}

	if types.ConsumesCompute(sb.State) {
		usage.CPU = clamp(usage.CPU - sb.CPU)
		usage.Memory = clamp(usage.Memory - sb.Mem)
	}
	if types.ConsumesDisk(sb.State) {
		usage.Disk = clamp(usage.Disk - sb.Disk)
	}
	return usage, nil
}

// GetSnapshotUsageOverview returns the organization's current snapshot count.
func (s *Service) GetSnapshotUsageOverview(ctx context.Context, orgID types.OrganizationID) (int64, error) {
	return s.getSingleCounter(ctx, orgID, types.FamilySnapshot, types.QuotaSnapshotCount, s.projection.FetchSnapshotCount)
}

// GetVolumeUsageOverview returns the organization's current volume count.
func (s *Service) GetVolumeUsageOverview(ctx context.Context, orgID types.OrganizationID) (int64, error) {
	return s.getSingleCounter(ctx, orgID, types.FamilyVolume, types.QuotaVolumeCount, s.projection.FetchVolumeCount)
}

// GetSandboxUsageOverviewWithPending returns confirmed sandbox usage
// alongside pending reservations. On a cache hit both are read under one
// atomic script, so they reflect the same moment; on a miss, confirmed is
// rehydrated after pending was read. Exclusion adjusts confirmed values
// only; pending is never altered by exclusion.
func (s *Service) GetSandboxUsageOverviewWithPending(ctx context.Context, orgID types.OrganizationID, excludeSandboxID string) (SandboxUsageWithPending, error) {
	confirmed, confirmedOK, pending, err := s.quota.DualView(ctx, orgID)
	if err != nil {
		return SandboxUsageWithPending{}, err
	}

	if confirmedOK {
		metrics.CacheHitsTotal.WithLabelValues(string(types.FamilySandbox)).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(string(types.FamilySandbox)).Inc()
		confirmed, err = s.rehydrateSandbox(ctx, orgID)
		if err != nil {
			return SandboxUsageWithPending{}, err
		}
	}

	result := SandboxUsageWithPending{
		Confirmed: SandboxUsageOverview{CPU: confirmed[types.QuotaCPU], Memory: confirmed[types.QuotaMemory], Disk: confirmed[types.QuotaDisk]},
		Pending:   SandboxUsageOverview{CPU: pending[types.QuotaCPU], Memory: pending[types.QuotaMemory], Disk: pending[types.QuotaDisk]},
	}

	if excludeSandboxID == "" {
		return result, nil
	}
	sb, err := s.projection.GetSandbox(ctx, excludeSandboxID)
	if err != nil {
		return result, nil
	}
	if types.ConsumesCompute(sb.State) {
		result.Confirmed.CPU = clamp(result.Confirmed.CPU - sb.CPU)
		result.Confirmed.Memory = clamp(result.Confirmed.Memory - sb.Mem)
	}
	if types.ConsumesDisk(sb.State) {
		result.Confirmed.Disk = clamp(result.Confirmed.Disk - sb.Disk)
	}
	return result, nil
}

// IncrementPendingSandboxUsage reserves headroom for an in-flight
// operation. If excludeSandboxID names a sandbox whose current state
// already consumes a kind, that kind is skipped, since it is already
// counted in confirmed usage.
func (s *Service) IncrementPendingSandboxUsage(ctx context.Context, orgID types.OrganizationID, cpu, mem, disk int64, excludeSandboxID string) (PendingIncrementResult, error) {
	var excludeSB *types.SandboxProjection
	if excludeSandboxID != "" {
		if sb, err := s.projection.GetSandbox(ctx, excludeSandboxID); err == nil {
			excludeSB = sb
		}
	}

	amounts := map[types.QuotaKind]int64{types.QuotaCPU: cpu, types.QuotaMemory: mem, types.QuotaDisk: disk}
	var kinds []types.QuotaKind
	var vals []int64
	for _, k := range types.SandboxKinds {
		if excludeSB != nil && alreadyConsumes(excludeSB, k) {
			continue
		}
		kinds = append(kinds, k)
		vals = append(vals, amounts[k])
	}

	var result PendingIncrementResult
	if len(kinds) > 0 {
		if _, err := s.quota.IncrementPending(ctx, orgID, kinds, vals); err != nil {
			return result, err
		}
	}
	for _, k := range kinds {
		metrics.PendingAdjustmentsTotal.WithLabelValues(string(k), "increment").Inc()
		switch k {
		case types.QuotaCPU:
			result.CPUIncremented = true
		case types.QuotaMemory:
			result.MemoryIncremented = true
		case types.QuotaDisk:
			result.DiskIncremented = true
		}
	}
	return result, nil
}

// DecrementPendingSandboxUsage releases a reservation. Only kinds with a
// non-nil amount are decremented.
func (s *Service) DecrementPendingSandboxUsage(ctx context.Context, orgID types.OrganizationID, cpu, mem, disk *int64) error {
	var kinds []types.QuotaKind
	var vals []int64
	for k, amt := range map[types.QuotaKind]*int64{types.QuotaCPU: cpu, types.QuotaMemory: mem, types.QuotaDisk: disk} {
		if amt == nil {
			continue
		}
		kinds = append(kinds, k)
		vals = append(vals, *amt)
	}
	if len(kinds) == 0 {
		return nil
	}
	if err := s.quota.DecrementPending(ctx, orgID, kinds, vals); err != nil {
		return err
	}
	for _, k := range kinds {
		metrics.PendingAdjustmentsTotal.WithLabelValues(string(k), "decrement").Inc()
	}
	return nil
}

func alreadyConsumes(sb *types.SandboxProjection, kind types.QuotaKind) bool {
	switch kind {
	case types.QuotaCPU, types.QuotaMemory:
		return types.ConsumesCompute(sb.State)
	case types.QuotaDisk:
		return types.ConsumesDisk(sb.State)
	default:
		return false
	}
}

func (s *Service) getSandboxConfirmed(ctx context.Context, orgID types.OrganizationID) (map[types.QuotaKind]int64, error) {
	values, ok, err := s.quota.GetFamily(ctx, orgID, types.FamilySandbox, types.SandboxKinds)
	if err != nil {
		return nil, &quotaerrors.StoreError{Op: "get sandbox family", Err: err}
	}
	if ok {
		metrics.CacheHitsTotal.WithLabelValues(string(types.FamilySandbox)).Inc()
		return values, nil
	}
	metrics.CacheMissesTotal.WithLabelValues(string(types.FamilySandbox)).Inc()
	return s.rehydrateSandbox(ctx, orgID)
}

func (s *Service) rehydrateSandbox(ctx context.Context, orgID types.OrganizationID) (map[types.QuotaKind]int64, error) {
	lockKey := fmt.Sprintf("org:%s:fetch-sandbox-usage-from-db", orgID)
	waitTimer := metrics.NewTimer()
	lock, err := s.lock.WaitForLock(ctx, lockKey, s.lockTTL, s.lockWaitTimeout)
	waitTimer.ObserveDurationVec(metrics.LockWaitDuration, string(types.FamilySandbox))
	if err != nil {
		metrics.LockTimeoutsTotal.WithLabelValues(string(types.FamilySandbox)).Inc()
		return nil, err
	}
	defer s.lock.Unlock(ctx, lock)

	values, ok, err := s.quota.GetFamily(ctx, orgID, types.FamilySandbox, types.SandboxKinds)
	if err != nil {
		return nil, &quotaerrors.StoreError{Op: "get sandbox family", Err: err}
	}
	if ok {
		return values, nil
	}

	rehydrateTimer := metrics.NewTimer()
	usage, err := s.projection.FetchSandboxUsage(ctx, orgID)
	if err != nil {
		return nil, &quotaerrors.StoreError{Op: "fetch sandbox usage", Err: err}
	}
	values = map[types.QuotaKind]int64{types.QuotaCPU: usage.CPU, types.QuotaMemory: usage.Mem, types.QuotaDisk: usage.Disk}
	if err := s.quota.SetRehydrated(ctx, orgID, types.FamilySandbox, values); err != nil {
		return nil, &quotaerrors.StoreError{Op: "set rehydrated", Err: err}
	}
	rehydrateTimer.ObserveDurationVec(metrics.RehydrateDuration, string(types.FamilySandbox))

	log.WithOrganization(string(orgID)).Debug().Str("family", string(types.FamilySandbox)).Msg("rehydrated from projection")
	return values, nil
}

func (s *Service) getSingleCounter(ctx context.Context, orgID types.OrganizationID, family types.ResourceFamily, kind types.QuotaKind, fetch func(context.Context, types.OrganizationID) (int64, error)) (int64, error) {
	values, ok, err := s.quota.GetFamily(ctx, orgID, family, []types.QuotaKind{kind})
	if err != nil {
		return 0, &quotaerrors.StoreError{Op: "get " + string(family) + " family", Err: err}
	}
	if ok {
		metrics.CacheHitsTotal.WithLabelValues(string(family)).Inc()
		return values[kind], nil
	}
	metrics.CacheMissesTotal.WithLabelValues(string(family)).Inc()

	lockKey := fmt.Sprintf("org:%s:fetch-%s-usage-from-db", orgID, family)
	waitTimer := metrics.NewTimer()
	lock, err := s.lock.WaitForLock(ctx, lockKey, s.lockTTL, s.lockWaitTimeout)
	waitTimer.ObserveDurationVec(metrics.LockWaitDuration, string(family))
	if err != nil {
		metrics.LockTimeoutsTotal.WithLabelValues(string(family)).Inc()
		return 0, err
	}
	defer s.lock.Unlock(ctx, lock)

	values, ok, err = s.quota.GetFamily(ctx, orgID, family, []types.QuotaKind{kind})
	if err != nil {
		return 0, &quotaerrors.StoreError{Op: "get " + string(family) + " family", Err: err}
	}
	if ok {
		return values[kind], nil
	}

	rehydrateTimer := metrics.NewTimer()
	v, err := fetch(ctx, orgID)
	if err != nil {
		return 0, &quotaerrors.StoreError{Op: "fetch " + string(family) + " usage", Err: err}
	}
	if err := s.quota.SetRehydrated(ctx, orgID, family, map[types.QuotaKind]int64{kind: v}); err != nil {
		return 0, &quotaerrors.StoreError{Op: "set rehydrated", Err: err}
	}
	rehydrateTimer.ObserveDurationVec(metrics.RehydrateDuration, string(family))

	log.WithOrganization(string(orgID)).Debug().Str("family", string(family)).Msg("rehydrated from projection")
	return v, nil
}

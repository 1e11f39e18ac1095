package overview

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/quotaledger/pkg/projection"
	"github.com/cuemby/quotaledger/pkg/quota"
	"github.com/cuemby/quotaledger/pkg/quotalock"
	"github.com/cuemby/quotaledger/pkg/rstore"
	"github.com/cuemby/quotaledger/pkg/types"
)

func newTestService(t *testing.T) (*Service, *projection.BoltProjectionStore) {
	t.Helper()
	store, err := projection.NewBoltProjectionStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	q := quota.New(rstore.NewFake(), 30, 3_600_000)
	lock := quotalock.New(rstore.NewFake())
	return New(q, lock, store, 5*time.Second, time.Second), store
}

const orgO1 types.OrganizationID = "O1"

// Scenario 1: Cold read.
func TestColdRead(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.PutSandbox(&types.SandboxProjection{ID: "S1", OrganizationID: orgO1, State: "running", CPU: 2, Mem: 4, Disk: 10}))
	require.NoError(t, store.PutSandbox(&types.SandboxProjection{ID: "S2", OrganizationID: orgO1, State: "stopped", CPU: 4, Mem: 8, Disk: 20}))

	usage, err := svc.GetSandboxUsageOverview(ctx, orgO1, "")
	require.NoError(t, err)
	require.Equal(t, SandboxUsageOverview{CPU: 2, Memory: 4, Disk: 30}, usage)

	stale, err := svc.quota.IsStale(ctx, orgO1, types.FamilySandbox)
	require.NoError(t, err)
	require.False(t, stale)
}

// Scenario 2: Delta on transition.
func TestDeltaOnTransition(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.PutSandbox(&types.SandboxProjection{ID: "S1", OrganizationID: orgO1, State: "running", CPU: 2, Mem: 4, Disk: 10}))
	require.NoError(t, store.PutSandbox(&types.SandboxProjection{ID: "S2", OrganizationID: orgO1, State: "stopped", CPU: 4, Mem: 8, Disk: 20}))

	_, err := svc.GetSandboxUsageOverview(ctx, orgO1, "")
	require.NoError(t, err)

	delta := quota.CalculateDelta(20, "stopped", "destroyed", types.SandboxStatesConsumingDisk)
	applied, err := svc.quota.ApplyDelta(ctx, orgO1, types.QuotaDisk, delta)
	require.NoError(t, err)
	require.True(t, applied)

	usage, err := svc.GetSandboxUsageOverview(ctx, orgO1, "")
	require.NoError(t, err)
	require.Equal(t, SandboxUsageOverview{CPU: 2, Memory: 4, Disk: 10}, usage)
}

// Scenario 3: Pending reservation.
func TestPendingReservation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.PutSandbox(&types.SandboxProjection{ID: "S1", OrganizationID: orgO1, State: "running", CPU: 2, Mem: 4, Disk: 10}))
	require.NoError(t, store.PutSandbox(&types.SandboxProjection{ID: "S2", OrganizationID: orgO1, State: "stopped", CPU: 4, Mem: 8, Disk: 20}))

	_, err := svc.GetSandboxUsageOverview(ctx, orgO1, "")
	require.NoError(t, err)
	delta := quota.CalculateDelta(20, "stopped", "destroyed", types.SandboxStatesConsumingDisk)
	_, err = svc.quota.ApplyDelta(ctx, orgO1, types.QuotaDisk, delta)
	require.NoError(t, err)

	result, err := svc.IncrementPendingSandboxUsage(ctx, orgO1, 1, 2, 5, "")
	require.NoError(t, err)
	require.Equal(t, PendingIncrementResult{CPUIncremented: true, MemoryIncremented: true, DiskIncremented: true}, result)

	view, err := svc.GetSandboxUsageOverviewWithPending(ctx, orgO1, "")
	require.NoError(t, err)
	require.Equal(t, SandboxUsageOverview{CPU: 2, Memory: 4, Disk: 10}, view.Confirmed)
	require.Equal(t, SandboxUsageOverview{CPU: 1, Memory: 2, Disk: 5}, view.Pending)
}

// Scenario 4: Reservation settling.
func TestReservationSettling(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.PutSandbox(&types.SandboxProjection{ID: "S1", OrganizationID: orgO1, State: "running", CPU: 2, Mem: 4, Disk: 10}))
	require.NoError(t, store.PutSandbox(&types.SandboxProjection{ID: "S2", OrganizationID: orgO1, State: "stopped", CPU: 4, Mem: 8, Disk: 20}))
	_, err := svc.GetSandboxUsageOverview(ctx, orgO1, "")
	require.NoError(t, err)
	delta := quota.CalculateDelta(20, "stopped", "destroyed", types.SandboxStatesConsumingDisk)
	_, err = svc.quota.ApplyDelta(ctx, orgO1, types.QuotaDisk, delta)
	require.NoError(t, err)
	_, err = svc.IncrementPendingSandboxUsage(ctx, orgO1, 1, 2, 5, "")
	require.NoError(t, err)

	for _, k := range types.SandboxKinds {
		amount := map[types.QuotaKind]int64{types.QuotaCPU: 1, types.QuotaMemory: 2, types.QuotaDisk: 5}[k]
		applied, err := svc.quota.ApplyDeltaSettlingPending(ctx, orgO1, k, amount)
		require.NoError(t, err)
		require.True(t, applied)
	}

	view, err := svc.GetSandboxUsageOverviewWithPending(ctx, orgO1, "")
	require.NoError(t, err)
	require.Equal(t, SandboxUsageOverview{CPU: 3, Memory: 6, Disk: 15}, view.Confirmed)
	require.Equal(t, SandboxUsageOverview{CPU: 0, Memory: 0, Disk: 0}, view.Pending)
}

// Scenario 5: Exclusion.
func TestExclusion(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.quota.SetRehydrated(ctx, orgO1, types.FamilySandbox, map[types.QuotaKind]int64{
		types.QuotaCPU: 3, types.QuotaMemory: 6, types.QuotaDisk: 15,
	}))
	require.NoError(t, store.PutSandbox(&types.SandboxProjection{ID: "S3", OrganizationID: orgO1, State: "running", CPU: 1, Mem: 2, Disk: 5}))

	usage, err := svc.GetSandboxUsageOverview(ctx, orgO1, "S3")
	require.NoError(t, err)
	require.Equal(t, SandboxUsageOverview{CPU: 2, Memory: 4, Disk: 10}, usage)
}

// Scenario 6: Staleness forced rehydrate. A negative max-age means every
// read treats even a just-written stamp as stale, standing in for
// "simulate time advance CACHE_MAX_AGE_MS + 1" without a mockable clock.
func TestStalenessForcedRehydrate(t *testing.T) {
	store, err := projection.NewBoltProjectionStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	q := quota.New(rstore.NewFake(), 30, -1)
	lock := quotalock.New(rstore.NewFake())
	svc := New(q, lock, store, 5*time.Second, time.Second)
	ctx := context.Background()

	require.NoError(t, store.PutSandbox(&types.SandboxProjection{ID: "S1", OrganizationID: orgO1, State: "running", CPU: 2, Mem: 4, Disk: 10}))
	usage, err := svc.GetSandboxUsageOverview(ctx, orgO1, "")
	require.NoError(t, err)
	require.Equal(t, SandboxUsageOverview{CPU: 2, Memory: 4, Disk: 10}, usage)

	require.NoError(t, store.PutSandbox(&types.SandboxProjection{ID: "S4", OrganizationID: orgO1, State: "running", CPU: 9, Mem: 9, Disk: 9}))
	usage, err = svc.GetSandboxUsageOverview(ctx, orgO1, "")
	require.NoError(t, err)
	require.Equal(t, SandboxUsageOverview{CPU: 11, Memory: 13, Disk: 19}, usage)
}

func TestGetUsageOverviewBadRequestOnMismatch(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetUsageOverview(context.Background(), orgO1, &types.Organization{ID: "other"})
	require.Error(t, err)
}

func TestGetUsageOverviewNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetUsageOverview(context.Background(), "missing", nil)
	require.Error(t, err)
}

func TestDecrementPendingOnlySuppliedKinds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.IncrementPendingSandboxUsage(ctx, orgO1, 4, 8, 20, "")
	require.NoError(t, err)

	amt := int64(20)
	require.NoError(t, svc.DecrementPendingSandboxUsage(ctx, orgO1, nil, nil, &amt))

	_, _, pending, err := svc.quota.DualView(ctx, orgO1)
	require.NoError(t, err)
	require.Equal(t, int64(4), pending[types.QuotaCPU])
	require.Equal(t, int64(8), pending[types.QuotaMemory])
	require.Equal(t, int64(0), pending[types.QuotaDisk])
}

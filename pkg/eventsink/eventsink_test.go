package eventsink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/quotaledger/pkg/events"
	"github.com/cuemby/quotaledger/pkg/quota"
	"github.com/cuemby/quotaledger/pkg/quotalock"
	"github.com/cuemby/quotaledger/pkg/rstore"
	"github.com/cuemby/quotaledger/pkg/types"
)

const orgO1 types.OrganizationID = "O1"

func newTestSink(t *testing.T) (*Sink, *quota.Store, *events.Broker) {
	t.Helper()
	store := rstore.NewFake()
	q := quota.New(store, 30, 3_600_000)
	lock := quotalock.New(store)
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	sink := New(q, lock, broker, 5*time.Second, time.Second)
	sink.Start()
	t.Cleanup(sink.Stop)

	return sink, q, broker
}

// publishSync sends an event and waits long enough for the sink's single
// consumer goroutine to process it, since Publish is fire-and-forget.
func publishSync(broker *events.Broker, ev *events.Event) {
	broker.Publish(ev)
	time.Sleep(50 * time.Millisecond)
}

func TestSandboxStateUpdatedAppliesDelta(t *testing.T) {
	_, q, broker := newTestSink(t)
	ctx := context.Background()

	require.NoError(t, q.SetRehydrated(ctx, orgO1, types.FamilySandbox, map[types.QuotaKind]int64{
		types.QuotaCPU: 2, types.QuotaMemory: 4, types.QuotaDisk: 30,
	}))

	publishSync(broker, &events.Event{
		Type: events.EventSandboxStateUpdated, OrganizationID: orgO1, EntityID: "S2",
		OldState: "stopped", NewState: "destroyed", CPU: 4, Mem: 8, Disk: 20,
	})

	values, ok, err := q.GetFamily(ctx, orgO1, types.FamilySandbox, types.SandboxKinds)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), values[types.QuotaCPU])
	require.Equal(t, int64(4), values[types.QuotaMemory])
	require.Equal(t, int64(10), values[types.QuotaDisk])
}

func TestSandboxStateUpdatedSameStateIsNoop(t *testing.T) {
	_, q, broker := newTestSink(t)
	ctx := context.Background()

	require.NoError(t, q.SetRehydrated(ctx, orgO1, types.FamilySandbox, map[types.QuotaKind]int64{
		types.QuotaCPU: 2, types.QuotaMemory: 4, types.QuotaDisk: 30,
	}))

	publishSync(broker, &events.Event{
		Type: events.EventSandboxStateUpdated, OrganizationID: orgO1, EntityID: "S1",
		OldState: "running", NewState: "running", CPU: 2, Mem: 4, Disk: 10,
	})

	values, ok, err := q.GetFamily(ctx, orgO1, types.FamilySandbox, types.SandboxKinds)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), values[types.QuotaCPU])
	require.Equal(t, int64(4), values[types.QuotaMemory])
	require.Equal(t, int64(30), values[types.QuotaDisk])
}

func TestSandboxCreatedSettlesPending(t *testing.T) {
	_, q, broker := newTestSink(t)
	ctx := context.Background()

	require.NoError(t, q.SetRehydrated(ctx, orgO1, types.FamilySandbox, map[types.QuotaKind]int64{
		types.QuotaCPU: 2, types.QuotaMemory: 4, types.QuotaDisk: 10,
	}))
	_, err := q.IncrementPending(ctx, orgO1, types.SandboxKinds, []int64{1, 2, 5})
	require.NoError(t, err)

	publishSync(broker, &events.Event{
		Type: events.EventSandboxCreated, OrganizationID: orgO1, EntityID: "S3",
		CPU: 1, Mem: 2, Disk: 5,
	})

	confirmed, confirmedOK, pending, err := q.DualView(ctx, orgO1)
	require.NoError(t, err)
	require.True(t, confirmedOK)
	require.Equal(t, int64(3), confirmed[types.QuotaCPU])
	require.Equal(t, int64(6), confirmed[types.QuotaMemory])
	require.Equal(t, int64(15), confirmed[types.QuotaDisk])
	require.Equal(t, int64(0), pending[types.QuotaCPU])
	require.Equal(t, int64(0), pending[types.QuotaMemory])
	require.Equal(t, int64(0), pending[types.QuotaDisk])
}

func TestSnapshotCreatedAndStateUpdated(t *testing.T) {
	_, q, broker := newTestSink(t)
	ctx := context.Background()

	require.NoError(t, q.SetRehydrated(ctx, orgO1, types.FamilySnapshot, map[types.QuotaKind]int64{
		types.QuotaSnapshotCount: 0,
	}))

	publishSync(broker, &events.Event{Type: events.EventSnapshotCreated, OrganizationID: orgO1, EntityID: "SN1"})

	values, ok, err := q.GetFamily(ctx, orgO1, types.FamilySnapshot, []types.QuotaKind{types.QuotaSnapshotCount})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), values[types.QuotaSnapshotCount])

	publishSync(broker, &events.Event{
		Type: events.EventSnapshotStateUpdated, OrganizationID: orgO1, EntityID: "SN1",
		OldState: "ready", NewState: "deleted",
	})

	values, ok, err = q.GetFamily(ctx, orgO1, types.FamilySnapshot, []types.QuotaKind{types.QuotaSnapshotCount})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(0), values[types.QuotaSnapshotCount])
}

func TestVolumeCreatedAndStateUpdated(t *testing.T) {
	_, q, broker := newTestSink(t)
	ctx := context.Background()

	require.NoError(t, q.SetRehydrated(ctx, orgO1, types.FamilyVolume, map[types.QuotaKind]int64{
		types.QuotaVolumeCount: 0,
	}))

	publishSync(broker, &events.Event{Type: events.EventVolumeCreated, OrganizationID: orgO1, EntityID: "V1"})

	values, ok, err := q.GetFamily(ctx, orgO1, types.FamilyVolume, []types.QuotaKind{types.QuotaVolumeCount})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), values[types.QuotaVolumeCount])

	publishSync(broker, &events.Event{
		Type: events.EventVolumeStateUpdated, OrganizationID: orgO1, EntityID: "V1",
		OldState: "attached", NewState: "error",
	})

	values, ok, err = q.GetFamily(ctx, orgO1, types.FamilyVolume, []types.QuotaKind{types.QuotaVolumeCount})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(0), values[types.QuotaVolumeCount])
}

func TestDeltaOnEvictedCounterIsNoop(t *testing.T) {
	_, q, broker := newTestSink(t)
	ctx := context.Background()

	publishSync(broker, &events.Event{
		Type: events.EventSandboxStateUpdated, OrganizationID: orgO1, EntityID: "S9",
		OldState: "running", NewState: "stopped", CPU: 2, Mem: 4, Disk: 10,
	})

	_, ok, err := q.GetFamily(ctx, orgO1, types.FamilySandbox, []types.QuotaKind{types.QuotaCPU})
	require.NoError(t, err)
	require.False(t, ok)
}

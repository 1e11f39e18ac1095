package eventsink

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/quotaledger/pkg/events"
	"github.com/cuemby/quotaledger/pkg/log"
	"github.com/cuemby/quotaledger/pkg/metrics"
	"github.com/cuemby/quotaledger/pkg/quota"
	"github.com/cuemby/quotaledger/pkg/quotalock"
	"github.com/cuemby/quotaledger/pkg/types"
)

// Sink consumes a broker's event stream and applies deltas to the counter
// store, one entity lock at a time.
type Sink struct {
	quota  *quota.Store
	lock   *quotalock.Provider
	broker *events.Broker

	lockTTL         time.Duration
	lockWaitTimeout time.Duration

	sub    events.Subscriber
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Sink. It does not subscribe until Start is called.
func New(q *quota.Store, lock *quotalock.Provider, broker *events.Broker, lockTTL, lockWaitTimeout time.Duration) *Sink {
	return &Sink{quota: q, lock: lock, broker: broker, lockTTL: lockTTL, lockWaitTimeout: lockWaitTimeout}
}

// Start subscribes to the broker and begins consuming events in a
// background goroutine.
func (s *Sink) Start() {
	s.sub = s.broker.Subscribe()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run()
}

// Stop unsubscribes and waits for the consume loop to exit.
func (s *Sink) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.broker.Unsubscribe(s.sub)
}

func (s *Sink) run() {
	defer close(s.doneCh)
	for {
		select {
		case ev, ok := <-s.sub:
			if !ok {
				return
			}
			s.handle(context.Background(), ev)
		case <-s.stopCh:
			return
		}
	}
}

func familyForEvent(t events.EventType) types.ResourceFamily {
	switch t {
	case events.EventSandboxCreated, events.EventSandboxStateUpdated:
		return types.FamilySandbox
	case events.EventSnapshotCreated, events.EventSnapshotStateUpdated:
		return types.FamilySnapshot
	case events.EventVolumeCreated, events.EventVolumeStateUpdated:
		return types.FamilyVolume
	default:
		return ""
	}
}

func (s *Sink) handle(ctx context.Context, ev *events.Event) {
	entityLog := log.WithEntity(string(familyForEvent(ev.Type)), ev.EntityID)

	lockKey := fmt.Sprintf("%s:%s:quota-usage-update", familyForEvent(ev.Type), ev.EntityID)
	lock, err := s.lock.WaitForLock(ctx, lockKey, s.lockTTL, s.lockWaitTimeout)
	if err != nil {
		metrics.EventDeltasAppliedTotal.WithLabelValues(string(ev.Type), "lock_timeout").Inc()
		entityLog.Warn().Err(err).Msg("event dropped, could not acquire entity lock")
		return
	}
	defer s.lock.Unlock(ctx, lock)

	switch ev.Type {
	case events.EventSandboxCreated:
		s.applyCreated(ctx, ev, entityLog)
	case events.EventSandboxStateUpdated:
		s.applySandboxStateUpdated(ctx, ev, entityLog)
	case events.EventSnapshotCreated:
		s.applyCounterCreated(ctx, ev, types.QuotaSnapshotCount, entityLog)
	case events.EventSnapshotStateUpdated:
		s.applyCounterStateUpdated(ctx, ev, types.QuotaSnapshotCount, types.SnapshotUsageIgnoredStates, entityLog)
	case events.EventVolumeCreated:
		s.applyCounterCreated(ctx, ev, types.QuotaVolumeCount, entityLog)
	case events.EventVolumeStateUpdated:
		s.applyCounterStateUpdated(ctx, ev, types.QuotaVolumeCount, types.VolumeUsageIgnoredStates, entityLog)
	default:
		entityLog.Warn().Str("event_type", string(ev.Type)).Msg("unrecognized event type, dropped")
	}
}

func (s *Sink) applyCreated(ctx context.Context, ev *events.Event, entityLog zerolog.Logger) {
	for kind, amount := range map[types.QuotaKind]int64{
		types.QuotaCPU:    ev.CPU,
		types.QuotaMemory: ev.Mem,
		types.QuotaDisk:   ev.Disk,
	} {
		applied, err := s.quota.ApplyDeltaSettlingPending(ctx, ev.OrganizationID, kind, amount)
		s.recordOutcome(ev, kind, applied, err, entityLog)
	}
}

func (s *Sink) applySandboxStateUpdated(ctx context.Context, ev *events.Event, entityLog zerolog.Logger) {
	if ev.OldState == ev.NewState {
		metrics.EventDeltasAppliedTotal.WithLabelValues(string(ev.Type), "noop").Inc()
		return
	}

	deltas := map[types.QuotaKind]int64{
		types.QuotaCPU:    quota.CalculateDelta(ev.CPU, ev.OldState, ev.NewState, types.SandboxStatesConsumingCompute),
		types.QuotaMemory: quota.CalculateDelta(ev.Mem, ev.OldState, ev.NewState, types.SandboxStatesConsumingCompute),
		types.QuotaDisk:   quota.CalculateDelta(ev.Disk, ev.OldState, ev.NewState, types.SandboxStatesConsumingDisk),
	}
	for kind, delta := range deltas {
		if delta == 0 {
			continue
		}
		applied, err := s.quota.ApplyDelta(ctx, ev.OrganizationID, kind, delta)
		s.recordOutcome(ev, kind, applied, err, entityLog)
	}
}

func (s *Sink) applyCounterCreated(ctx context.Context, ev *events.Event, kind types.QuotaKind, entityLog zerolog.Logger) {
	applied, err := s.quota.ApplyDelta(ctx, ev.OrganizationID, kind, 1)
	s.recordOutcome(ev, kind, applied, err, entityLog)
}

func (s *Sink) applyCounterStateUpdated(ctx context.Context, ev *events.Event, kind types.QuotaKind, ignored map[string]struct{}, entityLog zerolog.Logger) {
	if ev.OldState == ev.NewState {
		metrics.EventDeltasAppliedTotal.WithLabelValues(string(ev.Type), "noop").Inc()
		return
	}
	delta := quota.CalculateDeltaAgainstIgnoredSet(1, ev.OldState, ev.NewState, ignored)
	if delta == 0 {
		metrics.EventDeltasAppliedTotal.WithLabelValues(string(ev.Type), "noop").Inc()
		return
	}
	applied, err := s.quota.ApplyDelta(ctx, ev.OrganizationID, kind, delta)
	s.recordOutcome(ev, kind, applied, err, entityLog)
}

func (s *Sink) recordOutcome(ev *events.Event, kind types.QuotaKind, applied bool, err error, entityLog zerolog.Logger) {
	switch {
	case err != nil:
		metrics.EventDeltasAppliedTotal.WithLabelValues(string(ev.Type), "error").Inc()
		entityLog.Warn().Err(err).Str("kind", string(kind)).Msg("delta application failed, event dropped")
	case !applied:
		metrics.EventDeltasAppliedTotal.WithLabelValues(string(ev.Type), "dropped_evicted").Inc()
	default:
		metrics.EventDeltasAppliedTotal.WithLabelValues(string(ev.Type), "applied").Inc()
	}
}

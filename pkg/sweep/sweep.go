package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/quotaledger/pkg/log"
	"github.com/cuemby/quotaledger/pkg/metrics"
	"github.com/cuemby/quotaledger/pkg/overview"
	"github.com/cuemby/quotaledger/pkg/projection"
	"github.com/cuemby/quotaledger/pkg/quota"
	"github.com/cuemby/quotaledger/pkg/types"
)

// families is the fixed set of resource families the sweep visits per
// organization, in the order they are checked.
var families = []types.ResourceFamily{types.FamilySandbox, types.FamilySnapshot, types.FamilyVolume}

// Sweeper runs the staleness sweep background loop.
type Sweeper struct {
	quota      *quota.Store
	projection projection.Store
	overview   *overview.Service
	logger     zerolog.Logger

	interval time.Duration
	margin   int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Sweeper. interval is how often a full pass over every
// organization runs; margin is how many milliseconds of remaining headroom
// (against CACHE_MAX_AGE_MS) triggers a proactive rehydrate.
func New(q *quota.Store, store projection.Store, ov *overview.Service, interval time.Duration, margin int64) *Sweeper {
	return &Sweeper{
		quota:      q,
		projection: store,
		overview:   ov,
		logger:     log.WithComponent("sweep"),
		interval:   interval,
		margin:     margin,
	}
}

// Start begins the sweep loop in the background.
func (s *Sweeper) Start() {
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run()
}

// Stop halts the sweep loop and waits for the in-flight cycle to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Msg("staleness sweep started")

	for {
		select {
		case <-ticker.C:
			if err := s.sweep(context.Background()); err != nil {
				s.logger.Error().Err(err).Msg("sweep cycle failed")
			}
		case <-s.stopCh:
			s.logger.Info().Msg("staleness sweep stopped")
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) error {
	defer metrics.SweepCyclesTotal.Inc()

	orgs, err := s.projection.ListOrganizations(ctx)
	if err != nil {
		return err
	}

	for _, org := range orgs {
		for _, family := range families {
			near, err := s.quota.NearStale(ctx, org, family, s.margin)
			if err != nil {
				s.logger.Error().Err(err).Str("organization_id", string(org)).Str("family", string(family)).Msg("failed to check staleness")
				continue
			}
			if !near {
				continue
			}
			if err := s.rehydrate(ctx, org, family); err != nil {
				s.logger.Error().Err(err).Str("organization_id", string(org)).Str("family", string(family)).Msg("failed to rehydrate")
				continue
			}
			metrics.SweepRehydratedTotal.WithLabelValues(string(family)).Inc()
		}
	}
	return nil
}

func (s *Sweeper) rehydrate(ctx context.Context, org types.OrganizationID, family types.ResourceFamily) error {
	switch family {
	case types.FamilySandbox:
		_, err := s.overview.GetSandboxUsageOverview(ctx, org, "")
		return err
	case types.FamilySnapshot:
		_, err := s.overview.GetSnapshotUsageOverview(ctx, org)
		return err
	case types.FamilyVolume:
		_, err := s.overview.GetVolumeUsageOverview(ctx, org)
		return err
	default:
		return nil
	}
}

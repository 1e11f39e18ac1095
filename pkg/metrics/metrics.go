package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheHitsTotal counts overview reads served without a rehydrate.
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotaledger_cache_hits_total",
			Help: "Total number of overview reads served from a fresh cache entry",
		},
		[]string{"family"},
	)

	// CacheMissesTotal counts overview reads that found a stale or absent
	// cache entry and fell through to the lock/rehydrate path.
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotaledger_cache_misses_total",
			Help: "Total number of overview reads that required rehydration",
		},
		[]string{"family"},
	)

	// RehydrateDuration times a full database-projection fetch plus counter
	// store write, from lock acquisition to staleness-tracker reset.
	RehydrateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quotaledger_rehydrate_duration_seconds",
			Help:    "Time to rehydrate a family's counters from the projection store",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"family"},
	)

	// LockWaitDuration times how long a caller waited on the distributed
	// lock before acquiring it or giving up.
	LockWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quotaledger_lock_wait_duration_seconds",
			Help:    "Time spent waiting to acquire a per-organization lock",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"family"},
	)

	// LockTimeoutsTotal counts lock acquisitions that exhausted their
	// backoff budget without success.
	LockTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotaledger_lock_timeouts_total",
			Help: "Total number of lock acquisitions that timed out",
		},
		[]string{"family"},
	)

	// PendingAdjustmentsTotal counts pending-reservation increments and
	// decrements by quota kind.
	PendingAdjustmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotaledger_pending_adjustments_total",
			Help: "Total number of pending reservation adjustments",
		},
		[]string{"kind", "direction"},
	)

	// EventDeltasAppliedTotal counts event-sink delta applications by
	// event type and outcome.
	EventDeltasAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotaledger_event_deltas_applied_total",
			Help: "Total number of lifecycle event deltas applied to the counter store",
		},
		[]string{"event_type", "outcome"},
	)

	// StoreErrorsTotal counts counter-store communication failures by
	// operation, distinct from arithmetic errors which are handled as
	// cache misses and not counted here.
	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotaledger_store_errors_total",
			Help: "Total number of counter store communication errors",
		},
		[]string{"operation"},
	)

	// SweepCyclesTotal counts completed staleness-sweep cycles.
	SweepCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quotaledger_sweep_cycles_total",
			Help: "Total number of staleness sweep cycles completed",
		},
	)

	// SweepRehydratedTotal counts organizations rehydrated proactively by
	// the staleness sweep, as opposed to on demand by a reader.
	SweepRehydratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotaledger_sweep_rehydrated_total",
			Help: "Total number of organizations rehydrated by the background sweep",
		},
		[]string{"family"},
	)
)

func init() {
	prometheus.MustRegister(
		CacheHitsTotal,
		CacheMissesTotal,
		RehydrateDuration,
		LockWaitDuration,
		LockTimeoutsTotal,
		PendingAdjustmentsTotal,
		EventDeltasAppliedTotal,
		StoreErrorsTotal,
		SweepCyclesTotal,
		SweepRehydratedTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

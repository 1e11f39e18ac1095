/*
Package metrics registers the Prometheus collectors for the quota
accounting core (cache hit/miss counts, rehydrate and lock-wait latency,
pending adjustments, event delta outcomes, store errors, sweep
progress) and a small health/readiness checker used by the daemon's
HTTP surface.

Handler() exposes the registry for scraping. RegisterComponent and
UpdateComponent feed the health checker; HealthHandler, ReadyHandler,
and LivenessHandler wrap it for net/http. Readiness additionally
requires "redis" and "projection_store" to be registered healthy.
*/
package metrics

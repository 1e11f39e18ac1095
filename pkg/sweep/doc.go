/*
Package sweep runs the staleness sweep (spec.md §4.8 expansion): a ticker-
driven background loop, grounded on the teacher's reconciler, that lists
every organization known to the Database Projection Adapter and
proactively rehydrates any (org, family) whose staleness stamp is within a
configurable margin of going stale. This is a latency optimization only —
correctness never depends on it, since every read path already forces a
rehydrate on a stale cache miss.
*/
package sweep

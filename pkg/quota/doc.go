/*
Package quota implements the Quota Counter Store and the Staleness
Tracker (spec.md §4.2, §4.3): the key layout for confirmed counters,
pending counters, and per-family staleness stamps, and the atomic
operations composed from pkg/rstore's scripts.

Keys (bit-exact, external collaborators may read these):

	org:{organizationId}:quota:{kind}:usage
	org:{organizationId}:pending-{cpu|memory|disk}
	org:{organizationId}:resource:{sandbox|snapshot|volume}:usage:fetched_at

CalculateDelta is the polymorphic helper event handlers use to turn a
state transition into a signed amount; it has no knowledge of which
family it serves.
*/
package quota

/*
Package overview implements the Usage Overview Service (spec.md §4.5), the
public façade of the accounting core. Every read follows the same
algorithm: check the cache, and on a miss or stale family, acquire the
per-organization rehydrate lock, re-check (another caller may have already
rehydrated), and only then fall through to the Database Projection
Adapter. Reservation operations mutate the pending counters directly,
with no caching concern.

Service is the entry point; construct one with New and call its seven
public methods. The other exported types are the DTOs those methods return. Nothing in this package retains state across calls —
the shared in-memory store is the only source of truth below the
projection adapter.
*/
package overview

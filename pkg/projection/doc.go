/*
Package projection is the Database Projection Adapter (spec.md §4.4): the
single read path from the accounting core to the source of truth for
sandbox, snapshot, volume, and organization records.

Store is the interface the Usage Overview Service and the staleness sweep
code against. Two implementations are provided: BoltProjectionStore, an
embedded go.etcd.io/bbolt store used by default and by tests, and
SQLProjectionStore, a database/sql store for deployments where the source
of truth is already relational. Both run the same aggregation logic
described in spec.md §4.4 — confirmed usage is always computed from
current projection state, never cached in this package.
*/
package projection

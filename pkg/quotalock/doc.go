/*
Package quotalock implements the Distributed Lock Provider: a named mutex
over the shared in-memory store so locks are effective across process
replicas (spec.md §4.1). Acquire uses SET key owner EX ttl NX with bounded
exponential backoff; release is a compare-and-delete on the owner token so
a holder can never release a lock that TTL-expired and was reassigned.
*/
package quotalock

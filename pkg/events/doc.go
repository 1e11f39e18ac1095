/*
Package events defines the six lifecycle events the accounting core
consumes (sandbox/snapshot/volume created and state_updated) and a
Broker that fans them out to subscribers over buffered channels.

Publishers call Broker.Publish; pkg/eventsink subscribes and applies
each event's delta to the counter store. A subscriber whose buffer is
full misses the event rather than stalling the broker — eventsink is
expected to keep up, and a missed delta is corrected by the next
staleness-triggered rehydrate.
*/
package events

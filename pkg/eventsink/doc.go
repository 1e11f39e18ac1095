/*
Package eventsink implements the Event Sink (spec.md §4.6): it subscribes
to a pkg/events.Broker and, for each of the six lifecycle events, computes
a signed delta and applies it through pkg/quota. Every handler takes the
per-entity lock before mutating, and logs-and-swallows on failure — cache
drift from a dropped event is bounded by the staleness deadline, not
corrected here.
*/
package eventsink

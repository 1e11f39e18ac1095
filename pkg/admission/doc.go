/*
Package admission implements a thin read-only helper that answers "given
the current and in-flight consumption of organization O, is this new
sandbox request admissible?" (spec.md §1, §4.7 expansion). It performs no
mutation — composing only existing Usage Overview Service reads. Actual
reservation still flows through overview.IncrementPendingSandboxUsage.
*/
package admission

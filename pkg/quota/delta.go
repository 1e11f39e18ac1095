package quota

// CalculateDelta turns a state transition into a signed amount to apply to
// a confirmed counter: +amount when the entity newly joined the consuming
// set, -amount when it left, 0 when membership didn't change (including
// the old==new no-op case, which keeps a replayed event idempotent).
func CalculateDelta(amount int64, oldState, newState string, consumeSet map[string]struct{}) int64 {
	_, wasIn := consumeSet[oldState]
	_, isIn := consumeSet[newState]
	switch {
	case !wasIn && isIn:
		return amount
	case wasIn && !isIn:
		return -amount
	default:
		return 0
	}
}

// CalculateDeltaAgainstIgnoredSet mirrors CalculateDelta for the counting
// kinds (snapshot_count, volume_count), whose consume-set has no closed
// enumeration of its own: only the ignored states are fixed, and
// membership in the consume-set means simply "not ignored".
func CalculateDeltaAgainstIgnoredSet(amount int64, oldState, newState string, ignoredSet map[string]struct{}) int64 {
	_, oldIgnored := ignoredSet[oldState]
	_, newIgnored := ignoredSet[newState]
	wasIn := !oldIgnored
	isIn := !newIgnored
	switch {
	case !wasIn && isIn:
		return amount
	case wasIn && !isIn:
		return -amount
	default:
		return 0
	}
}

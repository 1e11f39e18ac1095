package rstore

import (
	"context"
	"fmt"
	"strconv"
)

// setRehydratedScript atomically sets every confirmed key of a family with
// TTL and stamps the family's fetched_at, so a reader never observes some
// kinds rehydrated and others not.
//
// KEYS: confirmed key 1..N, then the staleness key (last KEY)
// ARGV: value 1..N, then ttlSeconds, then nowMillis
const setRehydratedScript = `
local n = #KEYS - 1
for i = 1, n do
  redis.call('SET', KEYS[i], ARGV[i], 'EX', ARGV[n + 1])
end
redis.call('SET', KEYS[n + 1], ARGV[n + 2], 'EX', ARGV[n + 1])
return 1
`

// SetRehydrated writes every key in keys (all confirmed counters for one
// family) plus the family's staleness key, atomically.
func (c *Client) SetRehydrated(ctx context.Context, confirmedKeys []string, values []int64, stalenessKey string, ttlSeconds int, nowMillis int64) error {
	if len(confirmedKeys) != len(values) {
		return fmt.Errorf("rstore: key/value length mismatch")
	}
	keys := append(append([]string{}, confirmedKeys...), stalenessKey)
	argv := make([]interface{}, 0, len(values)+2)
	for _, v := range values {
		argv = append(argv, v)
	}
	argv = append(argv, ttlSeconds, nowMillis)
	return c.rdb.Eval(ctx, setRehydratedScript, keys, argv...).Err()
}

// applyDeltaScript increments a confirmed counter only if it already
// exists (an evicted key stays evicted rather than being resurrected by a
// later delta), and refreshes its TTL. If settlePendingKey is non-empty
// and delta > 0, it also decrements the pending counter by
// min(pending, delta), floored at zero, implementing the combined
// settlement variant.
//
// KEYS[1] = confirmed key
// KEYS[2] = pending key (may be the placeholder "-" when no settlement is
//
//	requested)
//
// ARGV[1] = delta (integer, may be negative)
// ARGV[2] = ttlSeconds
const applyDeltaScript = `
local confirmedKey = KEYS[1]
local pendingKey = KEYS[2]
local delta = tonumber(ARGV[1])
local ttl = ARGV[2]

local exists = redis.call('EXISTS', confirmedKey)
if exists == 0 then
  return 0
end

redis.call('INCRBY', confirmedKey, delta)
redis.call('EXPIRE', confirmedKey, ttl)

if pendingKey ~= '-' and delta > 0 then
  local pending = tonumber(redis.call('GET', pendingKey))
  if pending and pending > 0 then
    local settle = delta
    if settle > pending then
      settle = pending
    end
    local newPending = pending - settle
    if newPending < 0 then
      newPending = 0
    end
    redis.call('SET', pendingKey, newPending, 'KEEPTTL')
  end
end

return 1
`

// ApplyDelta applies delta to a confirmed counter. If settlePendingKey is
// non-empty, a positive delta also settles the matching pending reservation.
// Returns applied=false if the confirmed key was absent (no-op, by design).
func (c *Client) ApplyDelta(ctx context.Context, confirmedKey string, delta int64, ttlSeconds int, settlePendingKey string) (applied bool, err error) {
	pendingKey := settlePendingKey
	if pendingKey == "" {
		pendingKey = "-"
	}
	res, err := c.rdb.Eval(ctx, applyDeltaScript, []string{confirmedKey, pendingKey}, delta, ttlSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("apply delta %s: %w", confirmedKey, err)
	}
	return res == 1, nil
}

// incrementPendingScript increments each selected pending key and
// refreshes its TTL, returning the new values.
//
// KEYS: pending key 1..N
// ARGV: amount 1..N, then ttlSeconds
const incrementPendingScript = `
local n = #KEYS
local results = {}
for i = 1, n do
  local v = redis.call('INCRBY', KEYS[i], ARGV[i])
  redis.call('EXPIRE', KEYS[i], ARGV[n + 1])
  results[i] = v
end
return results
`

// IncrementPending increments each key in keys by the matching amount,
// refreshing TTL, and returns the post-increment values in order.
func (c *Client) IncrementPending(ctx context.Context, keys []string, amounts []int64, ttlSeconds int) ([]int64, error) {
	if len(keys) != len(amounts) {
		return nil, fmt.Errorf("rstore: key/amount length mismatch")
	}
	if len(keys) == 0 {
		return nil, nil
	}
	argv := make([]interface{}, 0, len(amounts)+1)
	for _, a := range amounts {
		argv = append(argv, a)
	}
	argv = append(argv, ttlSeconds)
	raw, err := c.rdb.Eval(ctx, incrementPendingScript, keys, argv...).Result()
	if err != nil {
		return nil, fmt.Errorf("increment pending: %w", err)
	}
	return toInt64Slice(raw)
}

// decrementPendingScript decrements each selected pending key without
// refreshing TTL. Values are not floored here; callers clamp any
// resulting negative value to zero on read.
//
// KEYS: pending key 1..N
// ARGV: amount 1..N
const decrementPendingScript = `
local n = #KEYS
local results = {}
for i = 1, n do
  local exists = redis.call('EXISTS', KEYS[i])
  if exists == 1 then
    results[i] = redis.call('DECRBY', KEYS[i], ARGV[i])
  else
    results[i] = 0
  end
end
return results
`

// DecrementPending decrements each key in keys by the matching amount.
func (c *Client) DecrementPending(ctx context.Context, keys []string, amounts []int64) ([]int64, error) {
	if len(keys) != len(amounts) {
		return nil, fmt.Errorf("rstore: key/amount length mismatch")
	}
	if len(keys) == 0 {
		return nil, nil
	}
	argv := make([]interface{}, len(amounts))
	for i, a := range amounts {
		argv[i] = a
	}
	raw, err := c.rdb.Eval(ctx, decrementPendingScript, keys, argv...).Result()
	if err != nil {
		return nil, fmt.Errorf("decrement pending: %w", err)
	}
	return toInt64Slice(raw)
}

// dualViewScript reads the three confirmed sandbox keys and their three
// pending counterparts under one script, preventing a torn read across
// the six keys.
//
// KEYS[1..3] = confirmed cpu, memory, disk
// KEYS[4..6] = pending cpu, memory, disk
const dualViewScript = `
local results = {}
for i = 1, 6 do
  local v = redis.call('GET', KEYS[i])
  if v then
    results[i] = v
  else
    results[i] = false
  end
end
return results
`

// DualView reads six keys (three confirmed, three pending) atomically.
func (c *Client) DualView(ctx context.Context, confirmedKeys, pendingKeys [3]string) (confirmed [3]int64, confirmedOK [3]bool, pending [3]int64, pendingOK [3]bool, err error) {
	keys := []string{confirmedKeys[0], confirmedKeys[1], confirmedKeys[2], pendingKeys[0], pendingKeys[1], pendingKeys[2]}
	raw, rerr := c.rdb.Eval(ctx, dualViewScript, keys).Result()
	if rerr != nil {
		err = fmt.Errorf("dual view: %w", rerr)
		return
	}
	vals, verr := toRawSlice(raw)
	if verr != nil {
		err = verr
		return
	}
	for i := 0; i < 3; i++ {
		if n, ok := parseNonNegative(vals[i]); ok {
			confirmed[i] = n
			confirmedOK[i] = true
		}
	}
	for i := 0; i < 3; i++ {
		if n, ok := parseNonNegative(vals[i+3]); ok {
			pending[i] = n
			pendingOK[i] = true
		}
	}
	return
}

func toRawSlice(raw interface{}) ([]interface{}, error) {
	s, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("rstore: unexpected script result type %T", raw)
	}
	return s, nil
}

func toInt64Slice(raw interface{}) ([]int64, error) {
	s, err := toRawSlice(raw)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(s))
	for i, v := range s {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("rstore: unexpected element type %T", v)
		}
		out[i] = n
	}
	return out, nil
}

func parseNonNegative(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case bool:
		return 0, false
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	case int64:
		if t < 0 {
			return 0, false
		}
		return t, true
	default:
		return 0, false
	}
}

package rstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeConn is an in-process stand-in for a Redis connection, implementing
// just enough of conn (plain GET/MGET/SETNX plus a tiny EVAL interpreter
// for the six scripts this package defines) to exercise pkg/quota and
// pkg/quotalock without a network dependency. It is not a general Lua
// interpreter: it pattern-matches on script identity.
type fakeConn struct {
	mu     sync.Mutex
	values map[string]string
	ttl    map[string]time.Time
}

// NewFake returns a Client backed by an in-process fake store, for unit
// tests that would otherwise require a live Redis instance.
func NewFake() *Client {
	return NewWithClient(&fakeConn{
		values: make(map[string]string),
		ttl:    make(map[string]time.Time),
	})
}

func (f *fakeConn) expired(key string) bool {
	exp, ok := f.ttl[key]
	return ok && time.Now().After(exp)
}

func (f *fakeConn) getLocked(key string) (string, bool) {
	if f.expired(key) {
		delete(f.values, key)
		delete(f.ttl, key)
		return "", false
	}
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeConn) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	v, ok := f.getLocked(key)
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeConn) MGet(ctx context.Context, keys ...string) *redis.SliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewSliceCmd(ctx)
	out := make([]interface{}, len(keys))
	for i, k := range keys {
		if v, ok := f.getLocked(k); ok {
			out[i] = v
		}
	}
	cmd.SetVal(out)
	return cmd
}

func (f *fakeConn) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewBoolCmd(ctx)
	if _, ok := f.getLocked(key); ok {
		cmd.SetVal(false)
		return cmd
	}
	f.values[key] = toString(value)
	if expiration > 0 {
		f.ttl[key] = time.Now().Add(expiration)
	}
	cmd.SetVal(true)
	return cmd
}

func (f *fakeConn) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeConn) Close() error { return nil }

// Eval interprets the fixed set of scripts defined in scripts.go by
// identity rather than executing Lua, matching each script's KEYS/ARGV
// contract exactly.
func (f *fakeConn) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewCmd(ctx)

	switch script {
	case setRehydratedScript:
		n := len(keys) - 1
		ttl := toInt(args[n])
		now := args[n+1]
		for i := 0; i < n; i++ {
			f.values[keys[i]] = toString(args[i])
			f.ttl[keys[i]] = time.Now().Add(time.Duration(ttl) * time.Second)
		}
		f.values[keys[n]] = toString(now)
		f.ttl[keys[n]] = time.Now().Add(time.Duration(ttl) * time.Second)
		cmd.SetVal(int64(1))

	case applyDeltaScript:
		confirmedKey, pendingKey := keys[0], keys[1]
		delta := toInt(args[0])
		ttl := toInt(args[1])
		v, ok := f.getLocked(confirmedKey)
		if !ok {
			cmd.SetVal(int64(0))
			return cmd
		}
		n, _ := strconv.ParseInt(v, 10, 64)
		n += delta
		f.values[confirmedKey] = strconv.FormatInt(n, 10)
		f.ttl[confirmedKey] = time.Now().Add(time.Duration(ttl) * time.Second)
		if pendingKey != "-" && delta > 0 {
			if pv, pok := f.getLocked(pendingKey); pok {
				pending, _ := strconv.ParseInt(pv, 10, 64)
				if pending > 0 {
					settle := delta
					if settle > pending {
						settle = pending
					}
					newPending := pending - settle
					if newPending < 0 {
						newPending = 0
					}
					f.values[pendingKey] = strconv.FormatInt(newPending, 10)
				}
			}
		}
		cmd.SetVal(int64(1))

	case incrementPendingScript:
		n := len(keys)
		ttl := toInt(args[n])
		results := make([]interface{}, n)
		for i := 0; i < n; i++ {
			v, _ := f.getLocked(keys[i])
			cur, _ := strconv.ParseInt(v, 10, 64)
			cur += toInt(args[i])
			f.values[keys[i]] = strconv.FormatInt(cur, 10)
			f.ttl[keys[i]] = time.Now().Add(time.Duration(ttl) * time.Second)
			results[i] = cur
		}
		cmd.SetVal(results)

	case decrementPendingScript:
		n := len(keys)
		results := make([]interface{}, n)
		for i := 0; i < n; i++ {
			v, ok := f.getLocked(keys[i])
			if !ok {
				results[i] = int64(0)
				continue
			}
			cur, _ := strconv.ParseInt(v, 10, 64)
			cur -= toInt(args[i])
			f.values[keys[i]] = strconv.FormatInt(cur, 10)
			results[i] = cur
		}
		cmd.SetVal(results)

	case dualViewScript:
		results := make([]interface{}, len(keys))
		for i, k := range keys {
			if v, ok := f.getLocked(k); ok {
				results[i] = v
			} else {
				results[i] = nil
			}
		}
		cmd.SetVal(results)

	case releaseScript:
		owner := toString(args[0])
		if v, ok := f.getLocked(keys[0]); ok && v == owner {
			delete(f.values, keys[0])
			delete(f.ttl, keys[0])
			cmd.SetVal(int64(1))
		} else {
			cmd.SetVal(int64(0))
		}

	default:
		cmd.SetErr(redis.Nil)
	}

	return cmd
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

func toInt(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

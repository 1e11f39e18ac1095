/*
Package rstore is the only package that imports github.com/redis/go-redis/v9
directly. It exposes plain reads (GetInt, MGetInt) and six Lua scripts —
setRehydrated, applyDelta, incrementPending, decrementPending, the
six-key dual view, and the owner-checked lock release — each running as
a single round trip so a partial failure can never leave sibling keys
out of sync.

pkg/quota and pkg/quotalock build the domain-level key layout and call
through this package; nothing above rstore parses a RESP reply or writes
Lua.
*/
package rstore

// Package errors implements the three-class error model shared by every dupguard
// component: Transient (store unreachable, timeouts; the caller may retry or fail
// open), Invalid (bad policy, bad configuration; never retry) and Fatal (the
// process cannot continue).
//
// All wrapping follows the format
//
//	"component.method: action failed: %w"
//
// and keeps the chain intact, so errors.Is works against both the sentinels
// declared here and the sentinels owned by other packages:
//
//	if err := store.Ping(ctx); err != nil {
//	    return errors.WrapTransient(err, "redisstore", "Ping", "ping redis")
//	}
//
// Use IsTransient, IsInvalid and IsFatal (or Classify) to make handling decisions.
package errors

package natsclient

import (
	"sync/atomic"
	"time"
)

const (
	defaultBreakerThreshold = 5
	initialBreakerBackoff   = time.Second
)

// breaker counts consecutive failures. Every threshold failures it doubles the
// cool-down, capped at maxBackoff.
type breaker struct {
	threshold  int32
	maxBackoff time.Duration

	total   atomic.Int32
	streak  atomic.Int32
	backoff atomic.Int64
}

func newBreaker(threshold int32, maxBackoff time.Duration) *breaker {
	b := &breaker{threshold: threshold, maxBackoff: maxBackoff}
	b.backoff.Store(int64(initialBreakerBackoff))
	return b
}

// fail records a failure. tripped reports whether the streak reached the
// threshold; wait is the cool-down that was in force before doubling.
func (b *breaker) fail() (tripped bool, wait time.Duration) {
	b.total.Add(1)
	if b.streak.Add(1) < b.threshold {
		return false, 0
	}
	b.streak.Store(0)

	wait = time.Duration(b.backoff.Load())
	next := wait * 2
	if next > b.maxBackoff {
		next = b.maxBackoff
	}
	b.backoff.Store(int64(next))
	return true, wait
}

func (b *breaker) dirty() bool {
	return b.total.Load() > 0 || b.streak.Load() > 0
}

func (b *breaker) reset() {
	b.total.Store(0)
	b.streak.Store(0)
	b.backoff.Store(int64(initialBreakerBackoff))
}

func (b *breaker) failures() int32 {
	return b.total.Load()
}

func (b *breaker) currentBackoff() time.Duration {
	return time.Duration(b.backoff.Load())
}

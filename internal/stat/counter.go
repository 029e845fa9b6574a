package stat

import (
	"strconv"
	"sync/atomic"
)

// Counter is a lock-free saturating-at-zero counter, atomic in the same
// style as session.Connection's sessionID/alive fields rather than the
// mutex-guarded int the teacher uses for its job/worker tallies.
type Counter struct {
	n int64
}

// NewCounter builds a counter starting at n.
func NewCounter(n int) *Counter {
	return &Counter{n: int64(n)}
}

// Incr adds one.
func (c *Counter) Incr() { atomic.AddInt64(&c.n, 1) }

// Decr subtracts one, floored at zero: queue depths never go negative.
func (c *Counter) Decr() {
	for {
		old := atomic.LoadInt64(&c.n)
		if old <= 0 {
			return
		}
		if atomic.CompareAndSwapInt64(&c.n, old, old-1) {
			return
		}
	}
}

// Int reads the current value.
func (c *Counter) Int() int { return int(atomic.LoadInt64(&c.n)) }

// String renders the current value, for PairStat.String.
func (c *Counter) String() string { return strconv.FormatInt(atomic.LoadInt64(&c.n), 10) }

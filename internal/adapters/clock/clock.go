// Package clock provides logical-time sources for the ledger host.
package clock

import (
	"sync/atomic"
	"time"
)

// Manual is a logical clock that only moves when told to.
type Manual struct{ h atomic.Int64 }

func NewManual(start int64) *Manual {
	m := &Manual{}
	m.h.Store(start)
	return m
}

func (m *Manual) Now() int64 { return m.h.Load() }

// Advance moves the clock forward by n; negative n is ignored to keep it monotone.
func (m *Manual) Advance(n int64) int64 {
	if n < 0 {
		return m.h.Load()
	}
	return m.h.Add(n)
}

// Interval derives a height from wall time, one height per interval since genesis.
type Interval struct {
	genesis  time.Time
	interval time.Duration
	now      func() time.Time
	last     atomic.Int64
}

func NewInterval(genesis time.Time, interval time.Duration) *Interval {
	return &Interval{genesis: genesis, interval: interval, now: time.Now}
}

// Now never goes backwards even if the wall clock does.
func (c *Interval) Now() int64 {
	h := int64(c.now().Sub(c.genesis) / c.interval)
	for {
		last := c.last.Load()
		if h <= last {
			return last
		}
		if c.last.CompareAndSwap(last, h) {
			return h
		}
	}
}

package fstream

import (
	"math"
	"sync/atomic"
)

// Unbounded is the saturated demand value meaning "no limit".
const Unbounded int64 = math.MaxInt64

// DemandCounter accumulates outstanding requests. It never goes negative
// and saturates at Unbounded. The zero value is ready to use.
type DemandCounter struct {
	n atomic.Int64
}

// Add adds n (> 0) to the outstanding demand and returns the old value.
func (d *DemandCounter) Add(n int64) int64 {
	for {
		cur := d.n.Load()
		if cur == Unbounded {
			return Unbounded
		}
		next := Unbounded
		if n < Unbounded-cur {
			next = cur + n
		}
		if d.n.CompareAndSwap(cur, next) {
			return cur
		}
	}
}

// Produced records that n items were delivered and returns the remaining
// demand. Unbounded demand is not decremented.
func (d *DemandCounter) Produced(n int64) int64 {
	for {
		cur := d.n.Load()
		if cur == Unbounded {
			return Unbounded
		}
		next := cur - n
		if next < 0 {
			violation("produced %d items with only %d requested", n, cur)
		}
		if d.n.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// Get returns the outstanding demand.
func (d *DemandCounter) Get() int64 {
	return d.n.Load()
}

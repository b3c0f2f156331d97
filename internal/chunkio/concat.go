package chunkio

import (
	"sync"
	"sync/atomic"

	"github.com/nuln/fstream"
)

// Concat returns the end-to-end concatenation of n sequences. Part i is
// opened by open(i) only once part i-1 has completed, so at most one part
// is open at a time. Outstanding demand carries over from one part to the
// next and cancellation is forwarded to the current part.
func Concat(n int, open func(i int) (fstream.Sequence, error)) fstream.Sequence {
	return fstream.SequenceFunc(func(sub fstream.Subscriber) {
		c := &concatRead{n: n, open: open, downstream: sub}
		sub.OnSubscribe(c)
		c.drain()
	})
}

type concatRead struct {
	n          int
	open       func(i int) (fstream.Sequence, error)
	downstream fstream.Subscriber

	mu        sync.Mutex
	requested fstream.DemandCounter
	current   fstream.Subscription
	cancelled bool

	// wip serializes opening parts; idx is owned by the drain loop.
	wip  atomic.Int32
	idx  int
	done atomic.Bool
}

func (c *concatRead) Request(n int64) {
	if n <= 0 {
		panic(fstream.ProtocolViolation{Rule: "request: demand must be positive"})
	}
	c.mu.Lock()
	c.requested.Add(n)
	cur := c.current
	c.mu.Unlock()
	if cur != nil {
		cur.Request(n)
	}
}

func (c *concatRead) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	cur := c.current
	c.mu.Unlock()
	if cur != nil {
		cur.Cancel()
	}
}

func (c *concatRead) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// drain subscribes to the next part. Parts that complete synchronously are
// handled iteratively.
func (c *concatRead) drain() {
	if c.wip.Add(1) != 1 {
		return
	}
	missed := int32(1)
	for {
		if c.isCancelled() || c.done.Load() {
			return
		}
		if c.idx == c.n {
			c.finish(nil)
			return
		}
		seq, err := c.open(c.idx)
		c.idx++
		if err != nil {
			c.finish(err)
			return
		}
		seq.Subscribe(&concatPart{parent: c})

		missed = c.wip.Add(-missed)
		if missed == 0 {
			return
		}
	}
}

func (c *concatRead) finish(err error) {
	if !c.done.CompareAndSwap(false, true) {
		return
	}
	if err != nil {
		c.downstream.OnError(err)
		return
	}
	c.downstream.OnComplete()
}

// concatPart subscribes to one part and forwards its chunks.
type concatPart struct {
	parent *concatRead
}

func (p *concatPart) OnSubscribe(s fstream.Subscription) {
	c := p.parent
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		s.Cancel()
		return
	}
	c.current = s
	r := c.requested.Get()
	c.mu.Unlock()
	if r > 0 {
		s.Request(r)
	}
}

func (p *concatPart) OnNext(chunk fstream.Chunk) {
	c := p.parent
	c.mu.Lock()
	c.requested.Produced(1)
	c.mu.Unlock()
	c.downstream.OnNext(chunk)
}

func (p *concatPart) OnError(err error) {
	p.parent.finish(err)
}

func (p *concatPart) OnComplete() {
	c := p.parent
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	c.drain()
}

package fstream

import (
	"fmt"
	"math"
)

// DefaultChunkSize is the default size of the chunks read from a file (64KiB).
const DefaultChunkSize = 64 * 1024

// Chunk is one bounded unit of a byte stream. Its length is the valid
// length; capacity may be larger. Once delivered through OnNext the chunk
// belongs to the subscriber and the producer keeps no reference to it.
type Chunk []byte

// ReadRange is the [Offset, Offset+Length) byte window of a file.
type ReadRange struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// WholeFile returns the range covering a file of the given size.
func WholeFile(size int64) ReadRange {
	return ReadRange{Offset: 0, Length: size}
}

// Validate reports whether the range is well formed.
func (r ReadRange) Validate() error {
	if r.Offset < 0 {
		return fmt.Errorf("fstream: negative range offset %d", r.Offset)
	}
	if r.Length < 0 {
		return fmt.Errorf("fstream: negative range length %d", r.Length)
	}
	return nil
}

// End returns Offset+Length, saturating at math.MaxInt64.
func (r ReadRange) End() int64 {
	if r.Length > math.MaxInt64-r.Offset {
		return math.MaxInt64
	}
	return r.Offset + r.Length
}

// Clamp truncates the range to a file of the given size.
func (r ReadRange) Clamp(size int64) ReadRange {
	if r.Offset >= size {
		return ReadRange{Offset: size, Length: 0}
	}
	if r.End() > size {
		r.Length = size - r.Offset
	}
	return r
}

func (r ReadRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Offset, r.End())
}

// Subscription links a Subscriber to the Sequence it subscribed to.
type Subscription interface {
	// Request signals demand for n more chunks. n must be >= 1.
	Request(n int64)

	// Cancel stops the flow of signals. It is idempotent.
	Cancel()
}

// Subscriber receives the signals of a Sequence. Calls are never concurrent:
// OnSubscribe first, then OnNext zero or more times, then at most one of
// OnError or OnComplete.
type Subscriber interface {
	OnSubscribe(s Subscription)
	OnNext(c Chunk)
	OnError(err error)
	OnComplete()
}

// Sequence is a lazy, finite, ordered sequence of chunks. Every Subscribe
// starts an independent pass; a pass cannot be restarted once begun.
type Sequence interface {
	Subscribe(s Subscriber)
}

// SequenceFunc adapts a function to a Sequence.
type SequenceFunc func(s Subscriber)

func (f SequenceFunc) Subscribe(s Subscriber) { f(s) }

// SubscriberFuncs adapts a set of callbacks to a Subscriber. Nil callbacks
// are ignored.
type SubscriberFuncs struct {
	Subscribe func(s Subscription)
	Next      func(c Chunk)
	Error     func(err error)
	Complete  func()
}

func (f SubscriberFuncs) OnSubscribe(s Subscription) {
	if f.Subscribe != nil {
		f.Subscribe(s)
	}
}

func (f SubscriberFuncs) OnNext(c Chunk) {
	if f.Next != nil {
		f.Next(c)
	}
}

func (f SubscriberFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f SubscriberFuncs) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}

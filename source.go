package fstream

import (
	"errors"
	"io"
	"sync/atomic"
)

// fileSource is the Sequence returned by StreamFileRange. Each Subscribe
// creates an independent fileRead.
type fileSource struct {
	file      AsyncReaderAt
	rng       ReadRange
	chunkSize int
	opts      options
}

func (s *fileSource) Subscribe(sub Subscriber) {
	if sub == nil {
		violation("subscribe with nil subscriber")
	}
	if s.file == nil {
		sub.OnSubscribe(emptySubscription{})
		sub.OnError(errors.New("fstream: nil file handle"))
		return
	}
	if err := s.rng.Validate(); err != nil {
		sub.OnSubscribe(emptySubscription{})
		sub.OnError(err)
		return
	}

	r := &fileRead{
		sub:       sub,
		file:      s.file,
		rng:       s.rng,
		end:       s.rng.End(),
		chunkSize: s.chunkSize,
		opts:      s.opts,
	}
	sub.OnSubscribe(r)
	if r.rng.Length == 0 {
		r.done.Store(true)
		r.drain()
	}
}

// fileRead is one pass over a file range. Delivery and read issuance are
// serialized by the wip counter: whichever goroutine moves it from 0 to 1
// owns the drain loop, every other caller only bumps it and returns.
type fileRead struct {
	sub       Subscriber
	file      AsyncReaderAt
	rng       ReadRange
	end       int64
	chunkSize int
	opts      options

	wip       atomic.Int32
	demand    DemandCounter
	cancelled atomic.Bool
	done      atomic.Bool
	reading   atomic.Bool
	next      atomic.Pointer[Chunk]

	// err is written before done is set.
	err error

	// position is owned by the drain loop while no read is in flight and
	// by the read completion while one is.
	position int64
	started  bool
}

func (r *fileRead) Request(n int64) {
	if n <= 0 {
		violation("request(%d): demand must be positive", n)
	}
	r.demand.Add(n)
	r.drain()
}

func (r *fileRead) Cancel() {
	r.cancelled.Store(true)
}

func (r *fileRead) drain() {
	if r.wip.Add(1) != 1 {
		return
	}
	missed := int32(1)
	for {
		if r.cancelled.Load() {
			return
		}
		// No I/O is issued before the first demand arrives.
		if !r.started {
			r.started = true
			r.position = r.rng.Offset
		}

		// Read done before next: a completion stores next first.
		d := r.done.Load()
		c := r.next.Load()

		if c != nil && r.demand.Get() > 0 {
			r.next.Store(nil)
			r.sub.OnNext(*c)
			r.demand.Produced(1)
			continue
		}

		if d && c == nil {
			// Leave wip raised so that every later drain is a no-op.
			if r.err != nil {
				r.sub.OnError(r.err)
			} else {
				r.sub.OnComplete()
			}
			return
		}

		if !d && c == nil && !r.reading.Load() && r.demand.Get() > 0 {
			if r.position >= r.end {
				r.done.Store(true)
				continue
			}
			r.reading.Store(true)
			r.read()
		}

		missed = r.wip.Add(-missed)
		if missed == 0 {
			return
		}
	}
}

func (r *fileRead) read() {
	size := r.chunkSize
	if remaining := r.end - r.position; remaining < int64(size) {
		size = int(remaining)
	}
	buf := make([]byte, size)
	pos := r.position
	r.file.ReadAtAsync(buf, pos, func(n int, err error) {
		r.completed(buf, pos, n, err)
	})
}

func (r *fileRead) completed(buf []byte, pos int64, n int, err error) {
	if r.cancelled.Load() {
		if err != nil && !errors.Is(err, io.EOF) {
			r.opts.drop(Dropped{Signal: SignalError, Err: err})
		} else {
			r.opts.drop(Dropped{Signal: SignalNext, Bytes: n})
		}
		return
	}

	eof := errors.Is(err, io.EOF)
	switch {
	case err != nil && !eof:
		r.err = &IOError{Op: "read", Offset: pos, Err: err}
		r.done.Store(true)
	case n == 0 && !eof:
		r.err = &IOError{Op: "read", Offset: pos, Err: io.ErrNoProgress}
		r.done.Store(true)
	default:
		if n > 0 {
			// Never deliver bytes past the end of the range.
			if limit := r.end - pos; int64(n) > limit {
				n = int(limit)
			}
			c := Chunk(buf[:n])
			r.position = pos + int64(n)
			r.next.Store(&c)
		}
		if eof || r.position >= r.end {
			r.done.Store(true)
		}
	}
	r.reading.Store(false)
	r.drain()
}

type emptySubscription struct{}

func (emptySubscription) Request(int64) {}
func (emptySubscription) Cancel()       {}

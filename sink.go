package fstream

import (
	"io"
	"sync/atomic"
)

const (
	sinkWriting      uint32 = 1 << iota // a chunk is being flushed
	sinkUpstreamDone                    // upstream completed normally
)

// channelSink writes every chunk of a sequence to an AsyncWriter, one chunk
// at a time. It requests the next chunk only after the current one has been
// written in full, so at most one chunk is held regardless of disk speed.
// The destination is never opened or closed here.
type channelSink struct {
	dst     AsyncWriter
	opts    options
	resolve func(err error)

	sub      atomic.Pointer[Subscription]
	state    atomic.Uint32
	finished atomic.Bool
	written  atomic.Int64
}

func newChannelSink(dst AsyncWriter, opts options, resolve func(err error)) *channelSink {
	return &channelSink{dst: dst, opts: opts, resolve: resolve}
}

func (s *channelSink) OnSubscribe(sub Subscription) {
	if !s.sub.CompareAndSwap(nil, &sub) {
		// Only the first subscription is honoured.
		sub.Cancel()
		return
	}
	if s.finished.Load() {
		// Cancelled before upstream got around to subscribing.
		sub.Cancel()
		return
	}
	sub.Request(1)
}

func (s *channelSink) OnNext(c Chunk) {
	if s.finished.Load() {
		s.opts.drop(Dropped{Signal: SignalNext, Bytes: len(c)})
		return
	}
	for {
		old := s.state.Load()
		if old&sinkWriting != 0 {
			violation("chunk delivered while the previous one is still being written")
		}
		if old&sinkUpstreamDone != 0 {
			violation("chunk delivered after completion")
		}
		if s.state.CompareAndSwap(old, old|sinkWriting) {
			break
		}
	}
	if len(c) == 0 {
		s.flushed()
		return
	}
	s.write(c)
}

// write issues writes until c is fully consumed. Partial writes loop on the
// remaining tail; nothing is requested upstream meanwhile.
func (s *channelSink) write(c Chunk) {
	s.dst.WriteAsync(c, func(n int, err error) {
		if n > 0 {
			s.written.Add(int64(n))
		}
		if err != nil {
			s.fail(&IOError{Op: "write", Offset: s.written.Load(), Err: err})
			return
		}
		if n <= 0 {
			s.fail(&IOError{Op: "write", Offset: s.written.Load(), Err: io.ErrShortWrite})
			return
		}
		if n < len(c) {
			if s.finished.Load() {
				return
			}
			s.write(c[n:])
			return
		}
		s.flushed()
	})
}

func (s *channelSink) flushed() {
	var old uint32
	for {
		old = s.state.Load()
		if s.state.CompareAndSwap(old, old&^sinkWriting) {
			break
		}
	}
	if old&sinkUpstreamDone != 0 {
		s.finish(nil)
		return
	}
	if s.finished.Load() {
		return
	}
	if sub := s.sub.Load(); sub != nil {
		(*sub).Request(1)
	}
}

func (s *channelSink) OnError(err error) {
	if !s.finish(err) {
		s.opts.drop(Dropped{Signal: SignalError, Err: err})
	}
}

func (s *channelSink) OnComplete() {
	if s.finished.Load() {
		s.opts.drop(Dropped{Signal: SignalComplete})
		return
	}
	var old uint32
	for {
		old = s.state.Load()
		if s.state.CompareAndSwap(old, old|sinkUpstreamDone) {
			break
		}
	}
	// A write still in flight reports success once it has been flushed.
	if old&sinkWriting == 0 {
		s.finish(nil)
	}
}

// fail terminates the transfer and stops upstream.
func (s *channelSink) fail(err error) {
	if s.finish(err) {
		s.cancelUpstream()
	}
}

// cancel terminates the transfer with err (wrapping ErrCancelled).
func (s *channelSink) cancel(err error) {
	if s.finish(err) {
		s.cancelUpstream()
	}
}

func (s *channelSink) cancelUpstream() {
	if sub := s.sub.Load(); sub != nil {
		(*sub).Cancel()
	}
}

func (s *channelSink) finish(err error) bool {
	if !s.finished.CompareAndSwap(false, true) {
		return false
	}
	s.resolve(err)
	return true
}

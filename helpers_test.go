package fstream_test

import (
	"bytes"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nuln/fstream"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	rnd := rand.New(rand.NewSource(int64(n) + 1))
	_, _ = rnd.Read(data)
	return data
}

// countingReaderAt counts ReadAt calls and records their offsets.
type countingReaderAt struct {
	r       io.ReaderAt
	mu      sync.Mutex
	offsets []int64
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	c.mu.Lock()
	c.offsets = append(c.offsets, off)
	c.mu.Unlock()
	return c.r.ReadAt(p, off)
}

func (c *countingReaderAt) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.offsets)
}

// manualFile holds reads until the test completes them.
type manualFile struct {
	data    []byte
	mu      sync.Mutex
	pending []func()
}

func (m *manualFile) ReadAtAsync(p []byte, off int64, done func(int, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, func() {
		n, err := bytes.NewReader(m.data).ReadAt(p, off)
		done(n, err)
	})
}

func (m *manualFile) inFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// completeOne finishes the oldest pending read.
func (m *manualFile) completeOne(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		t.Fatal("no pending read")
	}
	fn := m.pending[0]
	m.pending = m.pending[1:]
	m.mu.Unlock()
	fn()
}

// manualWriter holds writes until the test completes them.
type manualWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	pending []func()
}

func (m *manualWriter) WriteAsync(p []byte, done func(int, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, func() {
		m.mu.Lock()
		m.buf.Write(p)
		m.mu.Unlock()
		done(len(p), nil)
	})
}

func (m *manualWriter) completeOne(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		t.Fatal("no pending write")
	}
	fn := m.pending[0]
	m.pending = m.pending[1:]
	m.mu.Unlock()
	fn()
}

// recorder is a Subscriber that records every signal and detects
// overlapping OnNext calls.
type recorder struct {
	mu        sync.Mutex
	sub       fstream.Subscription
	chunks    []fstream.Chunk
	err       error
	completed int
	errored   int
	initial   int64
	inNext    atomic.Bool
	overlap   atomic.Bool
	done      chan struct{}
	onNext    func(r *recorder, c fstream.Chunk)
}

func newRecorder(initial int64) *recorder {
	return &recorder{initial: initial, done: make(chan struct{})}
}

func (r *recorder) OnSubscribe(s fstream.Subscription) {
	r.mu.Lock()
	r.sub = s
	r.mu.Unlock()
	if r.initial > 0 {
		s.Request(r.initial)
	}
}

func (r *recorder) OnNext(c fstream.Chunk) {
	if !r.inNext.CompareAndSwap(false, true) {
		r.overlap.Store(true)
	}
	r.mu.Lock()
	r.chunks = append(r.chunks, c)
	r.mu.Unlock()
	if r.onNext != nil {
		r.onNext(r, c)
	}
	r.inNext.Store(false)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.err = err
	r.errored++
	first := r.errored+r.completed == 1
	r.mu.Unlock()
	if first {
		close(r.done)
	}
}

func (r *recorder) OnComplete() {
	r.mu.Lock()
	r.completed++
	first := r.errored+r.completed == 1
	r.mu.Unlock()
	if first {
		close(r.done)
	}
}

func (r *recorder) subscription() fstream.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

func (r *recorder) bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []byte
	for _, c := range r.chunks {
		out = append(out, c...)
	}
	return out
}

func (r *recorder) terminated() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a terminal signal")
	}
}

// chunkSequence emits fixed chunks honouring demand. It is only used as an
// upstream for sink tests.
type chunkSequence struct {
	chunks []fstream.Chunk
	err    error
}

func (s chunkSequence) Subscribe(sub fstream.Subscriber) {
	c := &chunkSubscription{seq: s, sub: sub}
	sub.OnSubscribe(c)
}

type chunkSubscription struct {
	seq       chunkSequence
	sub       fstream.Subscriber
	mu        sync.Mutex
	demand    int64
	idx       int
	emitting  bool
	cancelled bool
	finished  bool
}

func (c *chunkSubscription) Request(n int64) {
	c.mu.Lock()
	c.demand += n
	if c.emitting {
		c.mu.Unlock()
		return
	}
	c.emitting = true
	for !c.cancelled && !c.finished {
		if c.idx == len(c.seq.chunks) {
			c.finished = true
			c.mu.Unlock()
			if c.seq.err != nil {
				c.sub.OnError(c.seq.err)
			} else {
				c.sub.OnComplete()
			}
			return
		}
		if c.demand == 0 {
			break
		}
		chunk := c.seq.chunks[c.idx]
		c.idx++
		c.demand--
		c.mu.Unlock()
		c.sub.OnNext(chunk)
		c.mu.Lock()
	}
	c.emitting = false
	c.mu.Unlock()
}

func (c *chunkSubscription) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

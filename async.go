package fstream

import (
	"context"
	"io"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// AsyncReaderAt is an asynchronous random-access file handle. ReadAtAsync
// starts a read of up to len(p) bytes at off and returns at once; done is
// invoked exactly once, possibly on another goroutine, with the byte count
// and error exactly as io.ReaderAt would report them (n < len(p) with
// io.EOF at end of file). A handle may also report n < len(p) with a nil
// error, which callers treat as a short read and not as end of file.
type AsyncReaderAt interface {
	ReadAtAsync(p []byte, off int64, done func(n int, err error))
}

// AsyncWriter is an asynchronous byte channel (a file at a position, a
// socket, a response body). WriteAsync starts writing p and returns at once;
// done is invoked exactly once with the number of bytes consumed, which may
// be less than len(p) without an error for socket-like channels.
type AsyncWriter interface {
	WriteAsync(p []byte, done func(n int, err error))
}

// IOPool runs blocking I/O calls on a bounded set of goroutines so that the
// goroutine signalling demand is never blocked by disk or network latency.
// A nil *IOPool runs calls inline on the caller's goroutine.
type IOPool struct {
	sem *semaphore.Weighted
}

// NewIOPool creates a pool that runs at most workers calls at once.
func NewIOPool(workers int) *IOPool {
	if workers < 1 {
		workers = 1
	}
	return &IOPool{sem: semaphore.NewWeighted(int64(workers))}
}

var (
	defaultPoolOnce sync.Once
	defaultPool     *IOPool
)

// DefaultIOPool returns a process-wide pool sized from the CPU count.
func DefaultIOPool() *IOPool {
	defaultPoolOnce.Do(func() {
		defaultPool = NewIOPool(runtime.NumCPU() * 4)
	})
	return defaultPool
}

// Go schedules fn. It never blocks the caller unless p is nil.
func (p *IOPool) Go(fn func()) {
	if p == nil {
		fn()
		return
	}
	go func() {
		// Acquire only fails on a cancelled context.
		_ = p.sem.Acquire(context.Background(), 1)
		defer p.sem.Release(1)
		fn()
	}()
}

type asyncFile struct {
	r    io.ReaderAt
	pool *IOPool
}

// NewAsyncFile exposes an io.ReaderAt as an AsyncReaderAt whose reads run
// on pool. The handle is not closed by the bridge.
func NewAsyncFile(r io.ReaderAt, pool *IOPool) AsyncReaderAt {
	return &asyncFile{r: r, pool: pool}
}

func (f *asyncFile) ReadAtAsync(p []byte, off int64, done func(n int, err error)) {
	f.pool.Go(func() {
		n, err := f.r.ReadAt(p, off)
		done(n, err)
	})
}

type asyncWriter struct {
	w    io.Writer
	pool *IOPool
}

// NewAsyncWriter exposes an io.Writer as an AsyncWriter whose writes run on
// pool. The writer is not closed by the bridge.
func NewAsyncWriter(w io.Writer, pool *IOPool) AsyncWriter {
	return &asyncWriter{w: w, pool: pool}
}

func (a *asyncWriter) WriteAsync(p []byte, done func(n int, err error)) {
	a.pool.Go(func() {
		n, err := a.w.Write(p)
		done(n, err)
	})
}

type asyncWriterAt struct {
	w    io.WriterAt
	pos  int64
	pool *IOPool
}

// NewAsyncWriterAt exposes an io.WriterAt as a sequential AsyncWriter that
// starts at pos. At most one write may be outstanding at a time, which the
// sink guarantees.
func NewAsyncWriterAt(w io.WriterAt, pos int64, pool *IOPool) AsyncWriter {
	return &asyncWriterAt{w: w, pos: pos, pool: pool}
}

func (a *asyncWriterAt) WriteAsync(p []byte, done func(n int, err error)) {
	a.pool.Go(func() {
		n, err := a.w.WriteAt(p, a.pos)
		a.pos += int64(n)
		done(n, err)
	})
}

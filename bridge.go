package fstream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// StreamFileRange returns a lazy Sequence of the bytes of file within rng,
// in chunks of at most chunkSize bytes (DefaultChunkSize when <= 0). No
// read is issued until a subscriber requests data, and at most one chunk
// is buffered ahead of delivery. A range reaching past the end of the file
// is truncated to the file's length. The handle is never closed.
func StreamFileRange(file AsyncReaderAt, rng ReadRange, chunkSize int, opts ...Option) Sequence {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &fileSource{
		file:      file,
		rng:       rng,
		chunkSize: chunkSize,
		opts:      buildOptions(opts),
	}
}

// Status is the outcome of a Transfer.
type Status int32

const (
	StatusPending Status = iota
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// Transfer is the single-shot outcome of DrainInto.
type Transfer struct {
	sink   *channelSink
	done   chan struct{}
	status atomic.Int32
	err    error
}

// DrainInto subscribes to seq and writes every chunk, in order and in full,
// to dst. The returned Transfer resolves once the last chunk has been
// flushed, on the first error, or on cancellation. dst is never closed.
func DrainInto(seq Sequence, dst AsyncWriter, opts ...Option) *Transfer {
	t := &Transfer{done: make(chan struct{})}
	if seq == nil || dst == nil {
		t.resolve(errors.New("fstream: nil sequence or destination"))
		return t
	}
	t.sink = newChannelSink(dst, buildOptions(opts), t.resolve)
	seq.Subscribe(t.sink)
	return t
}

// Drain runs DrainInto and waits for it. If ctx is done first the transfer
// is cancelled and the returned error wraps both ErrCancelled and ctx.Err().
func Drain(ctx context.Context, seq Sequence, dst AsyncWriter, opts ...Option) error {
	return DrainInto(seq, dst, opts...).Wait(ctx)
}

func (t *Transfer) resolve(err error) {
	status := StatusSucceeded
	switch {
	case err == nil:
	case errors.Is(err, ErrCancelled):
		status = StatusCancelled
	default:
		status = StatusFailed
	}
	t.err = err
	t.status.Store(int32(status))
	close(t.done)
}

// Done is closed when the transfer has resolved.
func (t *Transfer) Done() <-chan struct{} { return t.done }

// Err returns the terminal error: nil on success or while pending,
// ErrCancelled (possibly wrapped) after cancellation.
func (t *Transfer) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Status reports the current state of the transfer.
func (t *Transfer) Status() Status {
	return Status(t.status.Load())
}

// Written returns the number of bytes written to the destination so far.
func (t *Transfer) Written() int64 {
	if t.sink == nil {
		return 0
	}
	return t.sink.written.Load()
}

// Cancel stops the transfer. Nothing crosses the bridge afterwards, though
// a write or read already handed to the OS may still complete. Cancelling a
// resolved transfer is a no-op.
func (t *Transfer) Cancel() {
	t.cancelWith(nil)
}

func (t *Transfer) cancelWith(cause error) {
	if t.sink == nil {
		return
	}
	err := ErrCancelled
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrCancelled, cause)
	}
	t.sink.cancel(err)
}

// Wait blocks until the transfer resolves or ctx is done, in which case the
// transfer is cancelled first.
func (t *Transfer) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		t.cancelWith(ctx.Err())
		<-t.done
		return t.err
	}
}

// Package chunkio adapts plain readers and writers to fstream sequences:
// inbound request bodies, end-to-end concatenation of several files and
// exposing a sequence as an io.Reader.
package chunkio

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/nuln/fstream"
)

type sequential struct {
	r      io.Reader
	pool   *fstream.IOPool
	pos    atomic.Int64
	strict bool
}

// Sequential exposes a forward-only reader (a request body, a socket) as an
// AsyncReaderAt so that it can be streamed with fstream.StreamFileRange.
// Reads must arrive at consecutive offsets, one at a time, which is how the
// file source issues them; anything else is a ProtocolViolation.
func Sequential(r io.Reader, pool *fstream.IOPool) fstream.AsyncReaderAt {
	return &sequential{r: r, pool: pool}
}

func (s *sequential) ReadAtAsync(p []byte, off int64, done func(n int, err error)) {
	if pos := s.pos.Load(); off != pos {
		panic(fstream.ProtocolViolation{Rule: fmt.Sprintf("sequential read at offset %d, expected %d", off, pos)})
	}
	s.pool.Go(func() {
		n, err := io.ReadFull(s.r, p)
		s.pos.Add(int64(n))
		switch {
		case s.strict && errors.Is(err, io.EOF), s.strict && errors.Is(err, io.ErrUnexpectedEOF):
			err = io.ErrUnexpectedEOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			err = io.EOF
		}
		done(n, err)
	})
}

// Body returns the sequence of an inbound body of contentLength bytes, or
// of unknown length when contentLength < 0. Bytes beyond contentLength are
// not read. A body of known length that ends early fails with
// io.ErrUnexpectedEOF. The sequence can be subscribed to once.
func Body(r io.Reader, contentLength int64, chunkSize int, pool *fstream.IOPool, opts ...fstream.Option) fstream.Sequence {
	if contentLength < 0 {
		rng := fstream.ReadRange{Offset: 0, Length: fstream.Unbounded}
		return fstream.StreamFileRange(Sequential(r, pool), rng, chunkSize, opts...)
	}
	src := &sequential{r: r, pool: pool, strict: true}
	return fstream.StreamFileRange(src, fstream.WholeFile(contentLength), chunkSize, opts...)
}

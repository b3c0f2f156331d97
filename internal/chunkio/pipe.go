package chunkio

import (
	"io"

	"github.com/nuln/fstream"
)

// PipeReader exposes seq as an io.ReadCloser. Chunks are written into a pipe
// by a sink, so the sequence is pulled exactly as fast as the reader
// consumes. Close cancels the transfer. The reader reports the transfer's
// error, or io.EOF once every chunk has been read.
func PipeReader(seq fstream.Sequence, pool *fstream.IOPool) io.ReadCloser {
	if pool == nil {
		// Pipe writes block until read, so they must not run inline.
		pool = fstream.NewIOPool(1)
	}
	pr, pw := io.Pipe()
	t := fstream.DrainInto(seq, fstream.NewAsyncWriter(pw, pool))
	go func() {
		<-t.Done()
		_ = pw.CloseWithError(t.Err())
	}()
	return &pipeReader{PipeReader: pr, transfer: t}
}

type pipeReader struct {
	*io.PipeReader
	transfer *fstream.Transfer
}

func (p *pipeReader) Close() error {
	p.transfer.Cancel()
	return p.PipeReader.Close()
}

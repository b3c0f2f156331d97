// Package fstream moves large binary payloads between files and network
// bodies without loading them into memory and without blocking the
// goroutine that drives the outer protocol.
//
// It provides exactly two primitives built on a pull (request-n) protocol:
//
//   - [StreamFileRange]: a chunked file source. Reads run asynchronously
//     against an [AsyncReaderAt] and are issued only as fast as downstream
//     demand allows, so at most one chunk is buffered at any time.
//   - [DrainInto]: a single-chunk-in-flight sink. Each chunk is written in
//     full to an [AsyncWriter] (looping over partial writes) before the next
//     one is requested. The returned [Transfer] resolves exactly once.
//
// File and channel handles are owned by the caller; fstream never opens or
// closes them.
//
// # Download
//
//	f, _ := os.Open("clip.mp4")
//	defer f.Close()
//	seq := fstream.StreamFileRange(fstream.NewAsyncFile(f, pool), fstream.WholeFile(size), 0)
//	err := fstream.Drain(ctx, seq, fstream.NewAsyncWriter(w, pool))
//
// # Upload
//
//	out, _ := os.Create("clip.mp4")
//	err := fstream.Drain(ctx, body, fstream.NewAsyncWriterAt(out, 0, pool))
//	_ = out.Close()
//
// Storage backends that hand out such handles live in the store package.
package fstream

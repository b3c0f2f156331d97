package fstream_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/nuln/fstream"
)

func TestStreamFileRangeCompleteness(t *testing.T) {
	sizes := []int{0, 1, 10, 1000, 65537}
	chunkSizes := []int{1, 3, 7, 64, fstream.DefaultChunkSize}

	for _, size := range sizes {
		data := randomBytes(t, size)
		for _, cs := range chunkSizes {
			if size > 10000 && cs < 64 {
				continue
			}
			ranges := []fstream.ReadRange{
				fstream.WholeFile(int64(size)),
				{Offset: int64(size / 3), Length: int64(size / 2)},
				{Offset: int64(size / 2), Length: int64(size)},
			}
			for _, rng := range ranges {
				t.Run(fmt.Sprintf("size=%d/chunk=%d/%s", size, cs, rng), func(t *testing.T) {
					end := rng.End()
					if end > int64(size) {
						end = int64(size)
					}
					want := data[rng.Offset:end]

					rec := newRecorder(fstream.Unbounded)
					fstream.StreamFileRange(fstream.NewAsyncFile(bytes.NewReader(data), nil), rng, cs).Subscribe(rec)
					rec.wait(t)

					if rec.err != nil {
						t.Fatalf("OnError: %v", rec.err)
					}
					if rec.completed != 1 {
						t.Fatalf("completed = %d, want 1", rec.completed)
					}
					if got := rec.bytes(); !bytes.Equal(got, want) {
						t.Fatalf("got %d bytes, want %d", len(got), len(want))
					}
					for i, c := range rec.chunks {
						if len(c) == 0 || len(c) > cs {
							t.Fatalf("chunk %d has length %d (chunk size %d)", i, len(c), cs)
						}
					}
				})
			}
		}
	}
}

func TestStreamFileRangeOrdering(t *testing.T) {
	data := []byte("0123456789")
	src := &countingReaderAt{r: bytes.NewReader(data)}

	rec := newRecorder(fstream.Unbounded)
	fstream.StreamFileRange(fstream.NewAsyncFile(src, nil), fstream.WholeFile(10), 3).Subscribe(rec)
	rec.wait(t)

	var lens []int
	for _, c := range rec.chunks {
		lens = append(lens, len(c))
	}
	if fmt.Sprint(lens) != "[3 3 3 1]" {
		t.Fatalf("chunk lengths = %v, want [3 3 3 1]", lens)
	}
	if fmt.Sprint(src.offsets) != "[0 3 6 9]" {
		t.Fatalf("read offsets = %v, want [0 3 6 9]", src.offsets)
	}
	if string(rec.bytes()) != string(data) {
		t.Fatalf("got %q", rec.bytes())
	}
}

func TestStreamFileRangeIsLazy(t *testing.T) {
	src := &countingReaderAt{r: bytes.NewReader(make([]byte, 100))}
	seq := fstream.StreamFileRange(fstream.NewAsyncFile(src, nil), fstream.WholeFile(100), 10)

	if src.calls() != 0 {
		t.Fatal("reading before subscribe")
	}
	rec := newRecorder(0)
	seq.Subscribe(rec)
	if src.calls() != 0 {
		t.Fatal("reading before the first request")
	}
	if rec.terminated() {
		t.Fatal("terminated before the first request")
	}
}

func TestStreamFileRangeBackpressure(t *testing.T) {
	data := randomBytes(t, 100)
	src := &countingReaderAt{r: bytes.NewReader(data)}
	rec := newRecorder(0)
	fstream.StreamFileRange(fstream.NewAsyncFile(src, nil), fstream.WholeFile(100), 10).Subscribe(rec)
	sub := rec.subscription()

	sub.Request(1)
	if rec.count() != 1 || src.calls() != 1 {
		t.Fatalf("after request(1): chunks=%d reads=%d, want 1 and 1", rec.count(), src.calls())
	}

	sub.Request(2)
	if rec.count() != 3 || src.calls() != 3 {
		t.Fatalf("after request(2): chunks=%d reads=%d, want 3 and 3", rec.count(), src.calls())
	}

	for i := 0; i < 7; i++ {
		sub.Request(1)
	}
	rec.wait(t)
	if rec.count() != 10 || rec.completed != 1 {
		t.Fatalf("chunks=%d completed=%d", rec.count(), rec.completed)
	}
	if !bytes.Equal(rec.bytes(), data) {
		t.Fatal("content mismatch")
	}
}

func TestStreamFileRangeSingleReadInFlight(t *testing.T) {
	file := &manualFile{data: randomBytes(t, 50)}
	rec := newRecorder(fstream.Unbounded)
	fstream.StreamFileRange(file, fstream.WholeFile(50), 8).Subscribe(rec)

	for !rec.terminated() {
		if n := file.inFlight(); n != 1 {
			t.Fatalf("%d reads in flight, want 1", n)
		}
		file.completeOne(t)
	}
	if !bytes.Equal(rec.bytes(), file.data) {
		t.Fatal("content mismatch")
	}
	if rec.count() != 7 {
		t.Fatalf("chunks = %d, want 7", rec.count())
	}
}

func TestStreamFileRangeZeroLength(t *testing.T) {
	src := &countingReaderAt{r: bytes.NewReader(make([]byte, 10))}
	rec := newRecorder(0)
	fstream.StreamFileRange(fstream.NewAsyncFile(src, nil), fstream.ReadRange{Offset: 4, Length: 0}, 3).Subscribe(rec)

	if !rec.terminated() || rec.completed != 1 {
		t.Fatal("zero-length range should complete at subscribe time")
	}
	if rec.count() != 0 || src.calls() != 0 {
		t.Fatalf("chunks=%d reads=%d, want 0 and 0", rec.count(), src.calls())
	}
}

func TestStreamFileRangeEmptyFile(t *testing.T) {
	rec := newRecorder(1)
	fstream.StreamFileRange(fstream.NewAsyncFile(bytes.NewReader(nil), nil), fstream.ReadRange{Offset: 0, Length: 100}, 16).Subscribe(rec)
	rec.wait(t)

	if rec.err != nil || rec.completed != 1 || rec.count() != 0 {
		t.Fatalf("err=%v completed=%d chunks=%d", rec.err, rec.completed, rec.count())
	}
}

func TestStreamFileRangeTruncatesAtEOF(t *testing.T) {
	data := []byte("0123456789")
	rec := newRecorder(fstream.Unbounded)
	fstream.StreamFileRange(fstream.NewAsyncFile(bytes.NewReader(data), nil), fstream.ReadRange{Offset: 5, Length: 100}, 4).Subscribe(rec)
	rec.wait(t)

	if rec.err != nil {
		t.Fatalf("OnError: %v", rec.err)
	}
	if string(rec.bytes()) != "56789" {
		t.Fatalf("got %q, want %q", rec.bytes(), "56789")
	}

	rec = newRecorder(fstream.Unbounded)
	fstream.StreamFileRange(fstream.NewAsyncFile(bytes.NewReader(data), nil), fstream.ReadRange{Offset: 20, Length: 5}, 4).Subscribe(rec)
	rec.wait(t)
	if rec.err != nil || rec.count() != 0 {
		t.Fatalf("range past EOF: err=%v chunks=%d", rec.err, rec.count())
	}
}

type failingReaderAt struct {
	r      io.ReaderAt
	failAt int64
	err    error
}

func (f failingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.failAt {
		return 0, f.err
	}
	return f.r.ReadAt(p, off)
}

func TestStreamFileRangeReadError(t *testing.T) {
	errBoom := errors.New("boom")
	src := failingReaderAt{r: bytes.NewReader(make([]byte, 12)), failAt: 6, err: errBoom}
	rec := newRecorder(fstream.Unbounded)
	fstream.StreamFileRange(fstream.NewAsyncFile(src, nil), fstream.WholeFile(12), 3).Subscribe(rec)
	rec.wait(t)

	if rec.count() != 2 {
		t.Fatalf("chunks before the error = %d, want 2", rec.count())
	}
	if !errors.Is(rec.err, errBoom) {
		t.Fatalf("err = %v, want %v", rec.err, errBoom)
	}
	var ioErr *fstream.IOError
	if !errors.As(rec.err, &ioErr) || ioErr.Op != "read" || ioErr.Offset != 6 {
		t.Fatalf("err = %#v, want read IOError at offset 6", rec.err)
	}
	if rec.completed != 0 || rec.errored != 1 {
		t.Fatalf("completed=%d errored=%d", rec.completed, rec.errored)
	}
}

func TestStreamFileRangeNotFound(t *testing.T) {
	src := failingReaderAt{r: bytes.NewReader(nil), err: fstream.ErrNotFound}
	rec := newRecorder(1)
	fstream.StreamFileRange(fstream.NewAsyncFile(src, nil), fstream.WholeFile(10), 3).Subscribe(rec)
	rec.wait(t)

	if !fstream.IsNotFound(rec.err) {
		t.Fatalf("err = %v, want not found", rec.err)
	}
}

func TestStreamFileRangeInvalidRange(t *testing.T) {
	rec := newRecorder(0)
	fstream.StreamFileRange(fstream.NewAsyncFile(bytes.NewReader(nil), nil), fstream.ReadRange{Offset: -1, Length: 3}, 3).Subscribe(rec)
	if rec.err == nil {
		t.Fatal("expected an error for a negative offset")
	}
}

func TestStreamFileRangeCancel(t *testing.T) {
	var (
		mu      sync.Mutex
		dropped []fstream.Dropped
	)
	hook := fstream.WithDroppedHook(func(d fstream.Dropped) {
		mu.Lock()
		dropped = append(dropped, d)
		mu.Unlock()
	})

	file := &manualFile{data: randomBytes(t, 30)}
	rec := newRecorder(1)
	fstream.StreamFileRange(file, fstream.WholeFile(30), 3, hook).Subscribe(rec)
	sub := rec.subscription()

	if file.inFlight() != 1 {
		t.Fatalf("in flight = %d, want 1", file.inFlight())
	}
	sub.Cancel()
	sub.Cancel()
	file.completeOne(t)

	if rec.count() != 0 || rec.terminated() {
		t.Fatalf("signal after cancel: chunks=%d terminated=%v", rec.count(), rec.terminated())
	}
	sub.Request(5)
	if file.inFlight() != 0 {
		t.Fatal("read issued after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(dropped) != 1 || dropped[0].Signal != fstream.SignalNext || dropped[0].Bytes != 3 {
		t.Fatalf("dropped = %+v", dropped)
	}
}

func TestStreamFileRangeCancelAfterCompletion(t *testing.T) {
	rec := newRecorder(fstream.Unbounded)
	fstream.StreamFileRange(fstream.NewAsyncFile(bytes.NewReader([]byte("abc")), nil), fstream.WholeFile(3), 2).Subscribe(rec)
	rec.wait(t)

	rec.subscription().Cancel()
	rec.subscription().Cancel()
	if rec.completed != 1 || rec.errored != 0 {
		t.Fatalf("completed=%d errored=%d", rec.completed, rec.errored)
	}
}

func TestStreamFileRangeConcurrentRequests(t *testing.T) {
	const (
		chunk   = 1024
		nChunks = 256
		workers = 4
	)
	data := randomBytes(t, chunk*nChunks)
	rec := newRecorder(0)
	fstream.StreamFileRange(fstream.NewAsyncFile(bytes.NewReader(data), fstream.DefaultIOPool()), fstream.WholeFile(int64(len(data))), chunk).Subscribe(rec)
	sub := rec.subscription()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < nChunks/workers; i++ {
				sub.Request(1)
			}
		}()
	}
	wg.Wait()
	rec.wait(t)

	if rec.overlap.Load() {
		t.Fatal("OnNext was called concurrently")
	}
	if rec.err != nil {
		t.Fatalf("OnError: %v", rec.err)
	}
	if !bytes.Equal(rec.bytes(), data) {
		t.Fatal("content mismatch or reordering")
	}
}

func TestStreamFileRangeResubscribe(t *testing.T) {
	data := []byte("hello world")
	seq := fstream.StreamFileRange(fstream.NewAsyncFile(bytes.NewReader(data), nil), fstream.WholeFile(int64(len(data))), 4)
	for i := 0; i < 2; i++ {
		rec := newRecorder(fstream.Unbounded)
		seq.Subscribe(rec)
		rec.wait(t)
		if string(rec.bytes()) != string(data) {
			t.Fatalf("pass %d: got %q", i, rec.bytes())
		}
	}
}

func TestRequestNonPositivePanics(t *testing.T) {
	rec := newRecorder(0)
	fstream.StreamFileRange(fstream.NewAsyncFile(bytes.NewReader([]byte("x")), nil), fstream.WholeFile(1), 1).Subscribe(rec)

	defer func() {
		v := recover()
		if _, ok := v.(fstream.ProtocolViolation); !ok {
			t.Fatalf("recovered %v, want ProtocolViolation", v)
		}
	}()
	rec.subscription().Request(0)
}

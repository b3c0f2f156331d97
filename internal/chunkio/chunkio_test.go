package chunkio_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuln/fstream"
	"github.com/nuln/fstream/internal/chunkio"
)

func drain(t *testing.T, seq fstream.Sequence) ([]byte, error) {
	t.Helper()
	var buf bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := fstream.Drain(ctx, seq, fstream.NewAsyncWriter(&buf, nil))
	return buf.Bytes(), err
}

func TestBody(t *testing.T) {
	data := strings.Repeat("0123456789", 1000)

	tests := []struct {
		name          string
		contentLength int64
		want          string
	}{
		{"known length", int64(len(data)), data},
		{"unknown length", -1, data},
		{"shorter declared length", 25, data[:25]},
		{"empty", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := chunkio.Body(strings.NewReader(data), tt.contentLength, 333, fstream.DefaultIOPool())
			got, err := drain(t, seq)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestBodyReadError(t *testing.T) {
	errConn := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("abc"), &errReader{err: errConn})
	_, err := drain(t, chunkio.Body(r, -1, 2, nil))
	require.ErrorIs(t, err, errConn)
}

func TestBodyTruncated(t *testing.T) {
	data := strings.Repeat("x", 50)

	got, err := drain(t, chunkio.Body(strings.NewReader(data), 100, 16, nil))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, data[:48], string(got))

	r := io.MultiReader(strings.NewReader("abc"), &errReader{err: io.ErrUnexpectedEOF})
	_, err = drain(t, chunkio.Body(r, 100, 16, nil))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	got, err = drain(t, chunkio.Body(strings.NewReader(data), -1, 16, nil))
	require.NoError(t, err)
	assert.Equal(t, data, string(got))
}

type errReader struct{ err error }

type noopSubscription struct{}

func (noopSubscription) Request(int64) {}
func (noopSubscription) Cancel()       {}

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }

func TestSequentialRejectsOutOfOrderReads(t *testing.T) {
	s := chunkio.Sequential(strings.NewReader("abc"), nil)
	assert.Panics(t, func() {
		s.ReadAtAsync(make([]byte, 1), 5, func(int, error) {})
	})
}

func parts(contents ...string) (func(i int) (fstream.Sequence, error), *[]int) {
	var opened []int
	return func(i int) (fstream.Sequence, error) {
		opened = append(opened, i)
		r := strings.NewReader(contents[i])
		return fstream.StreamFileRange(fstream.NewAsyncFile(r, nil), fstream.WholeFile(int64(len(contents[i]))), 2), nil
	}, &opened
}

func TestConcat(t *testing.T) {
	open, opened := parts("hello ", "", "big ", "world")
	got, err := drain(t, chunkio.Concat(4, open))
	require.NoError(t, err)
	assert.Equal(t, "hello big world", string(got))
	assert.Equal(t, []int{0, 1, 2, 3}, *opened)
}

func TestConcatEmpty(t *testing.T) {
	got, err := drain(t, chunkio.Concat(0, nil))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConcatOpenError(t *testing.T) {
	errMissing := fmt.Errorf("b.jpg: %w", fstream.ErrNotFound)
	open, _ := parts("aa", "bb")
	seq := chunkio.Concat(3, func(i int) (fstream.Sequence, error) {
		if i == 1 {
			return nil, errMissing
		}
		return open(i)
	})
	got, err := drain(t, seq)
	require.ErrorIs(t, err, fstream.ErrNotFound)
	assert.Equal(t, "aa", string(got))
}

func TestConcatBackpressure(t *testing.T) {
	open, opened := parts("abcd", "efgh")
	var chunks []string
	var sub fstream.Subscription
	completed := false
	chunkio.Concat(2, open).Subscribe(fstream.SubscriberFuncs{
		Subscribe: func(s fstream.Subscription) { sub = s },
		Next:      func(c fstream.Chunk) { chunks = append(chunks, string(c)) },
		Complete:  func() { completed = true },
	})

	sub.Request(1)
	assert.Equal(t, []string{"ab"}, chunks)
	sub.Request(2)
	assert.Equal(t, []string{"ab", "cd", "ef"}, chunks)
	assert.Equal(t, []int{0, 1}, *opened)
	assert.False(t, completed)

	sub.Request(1)
	assert.True(t, completed)
	assert.Equal(t, []string{"ab", "cd", "ef", "gh"}, chunks)
}

func TestConcatCancel(t *testing.T) {
	open, opened := parts("abcd", "efgh")
	var chunks []string
	var sub fstream.Subscription
	chunkio.Concat(2, open).Subscribe(fstream.SubscriberFuncs{
		Subscribe: func(s fstream.Subscription) { sub = s },
		Next:      func(c fstream.Chunk) { chunks = append(chunks, string(c)) },
	})
	sub.Request(1)
	sub.Cancel()
	sub.Request(10)
	assert.Equal(t, []string{"ab"}, chunks)
	assert.Equal(t, []int{0}, *opened)
}

func TestPipeReader(t *testing.T) {
	data := bytes.Repeat([]byte("fstream!"), 50000)
	seq := fstream.StreamFileRange(fstream.NewAsyncFile(bytes.NewReader(data), fstream.DefaultIOPool()), fstream.WholeFile(int64(len(data))), 0)

	r := chunkio.PipeReader(seq, fstream.DefaultIOPool())
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, data, got)
}

func TestPipeReaderError(t *testing.T) {
	errUp := errors.New("disk gone")
	seq := fstream.SequenceFunc(func(s fstream.Subscriber) {
		s.OnSubscribe(noopSubscription{})
		s.OnError(errUp)
	})
	_, err := io.ReadAll(chunkio.PipeReader(seq, nil))
	require.ErrorIs(t, err, errUp)
}

func TestPipeReaderClose(t *testing.T) {
	data := make([]byte, 10*fstream.DefaultChunkSize)
	seq := fstream.StreamFileRange(fstream.NewAsyncFile(bytes.NewReader(data), nil), fstream.WholeFile(int64(len(data))), 0)
	r := chunkio.PipeReader(seq, nil)

	buf := make([]byte, 100)
	_, err := io.ReadFull(r, buf)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Read(buf)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestFinally(t *testing.T) {
	open, _ := parts("abcd")
	seq, err := open(0)
	require.NoError(t, err)

	calls := 0
	got, err := drain(t, chunkio.Finally(seq, func() { calls++ }))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))
	assert.Equal(t, 1, calls)
}

func TestFinallyOnErrorAndCancel(t *testing.T) {
	errUp := errors.New("boom")
	calls := 0
	failing := fstream.SequenceFunc(func(s fstream.Subscriber) {
		s.OnSubscribe(noopSubscription{})
		s.OnError(errUp)
	})
	_, err := drain(t, chunkio.Finally(failing, func() { calls++ }))
	require.ErrorIs(t, err, errUp)
	assert.Equal(t, 1, calls)

	open, _ := parts("abcd")
	seq, err := open(0)
	require.NoError(t, err)
	var sub fstream.Subscription
	chunkio.Finally(seq, func() { calls++ }).Subscribe(fstream.SubscriberFuncs{
		Subscribe: func(s fstream.Subscription) { sub = s },
	})
	sub.Cancel()
	sub.Cancel()
	assert.Equal(t, 2, calls)
}

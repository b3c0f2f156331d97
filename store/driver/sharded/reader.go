package sharded

import (
	"fmt"
	"io"
	"sort"

	"github.com/nuln/fstream/store"
)

// shardedFile implements store.File by stitching shards together. It keeps
// no cursor, so concurrent ReadAt calls are safe.
type shardedFile struct {
	engine   *Engine
	manifest *store.Manifest
	starts   []int64 // logical offset of each chunk
}

func newShardedFile(e *Engine, m *store.Manifest) *shardedFile {
	sizes := m.ChunkSizes
	if len(sizes) == 0 && len(m.Chunks) > 0 {
		// Fixed-size manifest: every chunk but the last is full.
		sizes = make([]int64, len(m.Chunks))
		for i := range sizes {
			sizes[i] = e.chunkSize
		}
		sizes[len(sizes)-1] = m.Size - int64(len(sizes)-1)*e.chunkSize
	}
	starts := make([]int64, len(sizes))
	var off int64
	for i, sz := range sizes {
		starts[i] = off
		off += sz
	}
	return &shardedFile{engine: e, manifest: &store.Manifest{
		Chunks:     m.Chunks,
		ChunkSizes: sizes,
		Size:       m.Size,
		ModTime:    m.ModTime,
	}, starts: starts}
}

func (f *shardedFile) Size() int64 { return f.manifest.Size }

func (f *shardedFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("store/sharded: negative offset %d", off)
	}
	size := f.manifest.Size
	if off >= size {
		return 0, io.EOF
	}

	// Last chunk starting at or before off.
	idx := sort.Search(len(f.starts), func(i int) bool { return f.starts[i] > off }) - 1
	total := 0
	for len(p) > 0 && off < size {
		if idx < 0 || idx >= len(f.manifest.Chunks) {
			return total, io.ErrUnexpectedEOF
		}
		inChunk := off - f.starts[idx]
		remaining := f.manifest.ChunkSizes[idx] - inChunk
		toRead := len(p)
		if int64(toRead) > remaining {
			toRead = int(remaining)
		}

		n, err := f.readShard(f.manifest.Chunks[idx], p[:toRead], inChunk)
		total += n
		off += int64(n)
		p = p[n:]
		if err != nil {
			return total, err
		}
		if n < toRead {
			return total, io.ErrUnexpectedEOF
		}
		idx++
	}
	if len(p) > 0 {
		return total, io.EOF
	}
	return total, nil
}

func (f *shardedFile) readShard(hash string, p []byte, off int64) (int, error) {
	shard, err := f.engine.shardsFs.Open(HashPath(hash))
	if err != nil {
		return 0, err
	}
	defer func() { _ = shard.Close() }()

	n, err := shard.ReadAt(p, off)
	if err == io.EOF && n == len(p) {
		err = nil
	}
	return n, err
}

func (f *shardedFile) Close() error {
	return nil
}

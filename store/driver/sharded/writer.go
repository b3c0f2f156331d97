package sharded

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/nuln/fstream/store"
)

// shardedWriter accumulates data into chunks, hashes them, and writes
// unique shards. The manifest is written on Close.
type shardedWriter struct {
	engine     *Engine
	path       string
	hashes     []string
	chunkSizes []int64
	size       int64
	buffer     []byte
	pbuf       *[]byte
	closed     bool
}

func (w *shardedWriter) Write(p []byte) (n int, err error) {
	if w.closed {
		return 0, store.ErrClosed
	}
	total := len(p)
	for len(p) > 0 {
		space := int(w.engine.chunkSize) - len(w.buffer)
		if space > len(p) {
			w.buffer = append(w.buffer, p...)
			p = nil
		} else {
			w.buffer = append(w.buffer, p[:space]...)
			if err := w.flush(); err != nil {
				return 0, err
			}
			p = p[space:]
		}
	}
	w.size += int64(total)
	return total, nil
}

func (w *shardedWriter) flush() error {
	if len(w.buffer) == 0 {
		return nil
	}

	hash := sha256.Sum256(w.buffer)
	hashStr := hex.EncodeToString(hash[:])
	shardPath := HashPath(hashStr)

	if err := w.engine.shardsFs.MkdirAll(filepath.Dir(shardPath), 0755); err != nil {
		return err
	}

	// Content-addressed: skip write if shard already exists (dedup)
	exists, _ := afero.Exists(w.engine.shardsFs, shardPath)
	if !exists {
		if err := afero.WriteFile(w.engine.shardsFs, shardPath, w.buffer, 0644); err != nil {
			return err
		}
	}

	w.hashes = append(w.hashes, hashStr)
	w.chunkSizes = append(w.chunkSizes, int64(len(w.buffer)))
	w.buffer = w.buffer[:0]
	return nil
}

func (w *shardedWriter) Close() error {
	if w.closed {
		return store.ErrClosed
	}
	w.closed = true
	defer w.release()

	if err := w.flush(); err != nil {
		return err
	}

	manifest := store.Manifest{
		Chunks:     w.hashes,
		ChunkSizes: w.chunkSizes,
		Size:       w.size,
		ModTime:    time.Now(),
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		return err
	}

	mPath := w.engine.manifestPath(w.path)
	if mkdirErr := w.engine.manifestFs.MkdirAll(filepath.Dir(mPath), 0750); mkdirErr != nil {
		return mkdirErr
	}
	return afero.WriteFile(w.engine.manifestFs, mPath, data, 0644)
}

// release returns the buffer to the pool.
func (w *shardedWriter) release() {
	if w.pbuf != nil {
		*w.pbuf = w.buffer[:cap(w.buffer)]
		w.engine.bufferPool.Put(w.pbuf)
		w.pbuf = nil
		w.buffer = nil
	}
}

// Package storetest is a conformance suite for store.Engine implementations.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/nuln/fstream"
	"github.com/nuln/fstream/store"
)

// StorageTestSuite runs a comprehensive set of tests against an Engine
// implementation. Call this in your driver tests to verify correctness:
//
//	func TestLocalStorage(t *testing.T) {
//	    engine := setupEngine(t)
//	    storetest.StorageTestSuite(t, engine)
//	}
func StorageTestSuite(t *testing.T, engine store.Engine) { //nolint:gocyclo
	t.Helper()
	ctx := context.Background()

	t.Run("Create_Open_Stat_Remove", func(t *testing.T) {
		path := "test/hello.txt"
		content := "hello world"

		write(t, engine, path, []byte(content))

		// Stat
		info, err := engine.Stat(ctx, path)
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if info.Name != "hello.txt" {
			t.Errorf("Name = %q, want %q", info.Name, "hello.txt")
		}
		if info.Size != int64(len(content)) {
			t.Errorf("Size = %d, want %d", info.Size, len(content))
		}
		if info.IsDir {
			t.Error("IsDir = true, want false")
		}

		// Open + ReadAt
		f, err := engine.Open(ctx, path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if f.Size() != int64(len(content)) {
			t.Errorf("File.Size = %d, want %d", f.Size(), len(content))
		}
		data, err := io.ReadAll(io.NewSectionReader(f, 0, f.Size()))
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if string(data) != content {
			t.Errorf("content = %q, want %q", string(data), content)
		}

		// Ranged read
		buf := make([]byte, 5)
		n, err := f.ReadAt(buf, 6)
		if n != 5 || (err != nil && !errors.Is(err, io.EOF)) {
			t.Fatalf("ReadAt(6) = %d, %v", n, err)
		}
		if string(buf) != "world" {
			t.Errorf("ReadAt(6) = %q, want %q", string(buf), "world")
		}

		// Short read at the end reports io.EOF
		buf = make([]byte, 10)
		n, err = f.ReadAt(buf, 8)
		if n != 3 || !errors.Is(err, io.EOF) {
			t.Errorf("ReadAt(8) = %d, %v; want 3, io.EOF", n, err)
		}

		// Past the end
		n, err = f.ReadAt(buf, 100)
		if n != 0 || !errors.Is(err, io.EOF) {
			t.Errorf("ReadAt(100) = %d, %v; want 0, io.EOF", n, err)
		}
		_ = f.Close()

		// Remove
		if removeErr := engine.Remove(ctx, path); removeErr != nil {
			t.Fatalf("Remove: %v", removeErr)
		}
		_, err = engine.Stat(ctx, path)
		if err == nil {
			t.Error("Stat after Remove: expected error, got nil")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := engine.Stat(ctx, "missing/nothing.bin"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Stat missing: err = %v, want ErrNotFound", err)
		}
		if _, err := engine.Open(ctx, "missing/nothing.bin"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Open missing: err = %v, want ErrNotFound", err)
		}
	})

	t.Run("MkdirAll_ReadDir", func(t *testing.T) {
		dir := "test/dirops"
		if err := engine.MkdirAll(ctx, dir); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}

		// Create files
		for _, name := range []string{"a.txt", "b.txt"} {
			write(t, engine, dir+"/"+name, []byte(name))
		}

		// ReadDir
		entries, err := engine.ReadDir(ctx, dir)
		if err != nil {
			t.Fatalf("ReadDir: %v", err)
		}
		if len(entries) != 2 {
			t.Errorf("ReadDir: got %d entries, want 2", len(entries))
		}
		for _, e := range entries {
			if e.Size != 5 {
				t.Errorf("%s: size = %d, want 5", e.Name, e.Size)
			}
		}

		// Cleanup
		_ = engine.Remove(ctx, "test")
	})

	t.Run("Rename", func(t *testing.T) {
		src := "rename_src.txt"
		dst := "renamed/rename_dst.txt"

		write(t, engine, src, []byte("data"))

		if err := engine.Rename(ctx, src, dst); err != nil {
			t.Fatalf("Rename: %v", err)
		}

		// src should not exist
		_, err := engine.Stat(ctx, src)
		if err == nil {
			t.Error("Stat src after Rename: expected error")
		}
		// dst should exist
		info, err := engine.Stat(ctx, dst)
		if err != nil {
			t.Fatalf("Stat dst: %v", err)
		}
		if info.Size != 4 {
			t.Errorf("dst size = %d, want 4", info.Size)
		}

		_ = engine.Remove(ctx, "renamed")
	})

	t.Run("Overwrite", func(t *testing.T) {
		path := "overwrite.txt"
		write(t, engine, path, []byte("a much longer first version"))
		write(t, engine, path, []byte("short"))

		if got := read(t, engine, path); string(got) != "short" {
			t.Errorf("after overwrite = %q, want %q", got, "short")
		}
		_ = engine.Remove(ctx, path)
	})

	t.Run("Walk", func(t *testing.T) {
		// Create structure
		_ = engine.MkdirAll(ctx, "walk/sub")
		write(t, engine, "walk/f1.txt", []byte("1"))
		write(t, engine, "walk/sub/f2.txt", []byte("2"))

		var files []string
		err := store.Walk(ctx, engine, "walk", func(path string, info *store.EntryInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir {
				files = append(files, info.Name)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Walk: %v", err)
		}

		if len(files) != 2 {
			t.Errorf("Walk found %d files, want 2: %v", len(files), files)
		}

		_ = engine.Remove(ctx, "walk")
	})

	t.Run("Stream", func(t *testing.T) {
		path := "stream/blob.bin"
		data := make([]byte, 3*fstream.DefaultChunkSize+123)
		rand.New(rand.NewSource(7)).Read(data)
		pool := fstream.DefaultIOPool()

		// Upload through the sink.
		w, err := engine.Create(ctx, path)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		src := fstream.StreamFileRange(fstream.NewAsyncFile(bytes.NewReader(data), pool), fstream.WholeFile(int64(len(data))), 4096)
		if err := fstream.Drain(ctx, src, fstream.NewAsyncWriter(w, pool)); err != nil {
			t.Fatalf("Drain upload: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close writer: %v", err)
		}

		f, err := engine.Open(ctx, path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer func() { _ = f.Close() }()

		ranges := []fstream.ReadRange{
			fstream.WholeFile(f.Size()),
			{Offset: 1000, Length: 70000},
			{Offset: int64(len(data)) - 10, Length: 1000},
		}
		for _, rng := range ranges {
			var out bytes.Buffer
			seq := fstream.StreamFileRange(fstream.NewAsyncFile(f, pool), rng, 0)
			if err := fstream.Drain(ctx, seq, fstream.NewAsyncWriter(&out, pool)); err != nil {
				t.Fatalf("Drain %v: %v", rng, err)
			}
			want := data[rng.Clamp(f.Size()).Offset:rng.Clamp(f.Size()).End()]
			if !bytes.Equal(out.Bytes(), want) {
				t.Errorf("range %v: got %d bytes, want %d", rng, out.Len(), len(want))
			}
		}

		_ = engine.Remove(ctx, "stream")
	})
}

func write(t *testing.T, engine store.Engine, path string, data []byte) {
	t.Helper()
	w, err := engine.Create(context.Background(), path)
	if err != nil {
		t.Fatalf("Create %s: %v", path, err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write %s: %v", path, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close %s: %v", path, err)
	}
}

func read(t *testing.T, engine store.Engine, path string) []byte {
	t.Helper()
	f, err := engine.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(io.NewSectionReader(f, 0, f.Size()))
	if err != nil {
		t.Fatalf("Read %s: %v", path, err)
	}
	return data
}

// Package local implements a storage engine on the local filesystem (or any
// afero.Fs).
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/nuln/fstream/store"
)

// Auto-register local storage driver.
func init() {
	store.Register("local", func(cfg *store.Config) (store.Engine, error) {
		return New(cfg.BasePath)
	})
}

// Engine implements store.Engine for the local filesystem.
type Engine struct {
	fs   afero.Fs
	root string
}

// New creates a new local storage Engine with the given root directory.
func New(root string) (*Engine, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0750); err != nil {
		return nil, err
	}
	return &Engine{
		fs:   afero.NewBasePathFs(afero.NewOsFs(), absRoot),
		root: absRoot,
	}, nil
}

// NewWithFs creates a local Engine backed by a custom afero.Fs.
// This is useful for testing with afero.MemMapFs.
func NewWithFs(fs afero.Fs) *Engine {
	return &Engine{fs: fs, root: "."}
}

// Root returns the absolute root directory, or "." for a custom fs.
func (e *Engine) Root() string { return e.root }

func (e *Engine) Stat(ctx context.Context, path string) (*store.EntryInfo, error) {
	info, err := e.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	return store.FromFileInfo(path, info), nil
}

func (e *Engine) Open(ctx context.Context, path string) (store.File, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, store.ErrIsDir
	}
	return &file{f: f, size: info.Size()}, nil
}

func (e *Engine) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	if err := e.fs.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	return e.fs.Create(path)
}

func (e *Engine) Remove(ctx context.Context, path string) error {
	if _, err := e.fs.Stat(path); err != nil {
		return err
	}
	return e.fs.RemoveAll(path)
}

func (e *Engine) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := e.fs.MkdirAll(filepath.Dir(newPath), 0750); err != nil {
		return err
	}
	return e.fs.Rename(oldPath, newPath)
}

func (e *Engine) MkdirAll(ctx context.Context, path string) error {
	return e.fs.MkdirAll(path, 0750)
}

func (e *Engine) ReadDir(ctx context.Context, path string) ([]*store.EntryInfo, error) {
	infos, err := afero.ReadDir(e.fs, path)
	if err != nil {
		return nil, err
	}

	result := make([]*store.EntryInfo, 0, len(infos))
	for _, info := range infos {
		result = append(result, store.FromFileInfo(filepath.Join(path, info.Name()), info))
	}
	return result, nil
}

// file adapts an afero.File to store.File. Not every afero.File supports
// concurrent ReadAt (mem files move a shared cursor), so reads are
// serialized.
type file struct {
	mu   sync.Mutex
	f    afero.File
	size int64
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.size {
		return 0, io.EOF
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.f.ReadAt(p, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (f *file) Size() int64 { return f.size }

func (f *file) Close() error { return f.f.Close() }

// Compile-time interface checks.
var (
	_ store.Engine = (*Engine)(nil)
	_ store.File   = (*file)(nil)
)

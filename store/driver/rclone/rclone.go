// Package rclone implements a storage engine on any rclone remote.
package rclone

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/operations"
	rcloneWalk "github.com/rclone/rclone/fs/walk"

	"github.com/nuln/fstream/store"
)

// Auto-register rclone storage driver.
func init() {
	store.Register("rclone", func(cfg *store.Config) (store.Engine, error) {
		remote := cfg.String("remote", cfg.BasePath)
		if remote == "" {
			return nil, fmt.Errorf("store/rclone: remote path is required (set Options[\"remote\"] or BasePath)")
		}
		return New(remote)
	})
}

// Engine implements store.Engine using rclone's fs.Fs.
type Engine struct {
	remote fs.Fs
}

// New creates a new rclone Engine from a remote path (e.g., "gdrive:backup").
func New(remotePath string) (*Engine, error) {
	remote, err := fs.NewFs(context.Background(), remotePath)
	if err != nil {
		return nil, err
	}
	return &Engine{remote: remote}, nil
}

// remotePath maps a logical path to an rclone remote name.
func remotePath(p string) string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "." {
		return ""
	}
	return p
}

func (e *Engine) Stat(ctx context.Context, p string) (*store.EntryInfo, error) {
	rp := remotePath(p)
	if rp == "" {
		return &store.EntryInfo{Name: "/", Path: p, IsDir: true}, nil
	}
	obj, err := e.remote.NewObject(ctx, rp)
	if err != nil {
		// Might be a directory
		entries, errDir := e.remote.List(ctx, rp)
		if errDir == nil && len(entries) > 0 {
			return &store.EntryInfo{
				Name:  path.Base(rp),
				Path:  p,
				IsDir: true,
			}, nil
		}
		return nil, convertError(err)
	}

	return &store.EntryInfo{
		Name:    path.Base(obj.Remote()),
		Path:    p,
		Size:    obj.Size(),
		ModTime: obj.ModTime(ctx),
	}, nil
}

// Open returns a File whose every ReadAt is a ranged open of the object, so
// nothing is downloaded up front.
func (e *Engine) Open(ctx context.Context, p string) (store.File, error) {
	obj, err := e.remote.NewObject(ctx, remotePath(p))
	if err != nil {
		return nil, convertError(err)
	}
	return &objectFile{ctx: ctx, obj: obj, size: obj.Size()}, nil
}

// objectFile implements store.File over an fs.Object.
type objectFile struct {
	ctx  context.Context
	obj  fs.Object
	size int64
}

func (f *objectFile) Size() int64 { return f.size }

func (f *objectFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("store/rclone: negative offset %d", off)
	}
	if off >= f.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	end := off + int64(len(p)) - 1
	if end >= f.size {
		end = f.size - 1
	}

	rc, err := f.obj.Open(f.ctx, &fs.RangeOption{Start: off, End: end})
	if err != nil {
		return 0, convertError(err)
	}
	defer func() { _ = rc.Close() }()

	n, err := io.ReadFull(rc, p[:end-off+1])
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return n, io.EOF
		}
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *objectFile) Close() error { return nil }

// Create streams the written bytes to the remote through a pipe; the object
// is committed when Close returns nil.
func (e *Engine) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	w := &rcloneWriter{pw: pw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		_, w.err = operations.Rcat(ctx, e.remote, remotePath(p), pr, time.Now(), nil)
		// Unblock the writer if the upload gave up early.
		_ = pr.CloseWithError(w.err)
	}()
	return w, nil
}

// rcloneWriter implements io.WriteCloser for rclone.
type rcloneWriter struct {
	pw     *io.PipeWriter
	done   chan struct{}
	err    error
	closed bool
}

func (w *rcloneWriter) Write(p []byte) (n int, err error) {
	if w.closed {
		return 0, store.ErrClosed
	}
	return w.pw.Write(p)
}

func (w *rcloneWriter) Close() error {
	if w.closed {
		return store.ErrClosed
	}
	w.closed = true
	_ = w.pw.Close()
	<-w.done
	return w.err
}

func (e *Engine) Remove(ctx context.Context, p string) error {
	rp := remotePath(p)
	obj, err := e.remote.NewObject(ctx, rp)
	if err != nil {
		// Try as directory
		return convertError(operations.Purge(ctx, e.remote, rp))
	}
	return obj.Remove(ctx)
}

func (e *Engine) Rename(ctx context.Context, oldPath, newPath string) error {
	return convertError(operations.MoveFile(ctx, e.remote, e.remote, remotePath(newPath), remotePath(oldPath)))
}

func (e *Engine) MkdirAll(ctx context.Context, p string) error {
	return e.remote.Mkdir(ctx, remotePath(p))
}

func (e *Engine) ReadDir(ctx context.Context, dirPath string) ([]*store.EntryInfo, error) {
	entries, err := e.remote.List(ctx, remotePath(dirPath))
	if err != nil {
		return nil, convertError(err)
	}

	result := make([]*store.EntryInfo, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entryInfo(ctx, entry, path.Join(dirPath, path.Base(entry.Remote()))))
	}
	return result, nil
}

// Walk performs a native rclone walk, which is more efficient than the
// generic listing walk for remote backends. store.Walk uses it
// automatically. The root itself is not reported.
func (e *Engine) Walk(ctx context.Context, root string, fn store.WalkFunc) error {
	var skipped []string
	isSkipped := func(p string) bool {
		for _, s := range skipped {
			if p == s || strings.HasPrefix(p, s+"/") {
				return true
			}
		}
		return false
	}

	err := rcloneWalk.Walk(ctx, e.remote, remotePath(root), true, -1, func(dir string, entries fs.DirEntries, err error) error {
		if isSkipped(dir) {
			return nil
		}
		if err != nil {
			return fn(dir, nil, convertError(err))
		}
		for _, entry := range entries {
			info := entryInfo(ctx, entry, entry.Remote())
			if err := fn(info.Path, info, nil); err != nil {
				if info.IsDir && errors.Is(err, iofs.SkipDir) {
					skipped = append(skipped, info.Path)
					continue
				}
				return err
			}
		}
		return nil
	})
	if errors.Is(err, iofs.SkipDir) {
		return nil
	}
	return convertError(err)
}

func entryInfo(ctx context.Context, entry fs.DirEntry, p string) *store.EntryInfo {
	info := &store.EntryInfo{
		Name: path.Base(entry.Remote()),
		Path: p,
	}
	if obj, ok := entry.(fs.Object); ok {
		info.Size = obj.Size()
		info.ModTime = obj.ModTime(ctx)
	} else {
		info.IsDir = true
		info.ModTime = entry.ModTime(ctx)
	}
	return info
}

// Helpers

func convertError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrorObjectNotFound) || errors.Is(err, fs.ErrorDirNotFound) {
		return os.ErrNotExist
	}
	return err
}

// Compile-time interface checks.
var (
	_ store.Engine = (*Engine)(nil)
	_ store.Walker = (*Engine)(nil)
	_ store.File   = (*objectFile)(nil)
)

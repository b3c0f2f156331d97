// Package sharded implements a content-addressed storage engine. Files are
// split into fixed-size shards named by their SHA-256; a JSON manifest per
// logical path lists the shards in order. Identical shards are stored once.
package sharded

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/nuln/fstream/store"
)

// DefaultChunkSize is the default shard size (4MB).
const DefaultChunkSize = 4 * 1024 * 1024

// Auto-register sharded storage driver.
func init() {
	store.Register("sharded", func(cfg *store.Config) (store.Engine, error) {
		chunkSize := int64(cfg.Int("chunkSize", DefaultChunkSize))

		basePath := cfg.BasePath
		if basePath == "" {
			basePath = "./data"
		}
		manifestPath := cfg.String("manifestDir", filepath.Join(basePath, "manifest"))
		shardsPath := cfg.String("shardsDir", filepath.Join(basePath, "shards"))

		// Ensure directories exist
		if err := os.MkdirAll(manifestPath, 0750); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(shardsPath, 0750); err != nil {
			return nil, err
		}

		manifestFs := afero.NewBasePathFs(afero.NewOsFs(), manifestPath)
		shardsFs := afero.NewBasePathFs(afero.NewOsFs(), shardsPath)

		return New(manifestFs, shardsFs, chunkSize), nil
	})
}

// Engine implements store.Engine using content-addressed chunked storage.
type Engine struct {
	manifestFs afero.Fs
	shardsFs   afero.Fs
	chunkSize  int64
	bufferPool *sync.Pool
}

// New creates a new sharded Engine.
// manifestFs stores manifest JSON files (mirroring logical paths),
// shardsFs stores chunk blobs (content-addressed via HashPath).
// They can share the same filesystem or be separate (e.g., for cross-user dedup).
func New(manifestFs, shardsFs afero.Fs, chunkSize int64) *Engine {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	e := &Engine{
		manifestFs: manifestFs,
		shardsFs:   shardsFs,
		chunkSize:  chunkSize,
	}
	e.bufferPool = &sync.Pool{
		New: func() interface{} {
			b := make([]byte, e.chunkSize)
			return &b
		},
	}
	return e
}

// cleanPath normalizes a logical path for manifest storage.
func cleanPath(p string) string {
	clean := filepath.Clean(p)
	clean = filepath.ToSlash(clean)
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return ""
	}
	return clean
}

// manifestPath returns the manifest file path that mirrors the logical path.
// e.g. "test/hello.txt" → "manifests/test/hello.txt.json"
func (e *Engine) manifestPath(path string) string {
	p := cleanPath(path)
	if p == "" {
		return "manifests"
	}
	return filepath.Join("manifests", p+".json")
}

// manifestDirPath returns the manifest directory path that mirrors the logical path.
// e.g. "test/dirops" → "manifests/test/dirops"
func (e *Engine) manifestDirPath(path string) string {
	p := cleanPath(path)
	if p == "" {
		return "manifests"
	}
	return filepath.Join("manifests", p)
}

func (e *Engine) loadManifest(mPath string) (*store.Manifest, error) {
	data, err := afero.ReadFile(e.manifestFs, mPath)
	if err != nil {
		return nil, err
	}
	var m store.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Stat returns information about a logical file or directory.
func (e *Engine) Stat(ctx context.Context, path string) (*store.EntryInfo, error) {
	p := cleanPath(path)
	if p == "" {
		return &store.EntryInfo{
			Name:  "/",
			IsDir: true,
			Path:  path,
		}, nil
	}

	// Try as file (load manifest)
	if m, err := e.loadManifest(e.manifestPath(path)); err == nil {
		return &store.EntryInfo{
			Name:    filepath.Base(p),
			Size:    m.Size,
			ModTime: m.ModTime,
			Path:    path,
		}, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// Try as directory
	info, err := e.manifestFs.Stat(e.manifestDirPath(path))
	if err == nil && info.IsDir() {
		return &store.EntryInfo{
			Name:    filepath.Base(p),
			ModTime: info.ModTime(),
			IsDir:   true,
			Path:    path,
		}, nil
	}

	return nil, os.ErrNotExist
}

// Open returns a File that transparently stitches shards together.
func (e *Engine) Open(ctx context.Context, path string) (store.File, error) {
	m, err := e.loadManifest(e.manifestPath(path))
	if err != nil {
		return nil, err
	}
	return newShardedFile(e, m), nil
}

// Create creates or overwrites a file for writing. The manifest is only
// replaced on Close, so readers see the previous version until then.
func (e *Engine) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	var buf []byte
	var pb *[]byte
	if pbi, ok := e.bufferPool.Get().(*[]byte); ok && pbi != nil {
		pb = pbi
		buf = (*pb)[:0]
	} else {
		buf = make([]byte, e.chunkSize)[:0]
	}

	if err := e.manifestFs.MkdirAll(filepath.Dir(e.manifestPath(path)), 0755); err != nil {
		return nil, err
	}
	return &shardedWriter{
		engine: e,
		path:   path,
		buffer: buf,
		pbuf:   pb,
	}, nil
}

// Remove deletes a file or directory.
func (e *Engine) Remove(ctx context.Context, path string) error {
	mPath := e.manifestPath(path)
	exists, _ := afero.Exists(e.manifestFs, mPath)
	if exists {
		// Only remove the manifest. Shards are content-addressed and may be
		// shared; Prune collects the orphans.
		return e.manifestFs.Remove(mPath)
	}
	mDir := e.manifestDirPath(path)
	if ok, _ := afero.DirExists(e.manifestFs, mDir); !ok {
		return os.ErrNotExist
	}
	return e.manifestFs.RemoveAll(mDir)
}

// Rename moves or renames a file or directory.
func (e *Engine) Rename(ctx context.Context, oldPath, newPath string) error {
	oldM := e.manifestPath(oldPath)
	newM := e.manifestPath(newPath)

	exists, _ := afero.Exists(e.manifestFs, oldM)
	if exists {
		if err := e.manifestFs.MkdirAll(filepath.Dir(newM), 0755); err != nil {
			return err
		}
		return e.manifestFs.Rename(oldM, newM)
	}

	oldD := e.manifestDirPath(oldPath)
	newD := e.manifestDirPath(newPath)
	if err := e.manifestFs.MkdirAll(filepath.Dir(newD), 0755); err != nil {
		return err
	}
	return e.manifestFs.Rename(oldD, newD)
}

// MkdirAll creates a directory (mirrored in manifest filesystem).
func (e *Engine) MkdirAll(ctx context.Context, path string) error {
	return e.manifestFs.MkdirAll(e.manifestDirPath(path), 0755)
}

// ReadDir returns the contents of a directory.
func (e *Engine) ReadDir(ctx context.Context, path string) ([]*store.EntryInfo, error) {
	mDir := e.manifestDirPath(path)
	entries, err := afero.ReadDir(e.manifestFs, mDir)
	if err != nil {
		if os.IsNotExist(err) {
			if cleanPath(path) == "" {
				return []*store.EntryInfo{}, nil
			}
			return nil, os.ErrNotExist
		}
		return nil, err
	}

	result := make([]*store.EntryInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			result = append(result, &store.EntryInfo{
				Name:    name,
				ModTime: entry.ModTime(),
				IsDir:   true,
				Path:    filepath.Join(path, name),
			})
		} else if strings.HasSuffix(name, ".json") {
			logicalName := strings.TrimSuffix(name, ".json")
			var size int64
			var modTime time.Time
			if m, err := e.loadManifest(filepath.Join(mDir, name)); err == nil {
				size = m.Size
				modTime = m.ModTime
			}
			result = append(result, &store.EntryInfo{
				Name:    logicalName,
				Size:    size,
				ModTime: modTime,
				Path:    filepath.Join(path, logicalName),
			})
		}
	}
	return result, nil
}

// Prune deletes shards that no manifest references and returns how many
// were removed.
func (e *Engine) Prune(ctx context.Context) (int, error) {
	live := make(map[string]bool)
	err := afero.Walk(e.manifestFs, "manifests", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		m, err := e.loadManifest(path)
		if err != nil {
			return err
		}
		for _, h := range m.Chunks {
			live[h] = true
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var orphans []string
	err = afero.Walk(e.shardsFs, ".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.IsDir() && !live[info.Name()] {
			orphans = append(orphans, path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, p := range orphans {
		if err := e.shardsFs.Remove(p); err != nil {
			return 0, err
		}
	}
	return len(orphans), nil
}

// Compile-time interface checks.
var _ store.Engine = (*Engine)(nil)

package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/nuln/fstream"
	"github.com/nuln/fstream/store"
)

// Service stores and serves media files on a storage engine.
type Service struct {
	engine    store.Engine
	logger    log.Logger
	pool      *fstream.IOPool
	chunkSize int

	mu    sync.Mutex
	infos map[string]string
}

// Option configures a Service.
type Option func(*Service)

// WithIOPool runs file I/O on pool instead of the shared default pool.
func WithIOPool(pool *fstream.IOPool) Option {
	return func(s *Service) { s.pool = pool }
}

// WithChunkSize sets the download chunk size.
func WithChunkSize(n int) Option {
	return func(s *Service) { s.chunkSize = n }
}

// New returns a Service on engine. Call Init before first use.
func New(engine store.Engine, logger log.Logger, opts ...Option) *Service {
	s := &Service{
		engine:    engine,
		logger:    logger,
		pool:      fstream.DefaultIOPool(),
		chunkSize: fstream.DefaultChunkSize,
		infos:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the underlying storage engine.
func (s *Service) Engine() store.Engine { return s.engine }

// Init creates the directory tree of every media kind.
func (s *Service) Init(ctx context.Context) error {
	for _, k := range Kinds {
		for _, dir := range []string{k.Dir, path.Join(k.Dir, thumbsDir), path.Join(k.Dir, metaDir)} {
			if err := s.engine.MkdirAll(ctx, dir); err != nil {
				return fmt.Errorf("media: create %s: %w", dir, err)
			}
		}
	}
	return nil
}

// Store drains body into kind/name. The content lands under a hidden
// temporary name first and is renamed into place once fully written, so a
// failed or cancelled upload never replaces an existing file.
// contentLength is only compared against the stored size; pass -1 when it
// is unknown.
func (s *Service) Store(ctx context.Context, kind Kind, name string, body fstream.Sequence, contentLength int64) (*FileInfo, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	dst := kind.file(name)
	tmp := kind.file(".upload-" + uuid.NewString())

	w, err := s.engine.Create(ctx, tmp)
	if err != nil {
		s.logger.Warnf("Cannot open %s for writing: %s", dst, err)
		return nil, fmt.Errorf("media: create %s: %w", dst, err)
	}
	err = fstream.Drain(ctx, body, fstream.NewAsyncWriter(w, s.pool))
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := s.engine.Remove(context.WithoutCancel(ctx), tmp); rerr != nil && !errors.Is(rerr, store.ErrNotFound) {
			s.logger.Warnf("Cannot remove partial upload %s: %s", tmp, rerr)
		}
		return nil, fmt.Errorf("media: store %s: %w", dst, err)
	}
	if err := s.engine.Rename(ctx, tmp, dst); err != nil {
		return nil, fmt.Errorf("media: store %s: %w", dst, err)
	}

	e, err := s.engine.Stat(ctx, dst)
	if err != nil {
		return nil, fmt.Errorf("media: stat %s: %w", dst, err)
	}
	s.forget(kind, name)
	s.logger.Infof("File %s with %s written.", dst, units.HumanSizeWithPrecision(float64(e.Size), 3))
	if contentLength > 0 && contentLength != e.Size {
		s.logger.Warnf("Content length and file length mismatch %d != %d!", contentLength, e.Size)
	}
	info := newFileInfo(e)
	info.FileName = name
	return info, nil
}

// Download is an opened media file. Close releases the file.
type Download struct {
	Info *FileInfo
	File store.File
}

func (d *Download) Close() error { return d.File.Close() }

// Open opens kind/name for reading.
func (s *Service) Open(ctx context.Context, kind Kind, name string) (*Download, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return s.open(ctx, kind.file(name))
}

// OpenThumb opens a thumbnail of kind by its own file name.
func (s *Service) OpenThumb(ctx context.Context, kind Kind, name string) (*Download, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return s.open(ctx, kind.thumb(name))
}

// OpenMeta opens a metadata file of kind by its own file name.
func (s *Service) OpenMeta(ctx context.Context, kind Kind, name string) (*Download, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return s.open(ctx, kind.meta(name))
}

func (s *Service) open(ctx context.Context, p string) (*Download, error) {
	e, err := s.engine.Stat(ctx, p)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warnf("File %s does not exist!", p)
		}
		return nil, fmt.Errorf("media: open %s: %w", p, err)
	}
	if e.IsDir {
		return nil, fmt.Errorf("media: open %s: %w", p, store.ErrIsDir)
	}
	f, err := s.engine.Open(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("media: open %s: %w", p, err)
	}
	info := newFileInfo(e)
	info.SizeInBytes = f.Size()
	return &Download{Info: info, File: f}, nil
}

// Stream returns the bytes of rng, clamped to the file size, as a sequence.
func (s *Service) Stream(d *Download, rng fstream.ReadRange, opts ...fstream.Option) fstream.Sequence {
	return fstream.StreamFileRange(fstream.NewAsyncFile(d.File, s.pool), rng.Clamp(d.File.Size()), s.chunkSize, opts...)
}

// Rename moves kind/name to kind/newName together with its thumbnail.
func (s *Service) Rename(ctx context.Context, kind Kind, name, newName string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := checkName(newName); err != nil {
		return err
	}
	oldPath, newPath := kind.file(name), kind.file(newName)
	s.logger.Infof("Rename %s to %s", oldPath, newPath)
	if err := s.engine.Rename(ctx, oldPath, newPath); err != nil {
		s.logger.Errorf("Failed to rename %s to %s: %s", oldPath, newPath, err)
		return fmt.Errorf("media: rename %s: %w", oldPath, err)
	}
	s.forget(kind, name)

	oldThumb, newThumb := kind.thumb(ThumbName(name)), kind.thumb(ThumbName(newName))
	if _, err := s.engine.Stat(ctx, oldThumb); err == nil {
		if err := s.engine.Rename(ctx, oldThumb, newThumb); err != nil {
			return fmt.Errorf("media: rename %s: %w", oldThumb, err)
		}
	}
	return nil
}

// Delete removes kind/name. Failing to remove the thumbnail is logged and
// otherwise ignored.
func (s *Service) Delete(ctx context.Context, kind Kind, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	p := kind.file(name)
	s.logger.Infof("Delete %s", p)
	if err := s.engine.Remove(ctx, p); err != nil {
		s.logger.Errorf("Failed to delete %s: %s", p, err)
		return fmt.Errorf("media: delete %s: %w", p, err)
	}
	s.forget(kind, name)

	thumb := kind.thumb(ThumbName(name))
	if err := s.engine.Remove(ctx, thumb); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Errorf("Failed to delete thumbnail %s. Error ignored: %s", thumb, err)
	}
	return nil
}

// Stat returns the listing record of kind/name without opening it.
func (s *Service) Stat(ctx context.Context, kind Kind, name string) (*FileInfo, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	e, err := s.engine.Stat(ctx, kind.file(name))
	if err != nil {
		return nil, fmt.Errorf("media: stat %s: %w", kind.file(name), err)
	}
	if e.IsDir {
		return nil, fmt.Errorf("media: stat %s: %w", kind.file(name), store.ErrIsDir)
	}
	return newFileInfo(e), nil
}

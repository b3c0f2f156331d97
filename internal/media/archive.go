package media

import (
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"

	"github.com/nuln/fstream"
	"github.com/nuln/fstream/internal/chunkio"
)

// ConcatDownload returns the plain concatenation of the named files of
// kind. Each file is opened only when the previous one has been fully
// emitted, and closed once it terminates.
func (s *Service) ConcatDownload(ctx context.Context, kind Kind, names []string) (fstream.Sequence, error) {
	for _, name := range names {
		if err := checkName(name); err != nil {
			return nil, err
		}
	}
	return chunkio.Concat(len(names), func(i int) (fstream.Sequence, error) {
		d, err := s.Open(ctx, kind, names[i])
		if err != nil {
			return nil, err
		}
		seq := s.Stream(d, fstream.WholeFile(d.File.Size()))
		return chunkio.Finally(seq, func() { _ = d.Close() }), nil
	}), nil
}

// ZipDownload writes the named files of kind to w as a zip archive. Entries
// are stored uncompressed since media payloads are already compressed.
func (s *Service) ZipDownload(ctx context.Context, kind Kind, names []string, w io.Writer) error {
	for _, name := range names {
		if err := checkName(name); err != nil {
			return err
		}
	}
	zw := zip.NewWriter(w)
	for _, name := range names {
		if err := s.zipEntry(ctx, zw, kind, name); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("media: zip: %w", err)
	}
	return nil
}

func (s *Service) zipEntry(ctx context.Context, zw *zip.Writer, kind Kind, name string) error {
	d, err := s.Open(ctx, kind, name)
	if err != nil {
		return err
	}
	defer d.Close()

	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: d.Info.LastModified,
	}
	hdr.UncompressedSize64 = uint64(d.File.Size())
	ew, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("media: zip %s: %w", name, err)
	}
	// The zip writer is not safe for concurrent use, so writes run inline.
	if err := fstream.Drain(ctx, s.Stream(d, fstream.WholeFile(d.File.Size())), fstream.NewAsyncWriter(ew, nil)); err != nil {
		return fmt.Errorf("media: zip %s: %w", name, err)
	}
	return nil
}

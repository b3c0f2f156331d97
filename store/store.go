// Package store is the storage abstraction behind fstream. It defines the
// [Engine] interface that backends implement and a registry that opens a
// backend by name.
//
// # Supported Drivers
//
//   - local: local filesystem via afero (import _ "github.com/nuln/fstream/store/driver/local")
//   - sharded: content-addressed chunked storage (import _ "github.com/nuln/fstream/store/driver/sharded")
//   - rclone: any rclone-supported remote (import _ "github.com/nuln/fstream/store/driver/rclone")
//   - s3: Amazon S3 and compatible services (import _ "github.com/nuln/fstream/store/driver/s3")
//
// # Quick Start
//
//	import (
//	    "github.com/nuln/fstream/store"
//	    _ "github.com/nuln/fstream/store/driver/local"
//	)
//
//	engine, err := store.Open(&store.Config{Type: "local", BasePath: "./data"})
//	f, err := engine.Open(ctx, "videos/clip.mp4")
//	seq := fstream.StreamFileRange(fstream.NewAsyncFile(f, pool), fstream.WholeFile(f.Size()), 0)
//
// # Import All Drivers
//
//	import _ "github.com/nuln/fstream/store/drivers"
package store

import (
	"context"
	"io"
)

// Engine defines the unified interface for all storage backends.
// All driver implementations must satisfy this interface.
type Engine interface {
	// Stat returns metadata about a file or directory.
	Stat(ctx context.Context, path string) (*EntryInfo, error)

	// Open opens a file for random-access reading. The returned File can be
	// handed to fstream.NewAsyncFile to stream any byte range of it.
	Open(ctx context.Context, path string) (File, error)

	// Create creates or overwrites a file for writing. Data is only
	// guaranteed to be visible once Close has returned nil.
	Create(ctx context.Context, path string) (io.WriteCloser, error)

	// Remove deletes a file or directory (and all children).
	Remove(ctx context.Context, path string) error

	// Rename moves or renames a file or directory.
	Rename(ctx context.Context, oldPath, newPath string) error

	// MkdirAll creates a directory and all necessary parents.
	MkdirAll(ctx context.Context, path string) error

	// ReadDir returns the contents of a directory.
	ReadDir(ctx context.Context, path string) ([]*EntryInfo, error)
}

// File is an open file. ReadAt is safe for concurrent use and returns
// io.EOF when a read ends at or past Size.
type File interface {
	io.ReaderAt
	io.Closer

	// Size is the length of the file when it was opened.
	Size() int64
}

package store

import (
	"context"
	"errors"
	"io/fs"
)

// WalkFunc is the callback for Walk. It is called for each file or directory
// visited. If it returns fs.SkipDir for a directory, Walk skips that
// directory's contents.
type WalkFunc func(path string, info *EntryInfo, err error) error

// Walker is implemented by engines that can walk a tree natively, usually
// with fewer round trips than listing every directory.
type Walker interface {
	Walk(ctx context.Context, root string, fn WalkFunc) error
}

// Walk walks the file tree rooted at root, calling fn for each file or
// directory in the tree, including root. It works with any Engine and stops
// early once ctx is done. Engines implementing Walker walk natively and may
// not report root itself.
func Walk(ctx context.Context, engine Engine, root string, fn WalkFunc) error {
	if w, ok := engine.(Walker); ok {
		return w.Walk(ctx, root, fn)
	}
	info, err := engine.Stat(ctx, root)
	if err != nil {
		err = fn(root, nil, err)
	} else {
		err = walkDir(ctx, engine, root, info, fn)
	}
	if errors.Is(err, fs.SkipDir) {
		return nil
	}
	return err
}

func walkDir(ctx context.Context, engine Engine, path string, info *EntryInfo, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !info.IsDir {
		return fn(path, info, nil)
	}

	if err := fn(path, info, nil); err != nil {
		if errors.Is(err, fs.SkipDir) {
			return nil
		}
		return err
	}

	entries, err := engine.ReadDir(ctx, path)
	if err != nil {
		if err = fn(path, nil, err); err != nil {
			if errors.Is(err, fs.SkipDir) {
				return nil
			}
			return err
		}
	}

	for _, entry := range entries {
		if err := walkDir(ctx, engine, entry.Path, entry, fn); err != nil {
			return err
		}
	}
	return nil
}

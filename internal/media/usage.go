package media

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/docker/go-units"

	"github.com/nuln/fstream/store"
)

// Usage walks every media tree and reports its file counts and sizes.
func (s *Service) Usage(ctx context.Context) ([]Usage, error) {
	out := make([]Usage, 0, len(Kinds))
	for _, k := range Kinds {
		u := Usage{Media: k.Name}
		thumbs := path.Join(k.Dir, thumbsDir)
		err := store.Walk(ctx, s.engine, k.Dir, func(p string, info *store.EntryInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir {
				if p != k.Dir && p != thumbs && strings.HasPrefix(info.Name, ".") {
					return fs.SkipDir
				}
				return nil
			}
			switch {
			case strings.HasPrefix(info.Name, "."):
			case path.Dir(p) == thumbs:
				u.Thumbs++
				u.ThumbBytes += info.Size
			case path.Dir(p) == k.Dir:
				u.Files++
				u.Bytes += info.Size
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("media: usage %s: %w", k, err)
		}
		u.HumanTotal = units.HumanSizeWithPrecision(float64(u.Bytes+u.ThumbBytes), 3)
		out = append(out, u)
	}
	return out, nil
}

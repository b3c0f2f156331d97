package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nuln/fstream/store"
)

// List returns the files of kind selected, ordered and paged by q.
func (s *Service) List(ctx context.Context, kind Kind, q Query) ([]*FileInfo, error) {
	files, err := s.scan(ctx, kind, q)
	if err != nil {
		return nil, err
	}
	// Infos only needs resolving for every file when it is the sort key.
	byInfos := q.Order.Attribute == "infos"
	if byInfos {
		s.resolveInfos(ctx, kind, files)
	}
	if err := sortFiles(files, q.Order); err != nil {
		return nil, err
	}
	files = q.page(files)
	if !byInfos {
		s.resolveInfos(ctx, kind, files)
	}
	return files, nil
}

// Count returns the number of files List would return for q.
func (s *Service) Count(ctx context.Context, kind Kind, q Query) (int, error) {
	files, err := s.scan(ctx, kind, q)
	if err != nil {
		return 0, err
	}
	n := len(q.page(files))
	s.logger.Debugf("Count %s prefix=%q pattern=%q = %d", kind, q.PrefixFilter, q.Pattern, n)
	return n, nil
}

func (s *Service) scan(ctx context.Context, kind Kind, q Query) ([]*FileInfo, error) {
	if q.Offset < 0 || q.Limit < 0 {
		return nil, fmt.Errorf("%w: negative offset or limit", ErrInvalidQuery)
	}
	if _, err := q.Order.compare(); err != nil {
		return nil, err
	}

	entries, err := s.engine.ReadDir(ctx, kind.Dir)
	if err != nil {
		return nil, fmt.Errorf("media: list %s: %w", kind, err)
	}
	files := make([]*FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir || strings.HasPrefix(e.Name, ".") {
			continue
		}
		if !strings.HasPrefix(e.Name, q.PrefixFilter) {
			continue
		}
		if q.Pattern != "" {
			ok, err := doublestar.Match(q.Pattern, e.Name)
			if err != nil {
				return nil, fmt.Errorf("%w: pattern %q: %w", ErrInvalidQuery, q.Pattern, err)
			}
			if !ok {
				continue
			}
		}
		files = append(files, newFileInfo(e))
	}
	return files, nil
}

// VideoMeta is the content of a video's metadata file.
type VideoMeta struct {
	VideoCodec      string `json:"videoCodec"`
	AudioCodec      string `json:"audioCodec"`
	DurationSeconds int    `json:"durationSeconds"`
	Resolution      string `json:"resolution"`
	FramesPerSecond int    `json:"framesPerSecond"`
}

func (m VideoMeta) String() string {
	return fmt.Sprintf("%s %ds %dfps %s/%s", m.Resolution, m.DurationSeconds, m.FramesPerSecond, m.VideoCodec, m.AudioCodec)
}

func (s *Service) resolveInfos(ctx context.Context, kind Kind, files []*FileInfo) {
	for _, f := range files {
		key := kind.Name + "/" + f.FileName
		s.mu.Lock()
		v, ok := s.infos[key]
		s.mu.Unlock()
		if !ok {
			v = s.fetchInfos(ctx, kind, f)
			s.mu.Lock()
			s.infos[key] = v
			s.mu.Unlock()
		}
		f.Infos = v
	}
}

func (s *Service) forget(kind Kind, name string) {
	s.mu.Lock()
	delete(s.infos, kind.Name+"/"+name)
	s.mu.Unlock()
}

// fetchInfos returns "WxH" for images and the metadata summary for videos.
func (s *Service) fetchInfos(ctx context.Context, kind Kind, f *FileInfo) string {
	switch {
	case strings.HasPrefix(f.MediaType, "image/"):
		file, err := s.engine.Open(ctx, kind.file(f.FileName))
		if err != nil {
			return "?"
		}
		defer file.Close()
		cfg, _, err := image.DecodeConfig(io.NewSectionReader(file, 0, file.Size()))
		if err != nil {
			return "?"
		}
		return fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)

	case strings.HasPrefix(f.MediaType, "video/"):
		meta, err := s.readMeta(ctx, kind, f.FileName)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				s.logger.Warnf("Cannot parse meta of %s: %s", f.FileName, err)
				return "JSON-Error"
			}
			return ""
		}
		return meta.String()
	}
	return ""
}

func (s *Service) readMeta(ctx context.Context, kind Kind, name string) (*VideoMeta, error) {
	file, err := s.engine.Open(ctx, kind.meta(MetaName(name)))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var meta VideoMeta
	if err := json.NewDecoder(io.NewSectionReader(file, 0, file.Size())).Decode(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

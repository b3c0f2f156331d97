package media

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nuln/fstream/store"
)

// FileInfo is the listing record of a stored media file.
type FileInfo struct {
	FileName     string    `json:"fileName"`
	SizeInBytes  int64     `json:"sizeInBytes"`
	MediaType    string    `json:"mediaType"`
	LastModified time.Time `json:"lastModified"`
	Infos        string    `json:"infos"`
}

func newFileInfo(e *store.EntryInfo) *FileInfo {
	return &FileInfo{
		FileName:     e.Name,
		SizeInBytes:  e.Size,
		MediaType:    ContentType(e.Name),
		LastModified: e.ModTime,
	}
}

// Query selects and orders a listing.
type Query struct {
	// PrefixFilter keeps names starting with it.
	PrefixFilter string
	// Pattern keeps names matching a doublestar glob such as "cam1-*.jpg".
	Pattern string
	Offset  int
	// Limit caps the result; 0 means no limit.
	Limit int
	Order Order
}

// Order sorts a listing by one FileInfo attribute.
type Order struct {
	// Attribute is one of fileName, lastModified, sizeInBytes or infos.
	// Empty means fileName.
	Attribute string
	Desc      bool
}

func (o Order) compare() (func(a, b *FileInfo) int, error) {
	var fn func(a, b *FileInfo) int
	switch o.Attribute {
	case "", "fileName":
		fn = func(a, b *FileInfo) int { return strings.Compare(a.FileName, b.FileName) }
	case "lastModified":
		fn = func(a, b *FileInfo) int { return a.LastModified.Compare(b.LastModified) }
	case "sizeInBytes":
		fn = func(a, b *FileInfo) int { return cmp.Compare(a.SizeInBytes, b.SizeInBytes) }
	case "infos":
		fn = func(a, b *FileInfo) int { return strings.Compare(a.Infos, b.Infos) }
	default:
		return nil, fmt.Errorf("%w: unknown order attribute %q", ErrInvalidQuery, o.Attribute)
	}
	if o.Desc {
		asc := fn
		fn = func(a, b *FileInfo) int { return asc(b, a) }
	}
	return fn, nil
}

func (q Query) page(files []*FileInfo) []*FileInfo {
	if q.Offset >= len(files) {
		return nil
	}
	files = files[q.Offset:]
	if q.Limit > 0 && q.Limit < len(files) {
		files = files[:q.Limit]
	}
	return files
}

func sortFiles(files []*FileInfo, o Order) error {
	fn, err := o.compare()
	if err != nil {
		return err
	}
	slices.SortStableFunc(files, fn)
	return nil
}

// Usage summarizes the storage held by one media kind.
type Usage struct {
	Media      string `json:"media"`
	Files      int    `json:"files"`
	Bytes      int64  `json:"bytes"`
	Thumbs     int    `json:"thumbs"`
	ThumbBytes int64  `json:"thumbBytes"`
	HumanTotal string `json:"humanTotal"`
}

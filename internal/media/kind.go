// Package media is the file service behind the HTTP API: it validates media
// file names and moves media through the streaming bridge into and out of a
// store.Engine.
package media

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

const (
	thumbsDir = ".thumbs"
	metaDir   = ".meta"
)

// Kind is a media collection with its own directory tree.
type Kind struct {
	// Name is the collection name used in URLs, e.g. "images".
	Name string
	// Singular prefixes the auxiliary routes, e.g. "image-thumbs".
	Singular string
	// Dir is the collection root inside the engine.
	Dir string
	// Accept lists the content types an upload may carry.
	Accept []string
}

var (
	Images = Kind{Name: "images", Singular: "image", Dir: "IMAGES", Accept: []string{"image/jpeg", "image/png"}}
	Videos = Kind{Name: "videos", Singular: "video", Dir: "VIDEOS", Accept: []string{"video/mp4"}}
)

// Kinds lists every supported collection.
var Kinds = []Kind{Images, Videos}

var (
	ErrInvalidName  = errors.New("media: invalid filename")
	ErrUnknownKind  = errors.New("media: unknown media kind")
	ErrInvalidQuery = errors.New("media: invalid query")
)

// ParseKind resolves a collection by its plural or singular name.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if k.Name == name || k.Singular == name {
			return k, nil
		}
	}
	return Kind{}, fmt.Errorf("%w %q", ErrUnknownKind, name)
}

func (k Kind) String() string { return k.Name }

// Accepts reports whether contentType may be uploaded into k. Parameters
// such as "; charset=" are ignored.
func (k Kind) Accepts(contentType string) bool {
	ct, _, _ := strings.Cut(contentType, ";")
	ct = strings.TrimSpace(strings.ToLower(ct))
	for _, a := range k.Accept {
		if a == ct {
			return true
		}
	}
	return false
}

func (k Kind) file(name string) string  { return path.Join(k.Dir, name) }
func (k Kind) thumb(name string) string { return path.Join(k.Dir, thumbsDir, name) }
func (k Kind) meta(name string) string  { return path.Join(k.Dir, metaDir, name) }

var fileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9-]+[.][a-z0-9]{3,4}$`)

// ValidName reports whether name is an acceptable media file name: ASCII
// letters, digits and dashes followed by a 3 or 4 character extension.
func ValidName(name string) bool {
	return fileNamePattern.MatchString(name)
}

func checkName(name string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w %q", ErrInvalidName, name)
	}
	return nil
}

// ThumbName is the thumbnail file name belonging to name.
func ThumbName(name string) string { return replaceExt(name, ".jpg") }

// MetaName is the metadata file name belonging to name.
func MetaName(name string) string { return replaceExt(name, ".json") }

func replaceExt(name, ext string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name + ext
	}
	return name[:i] + ext
}

// ContentType derives the media type from a file name.
func ContentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".jpg"), strings.HasSuffix(name, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(name, ".png"):
		return "image/png"
	case strings.HasSuffix(name, ".mp4"):
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

package store

import (
	"os"
	"time"
)

// EntryInfo describes a file or directory in a storage engine.
type EntryInfo struct {
	Name     string            `json:"name"`
	Size     int64             `json:"size"`
	ModTime  time.Time         `json:"modTime"`
	Mode     os.FileMode       `json:"mode"`
	IsDir    bool              `json:"isDir"`
	Path     string            `json:"path"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// FromFileInfo builds an EntryInfo for path from an os.FileInfo.
func FromFileInfo(path string, info os.FileInfo) *EntryInfo {
	return &EntryInfo{
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Mode:    info.Mode(),
		IsDir:   info.IsDir(),
		Path:    path,
	}
}

// Manifest represents the metadata of a chunked/sharded file.
type Manifest struct {
	Chunks     []string  `json:"chunks"`               // Chunk hashes
	ChunkSizes []int64   `json:"chunkSizes,omitempty"` // Per-chunk sizes
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"modTime"`
}

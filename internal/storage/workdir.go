package storage

import (
	"os"
	"path"
	"time"

	"github.com/daybookhq/scribe/internal/models"
)

// WorkDir manages the editable working files that mirror record content.
type WorkDir interface {
	// Write saves data to a work file path, replacing any previous version.
	Write(path string, data []byte, mode os.FileMode) error

	// WriteConflict saves data next to an existing work file under a
	// timestamped name and returns the path it used.
	WriteConflict(path string, data []byte) (string, error)

	// Read retrieves work file contents.
	Read(path string) ([]byte, error)

	// Delete removes a work file.
	Delete(path string) error

	// Exists checks if a work file exists.
	Exists(path string) (bool, error)

	// Stat returns work file information.
	Stat(path string) (FileInfo, error)

	// EnsureDir creates a directory if it doesn't exist.
	EnsureDir(path string) error

	// ListDir returns directory contents.
	ListDir(path string) ([]FileInfo, error)

	// Resolve returns the absolute filesystem path for a work file.
	Resolve(path string) (string, error)

	// SetModTime updates work file modification time.
	SetModTime(path string, modTime time.Time) error
}

// FileInfo contains work file metadata.
type FileInfo struct {
	Path       string
	Size       int64
	Mode       os.FileMode
	ModTime    time.Time
	IsDir      bool
	IsSymlink  bool
	LinkTarget string
}

// WorkFile returns the relative work file path for a record. Record content
// is materialized as Markdown.
func WorkFile(kind models.RecordKind, id string) string {
	return path.Join(string(kind), id+".md")
}

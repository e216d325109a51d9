package store

import (
	"io"
	"time"
)

// FileInfo represents metadata about a stored file.
type FileInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the filesystem operations the attachment pipeline relies on.
type Store interface {
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error

	// Write creates or truncates path and copies reader into it, returning the
	// number of bytes written.
	Write(path string, reader io.Reader) (int64, error)

	// Copy copies the file at source to target.
	Copy(source, target string) (int64, error)

	// Remove deletes path. Removing a file that does not exist is not an error
	// and returns false.
	Remove(path string) (bool, error)

	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)

	// Stat returns metadata about the file at path.
	Stat(path string) (*FileInfo, error)
}

// FileNotFoundError is returned when trying to access a file that doesn't exist.
type FileNotFoundError struct {
	Path string
}

func (e FileNotFoundError) Error() string {
	return "file not found: " + e.Path
}

// Package disk implements store.Store on the local filesystem.
package disk

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"clusterfs/pkg/log"
	"clusterfs/pkg/store"
)

const (
	dirPerm  = 0750
	filePerm = 0640
)

// Store writes attachments to the local filesystem.
type Store struct{}

// New creates a disk store.
func New() *Store {
	return &Store{}
}

// MkdirAll creates dir and its parents.
func (s *Store) MkdirAll(dir string) error {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("Failed to create directory")
		return err
	}
	return nil
}

// Write creates or truncates path and copies reader into it. A failed copy
// removes the partial file.
func (s *Store) Write(path string, reader io.Reader) (int64, error) {
	//nolint:gosec // path is composed from resolved templates and allocator slots
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		log.Error().Err(err).Str("target_path", path).Msg("Failed to create destination file")
		return 0, err
	}

	written, err := io.Copy(dst, reader)
	if err != nil {
		_ = dst.Close()
		if removeErr := os.Remove(path); removeErr != nil {
			log.Error().Err(removeErr).Str("target_path", path).Msg("Failed to remove target file after copy error")
		}
		log.Error().Err(err).Str("target_path", path).Msg("Failed to save file")
		return 0, err
	}

	if err := dst.Close(); err != nil {
		log.Error().Err(err).Str("target_path", path).Msg("Failed to close destination file")
		return 0, err
	}

	log.Debug().Str("target_path", path).Int64("size", written).Msg("File written")
	return written, nil
}

// Copy copies source to target.
func (s *Store) Copy(source, target string) (int64, error) {
	//nolint:gosec // source is an operator-supplied path
	src, err := os.Open(source)
	if err != nil {
		log.Error().Err(err).Str("source_path", source).Msg("Failed to open source file")
		return 0, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close source file")
		}
	}()

	return s.Write(target, src)
}

// Remove deletes path; a missing file yields false and no error.
func (s *Store) Remove(path string) (bool, error) {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("file_path", path).Msg("File not found for delete")
			return false, nil
		}
		log.Error().Err(err).Str("file_path", path).Msg("Failed to delete file")
		return false, err
	}

	log.Info().Str("file_path", path).Msg("File deleted successfully")
	return true, nil
}

// Exists reports whether a regular file exists at path.
func (s *Store) Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Stat returns metadata about the file at path.
func (s *Store) Stat(path string) (*store.FileInfo, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.FileNotFoundError{Path: path}
	}
	if err != nil {
		return nil, err
	}

	return &store.FileInfo{
		Path:      filepath.Clean(path),
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
	}, nil
}

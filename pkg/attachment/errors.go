package attachment

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFile is matched by InvalidFileError.
	ErrInvalidFile = errors.New("invalid file")

	// ErrFileNameRequired is returned by Place when a reader is given without a file name.
	ErrFileNameRequired = errors.New("file name is required")

	// ErrNoAttachment is returned when a record has no stored attachment path.
	ErrNoAttachment = errors.New("record has no attachment")

	// ErrUnsafePath is matched by UnsafePathError.
	ErrUnsafePath = errors.New("unsafe attachment path")
)

// UnsafePathError is returned when a resolved path would leave the directory
// it is resolved below.
type UnsafePathError struct {
	Path string
}

func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("%s: %q leaves its directory", ErrUnsafePath, e.Path)
}

// Is matches ErrUnsafePath.
func (e *UnsafePathError) Is(target error) bool {
	return target == ErrUnsafePath
}

// InvalidFileError is returned when a record's file handle cannot be read.
type InvalidFileError struct {
	Type string
}

func (e *InvalidFileError) Error() string {
	return fmt.Sprintf("file of type %s does not support reading", e.Type)
}

// Is matches ErrInvalidFile.
func (e *InvalidFileError) Is(target error) bool {
	return target == ErrInvalidFile
}

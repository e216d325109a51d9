package catalog

import "errors"

var (
	// ErrDocumentNotFound is returned when the requested document does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidDocument is returned when a document is missing its kind.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = errors.New("database error")
)

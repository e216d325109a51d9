package attachment

import (
	"context"
	"io"

	"clusterfs/pkg/interpolate"
)

// DefaultContentType is recorded when an upload declares none.
const DefaultContentType = "application/octet-stream"

// Upload is an incoming file handle. Save also requires it to implement io.Reader.
type Upload interface {
	OriginalFilename() string
	ContentType() string
}

// StreamUpload is an Upload over any reader.
type StreamUpload struct {
	io.Reader
	Filename string
	Type     string
}

// NewUpload wraps reader as an Upload.
func NewUpload(reader io.Reader, filename, contentType string) *StreamUpload {
	return &StreamUpload{Reader: reader, Filename: filename, Type: contentType}
}

// OriginalFilename returns the client-side file name.
func (u *StreamUpload) OriginalFilename() string {
	return u.Filename
}

// ContentType returns the declared content type.
func (u *StreamUpload) ContentType() string {
	return u.Type
}

// Info is what a save commits back to the owning record.
type Info struct {
	Size        int64  `json:"size"`
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
}

// Record is the owner of an attachment.
type Record interface {
	interpolate.Attributes

	// ID identifies the record; it also feeds the :hash placeholder.
	ID() string
	// Kind is the record type name and the allocation bucket.
	Kind() string
	// File returns the pending upload, or nil.
	File() Upload
	// AttachmentPath returns the stored path relative to the base directory.
	AttachmentPath() string
	// SaveAttachmentInfo persists the result of a save.
	SaveAttachmentInfo(ctx context.Context, info Info) error
}

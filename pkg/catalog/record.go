package catalog

import (
	"context"
	"strconv"

	"clusterfs/pkg/attachment"
	"clusterfs/pkg/models"
)

// Record exposes a stored document to the attachment pipeline.
type Record struct {
	store    *Store
	document *models.Document
	file     attachment.Upload
}

var _ attachment.Record = (*Record)(nil)

// Record wraps document, optionally carrying a pending upload.
func (s *Store) Record(document *models.Document, file attachment.Upload) *Record {
	return &Record{store: s, document: document, file: file}
}

// Document returns the wrapped document, updated by SaveAttachmentInfo.
func (r *Record) Document() *models.Document {
	return r.document
}

// ID returns the document id in decimal.
func (r *Record) ID() string {
	return strconv.FormatInt(r.document.ID, 10)
}

// Kind returns the document kind.
func (r *Record) Kind() string {
	return r.document.Kind
}

// File returns the pending upload.
func (r *Record) File() attachment.Upload {
	return r.file
}

// AttachmentPath returns the stored relative path.
func (r *Record) AttachmentPath() string {
	return r.document.AttachmentPath
}

// Attribute resolves template placeholders against the document columns and
// then its free-form attributes.
func (r *Record) Attribute(name string) (string, bool) {
	switch name {
	case "id":
		return r.ID(), true
	case "kind":
		return r.document.Kind, true
	case "document_name":
		return r.document.Name, true
	}
	value, ok := r.document.Attributes[name]
	return value, ok
}

// SaveAttachmentInfo persists info and mirrors it on the wrapped document.
func (r *Record) SaveAttachmentInfo(ctx context.Context, info attachment.Info) error {
	if err := r.store.UpdateAttachment(ctx, r.document.ID, info.Size, info.Path, info.ContentType); err != nil {
		return err
	}
	r.document.AttachmentSize = info.Size
	r.document.AttachmentPath = info.Path
	r.document.AttachmentContentType = info.ContentType
	return nil
}

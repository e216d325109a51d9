package models

import "time"

// Document is a record owning at most one stored attachment.
type Document struct {
	ID         int64             `json:"id"`
	Kind       string            `json:"kind"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`

	// Attachment fields, empty until a file has been saved.
	AttachmentSize        int64  `json:"attachment_size"`
	AttachmentPath        string `json:"attachment_path,omitempty"`
	AttachmentContentType string `json:"attachment_content_type,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasAttachment reports whether a file has been saved for the document.
func (d *Document) HasAttachment() bool {
	return d.AttachmentPath != ""
}

// DocumentListResponse represents a list of documents.
type DocumentListResponse struct {
	Documents []Document `json:"documents"`
}

// Package storage persists uploaded files with a remote provider and returns
// a retrieval link for each. Google Drive is the production backend; Cloud
// Storage and the local filesystem satisfy the same interface.
package storage

import (
	"context"
	"io"
)

// Uploader creates one new object per call. Calls are never deduplicated:
// uploading the same content twice yields two objects with distinct IDs.
type Uploader interface {
	Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error)
}

type UploadRequest struct {
	// Name is the original file name; the object is created under it.
	Name string

	// ContentType is the MIME type recorded on the object.
	ContentType string

	// Content is the data to be uploaded.
	Content io.Reader

	// Folder is the optional destination. Its meaning is backend specific: a
	// Drive folder ID, a GCS object prefix or a local subdirectory. Empty
	// means the provider's default location.
	Folder string
}

// UploadResult is the outcome of a successful upload.
type UploadResult struct {
	// ID is the provider-assigned identifier of the new object.
	ID string `json:"id"`

	// Name is the name the object was created under.
	Name string `json:"name"`

	// Link retrieves the object.
	Link string `json:"link"`
}

package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

const signedURLTTL = 1 * time.Hour

// GCSScope is the OAuth scope a GCSUploader needs.
const GCSScope = storage.ScopeReadWrite

// GCSUploader uploads objects to a Google Cloud Storage bucket and links to
// them with time-limited signed URLs.
type GCSUploader struct {
	client *storage.Client
	bucket string
	sign   urlSigner
}

// urlSigner returns a link granting read access to object.
type urlSigner func(object string) (string, error)

// NewGCSUploader creates a GCSUploader for the given bucket. opts are passed
// through to the underlying GCS client, allowing credential injection.
func NewGCSUploader(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create GCS client: %w", err)
	}
	u := &GCSUploader{client: client, bucket: bucket}
	u.sign = u.signedURL
	return u, nil
}

// objectName is the key an upload of name is written to. The random segment
// keeps repeated uploads of the same name apart.
func objectName(folder, name string) string {
	return path.Join(folder, uuid.NewString(), path.Base(name))
}

func (u *GCSUploader) signedURL(object string) (string, error) {
	return u.client.Bucket(u.bucket).SignedURL(object, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(signedURLTTL),
	})
}

// Upload writes content to <folder>/<uuid>/<name> and returns a signed URL.
// The object name doubles as the result ID.
func (u *GCSUploader) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	object := objectName(req.Folder, req.Name)

	w := u.client.Bucket(u.bucket).Object(object).NewWriter(ctx)
	w.ContentType = req.ContentType
	// Single request; an interrupted upload is not resumed.
	w.ChunkSize = 0

	if _, err := io.Copy(w, req.Content); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	link, err := u.sign(object)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to sign URL for %q: %w", object, err)
	}

	return &UploadResult{
		ID:   object,
		Name: req.Name,
		Link: link,
	}, nil
}

// Close releases the underlying client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

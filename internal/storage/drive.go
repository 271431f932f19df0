package storage

import (
	"context"
	"fmt"
	"net/url"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// LinkStyle selects which link a DriveUploader reports for new files. The
// choice is process-wide so every response uses the same convention.
type LinkStyle string

const (
	// LinkDownload reports https://drive.google.com/uc?id=<id>&export=download.
	LinkDownload LinkStyle = "download"

	// LinkView reports the webViewLink Drive returns for the file.
	LinkView LinkStyle = "view"
)

const driveHost = "drive.google.com"

// DriveScope is the OAuth scope a DriveUploader needs.
const DriveScope = drive.DriveFileScope

// DriveUploader creates files in Google Drive.
type DriveUploader struct {
	service   *drive.Service
	linkStyle LinkStyle
}

// NewDriveUploader creates a DriveUploader. opts are passed through to the
// underlying Drive client, allowing credential injection.
func NewDriveUploader(ctx context.Context, style LinkStyle, opts ...option.ClientOption) (*DriveUploader, error) {
	if style != LinkDownload && style != LinkView {
		return nil, fmt.Errorf("storage: unknown drive link style %q", style)
	}
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create Drive client: %w", err)
	}
	return &DriveUploader{service: service, linkStyle: style}, nil
}

// Upload creates a new Drive file named req.Name under req.Folder, or the
// service account's root when no folder is given. Drive errors are returned
// as-is.
func (u *DriveUploader) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	file := &drive.File{
		Name:     req.Name,
		MimeType: req.ContentType,
	}
	if req.Folder != "" {
		file.Parents = []string{req.Folder}
	}

	var media []googleapi.MediaOption
	if req.ContentType != "" {
		media = append(media, googleapi.ContentType(req.ContentType))
	}

	created, err := u.service.Files.Create(file).
		Media(req.Content, media...).
		Fields("id", "name", "webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		ID:   created.Id,
		Name: created.Name,
		Link: u.link(created),
	}, nil
}

func (u *DriveUploader) link(f *drive.File) string {
	if u.linkStyle == LinkView {
		if f.WebViewLink != "" {
			return f.WebViewLink
		}
		return fmt.Sprintf("https://%s/file/d/%s/view", driveHost, url.PathEscape(f.Id))
	}
	return DownloadLink(f.Id)
}

// DownloadLink builds the direct download link for a Drive file ID.
func DownloadLink(id string) string {
	return fmt.Sprintf("https://%s/uc?id=%s&export=download", driveHost, url.QueryEscape(id))
}

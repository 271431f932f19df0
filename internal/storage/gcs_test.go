package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type gcsObject struct {
	Name        string
	ContentType string
	Content     string
}

// fakeGCS accepts single-request JSON API uploads and records each object.
type fakeGCS struct {
	mu      sync.Mutex
	objects []gcsObject
	fail    bool
}

func (g *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.fail {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"bucket access denied"}}`)
		return
	}

	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var meta struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_ = json.NewDecoder(part).Decode(&meta)

	media, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body, _ := io.ReadAll(media)

	obj := gcsObject{Name: meta.Name, ContentType: meta.ContentType, Content: string(body)}
	if obj.Name == "" {
		obj.Name = r.URL.Query().Get("name")
	}
	if obj.ContentType == "" {
		obj.ContentType = media.Header.Get("Content-Type")
	}

	g.mu.Lock()
	g.objects = append(g.objects, obj)
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"kind":        "storage#object",
		"bucket":      "uploads",
		"name":        obj.Name,
		"contentType": obj.ContentType,
		"size":        strconv.Itoa(len(body)),
	})
}

func newTestGCSUploader(t *testing.T, fake *fakeGCS) *GCSUploader {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	u, err := NewGCSUploader(context.Background(), "uploads",
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = u.Close() })

	u.sign = func(object string) (string, error) {
		return "https://signed.example/" + object + "?X-Goog-Signature=abc", nil
	}
	return u
}

func TestGCSUploader_Upload(t *testing.T) {
	fake := &fakeGCS{}
	u := newTestGCSUploader(t, fake)

	res, err := u.Upload(context.Background(), &UploadRequest{
		Name:        "report.pdf",
		ContentType: "application/pdf",
		Content:     strings.NewReader("0123456789"),
		Folder:      "incoming",
	})
	require.NoError(t, err)

	segments := strings.Split(res.ID, "/")
	require.Len(t, segments, 3)
	assert.Equal(t, "incoming", segments[0])
	assert.Len(t, segments[1], 36)
	assert.Equal(t, "report.pdf", segments[2])

	assert.Equal(t, "report.pdf", res.Name)
	assert.Equal(t, "https://signed.example/"+res.ID+"?X-Goog-Signature=abc", res.Link)

	require.Len(t, fake.objects, 1)
	assert.Equal(t, res.ID, fake.objects[0].Name)
	assert.Equal(t, "application/pdf", fake.objects[0].ContentType)
	assert.Equal(t, "0123456789", fake.objects[0].Content)
}

func TestGCSUploader_DistinctIDs(t *testing.T) {
	u := newTestGCSUploader(t, &fakeGCS{})

	seen := map[string]bool{}
	for range 3 {
		res, err := u.Upload(context.Background(), &UploadRequest{
			Name:    "same.txt",
			Content: strings.NewReader("x"),
		})
		require.NoError(t, err)
		assert.False(t, seen[res.ID], "duplicate id %s", res.ID)
		seen[res.ID] = true
	}
}

func TestGCSUploader_SignFailure(t *testing.T) {
	u := newTestGCSUploader(t, &fakeGCS{})
	u.sign = func(string) (string, error) {
		return "", errors.New("no private key")
	}

	_, err := u.Upload(context.Background(), &UploadRequest{
		Name:    "a.txt",
		Content: strings.NewReader("x"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no private key")
}

func TestGCSUploader_ProviderError(t *testing.T) {
	u := newTestGCSUploader(t, &fakeGCS{fail: true})

	_, err := u.Upload(context.Background(), &UploadRequest{
		Name:    "a.txt",
		Content: strings.NewReader("x"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket access denied")
}

func TestObjectName(t *testing.T) {
	tests := []struct {
		folder string
		name   string
		prefix string
		suffix string
	}{
		{"", "a.txt", "", "/a.txt"},
		{"incoming", "a.txt", "incoming/", "/a.txt"},
		{"incoming/2024", "../escape.txt", "incoming/2024/", "/escape.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.folder+"/"+tt.name, func(t *testing.T) {
			got := objectName(tt.folder, tt.name)
			assert.True(t, strings.HasPrefix(got, tt.prefix), got)
			assert.True(t, strings.HasSuffix(got, tt.suffix), got)
			assert.NotContains(t, got, "..")
		})
	}

	assert.NotEqual(t, objectName("f", "a.txt"), objectName("f", "a.txt"))
}

package upload_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/drive-uploader/internal/operation"
	"github.com/tomasbasham/drive-uploader/internal/sheets"
	"github.com/tomasbasham/drive-uploader/internal/storage"
	"github.com/tomasbasham/drive-uploader/internal/upload"
)

// fakeUploader hands out sequential IDs and fails on the configured call.
type fakeUploader struct {
	calls  []string
	bodies []string
	failAt int
	err    error
}

func (f *fakeUploader) Upload(_ context.Context, req *storage.UploadRequest) (*storage.UploadResult, error) {
	f.calls = append(f.calls, req.Name)
	body, _ := io.ReadAll(req.Content)
	f.bodies = append(f.bodies, string(body))
	if f.err != nil && len(f.calls) == f.failAt {
		return nil, f.err
	}
	id := fmt.Sprintf("id-%d", len(f.calls))
	return &storage.UploadResult{ID: id, Name: req.Name, Link: storage.DownloadLink(id)}, nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, message string) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

type mockReader struct {
	mock.Mock
}

func (m *mockReader) ReadTable(ctx context.Context, sheetID, rng string) (sheets.Table, error) {
	args := m.Called(ctx, sheetID, rng)
	table, _ := args.Get(0).(sheets.Table)
	return table, args.Error(1)
}

func files(names ...string) []upload.File {
	out := make([]upload.File, len(names))
	for i, n := range names {
		out[i] = upload.File{Name: n, ContentType: "text/plain", Data: []byte("content of " + n)}
	}
	return out
}

func TestHandleUpload_PreservesOrder(t *testing.T) {
	up := &fakeUploader{}
	o := upload.New(upload.Options{Uploader: up, Folder: "folder-1"})

	res, err := o.HandleUpload(context.Background(), files("a.txt", "b.txt", "c.txt"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, up.calls)
	assert.Equal(t, []string{"content of a.txt", "content of b.txt", "content of c.txt"}, up.bodies)
	require.Len(t, res.Files, 3)
	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		assert.Equal(t, name, res.Files[i].Name)
		assert.Equal(t, storage.DownloadLink(fmt.Sprintf("id-%d", i+1)), res.Files[i].Link)
	}
	assert.Nil(t, res.Table)
	assert.NotEmpty(t, res.OperationID)
}

func TestHandleUpload_SingleFileNotification(t *testing.T) {
	n := new(mockNotifier)
	n.On("Notify", mock.Anything, "File uploaded: report.pdf\nhttps://drive.google.com/uc?id=id-1&export=download").
		Return(nil).Once()

	o := upload.New(upload.Options{Uploader: &fakeUploader{}, Notifier: n})
	_, err := o.HandleUpload(context.Background(), []upload.File{
		{Name: "report.pdf", ContentType: "application/pdf", Data: []byte("0123456789")},
	})
	require.NoError(t, err)
	n.AssertExpectations(t)
}

func TestHandleUpload_MultiFileNotification(t *testing.T) {
	n := new(mockNotifier)
	n.On("Notify", mock.Anything, "2 files uploaded:\n"+
		"• a.txt: https://drive.google.com/uc?id=id-1&export=download\n"+
		"• b.txt: https://drive.google.com/uc?id=id-2&export=download").
		Return(nil).Once()

	o := upload.New(upload.Options{Uploader: &fakeUploader{}, Notifier: n})
	_, err := o.HandleUpload(context.Background(), files("a.txt", "b.txt"))
	require.NoError(t, err)
	n.AssertExpectations(t)
}

func TestHandleUpload_FailureAbortsRemaining(t *testing.T) {
	providerErr := errors.New("simulated provider error")
	up := &fakeUploader{failAt: 2, err: providerErr}
	n := new(mockNotifier)
	n.On("Notify", mock.Anything, "Upload failed: simulated provider error").Return(nil).Once()
	store := operation.NewMemoryStore(0)

	o := upload.New(upload.Options{Uploader: up, Notifier: n, Store: store})
	res, err := o.HandleUpload(context.Background(), files("a.txt", "b.txt", "c.txt"))

	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, "upload failed: simulated provider error", err.Error())
	assert.ErrorIs(t, err, providerErr)

	var failure *upload.Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, upload.StageUpload, failure.Stage)

	assert.Equal(t, []string{"a.txt", "b.txt"}, up.calls, "c.txt must not be attempted")
	n.AssertExpectations(t)
	n.AssertNumberOfCalls(t, "Notify", 1)
}

func TestHandleUpload_NotifierFailureIsSwallowed(t *testing.T) {
	n := new(mockNotifier)
	n.On("Notify", mock.Anything, mock.Anything).Return(errors.New("telegram down"))

	o := upload.New(upload.Options{Uploader: &fakeUploader{}, Notifier: n})
	res, err := o.HandleUpload(context.Background(), files("a.txt"))
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	n.AssertNumberOfCalls(t, "Notify", 1)
}

func TestHandleUpload_ReadsTable(t *testing.T) {
	r := new(mockReader)
	table := sheets.Table{{"name", "qty"}, {"widget", "3"}}
	r.On("ReadTable", mock.Anything, "sheet-1", "Sheet1!A1:C10").Return(table, nil).Once()

	o := upload.New(upload.Options{
		Uploader: &fakeUploader{},
		Sheet:    upload.SheetSource{Reader: r, ID: "sheet-1", Range: "Sheet1!A1:C10"},
	})
	require.True(t, o.SheetEnabled())

	res, err := o.HandleUpload(context.Background(), files("a.txt"))
	require.NoError(t, err)
	assert.Equal(t, table, res.Table)
	r.AssertExpectations(t)
}

func TestHandleUpload_TableFailureFailsRequest(t *testing.T) {
	r := new(mockReader)
	r.On("ReadTable", mock.Anything, "sheet-1", "Sheet1!A1:C10").Return(nil, errors.New("sheet not found")).Once()
	n := new(mockNotifier)
	n.On("Notify", mock.Anything, "Upload failed: sheet not found").Return(nil).Once()
	store := operation.NewMemoryStore(0)

	o := upload.New(upload.Options{
		Uploader: &fakeUploader{},
		Notifier: n,
		Store:    store,
		Sheet:    upload.SheetSource{Reader: r, ID: "sheet-1", Range: "Sheet1!A1:C10"},
	})
	_, err := o.HandleUpload(context.Background(), files("a.txt"))

	var failure *upload.Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, upload.StageTable, failure.Stage)
	n.AssertExpectations(t)
}

func TestHandleUpload_RecordsOperation(t *testing.T) {
	store := operation.NewMemoryStore(0)
	o := upload.New(upload.Options{Uploader: &fakeUploader{}, Store: store})

	res, err := o.HandleUpload(context.Background(), files("a.txt", "b.txt"))
	require.NoError(t, err)

	op, err := o.Operation(res.OperationID)
	require.NoError(t, err)
	assert.Equal(t, operation.StatusDone, op.Status)
	assert.Equal(t, []string{"a.txt", "b.txt"}, op.Files)
	assert.Equal(t, res.Files, op.Results)
}

func TestHandleUpload_RecordsFailedOperation(t *testing.T) {
	store := operation.NewMemoryStore(0)
	up := &fakeUploader{failAt: 1, err: errors.New("quota exceeded")}
	o := upload.New(upload.Options{Uploader: up, Store: store})

	_, err := o.HandleUpload(context.Background(), files("a.txt"))
	require.Error(t, err)
	require.Equal(t, 1, store.Len())
}

func TestHandleUpload_StoreIsBounded(t *testing.T) {
	store := operation.NewMemoryStore(10)
	o := upload.New(upload.Options{
		Uploader: &fakeUploader{},
		Store:    store,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	first, err := o.HandleUpload(context.Background(), files("a.txt"))
	require.NoError(t, err)

	for range 5000 {
		_, err := o.HandleUpload(context.Background(), files("a.txt"))
		require.NoError(t, err)
	}

	assert.Equal(t, 10, store.Len())
	_, err = o.Operation(first.OperationID)
	assert.ErrorIs(t, err, operation.ErrNotFound)
}

func TestHandleUpload_NoFiles(t *testing.T) {
	n := new(mockNotifier)
	o := upload.New(upload.Options{Uploader: &fakeUploader{}, Notifier: n})

	_, err := o.HandleUpload(context.Background(), nil)
	assert.ErrorIs(t, err, upload.ErrNoFiles)
	n.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

type panickingUploader struct{}

func (panickingUploader) Upload(context.Context, *storage.UploadRequest) (*storage.UploadResult, error) {
	panic("nil pointer in provider client")
}

func TestHandleUpload_PanicBecomesFailure(t *testing.T) {
	n := new(mockNotifier)
	n.On("Notify", mock.Anything, "Upload failed: nil pointer in provider client").Return(nil).Once()

	o := upload.New(upload.Options{Uploader: panickingUploader{}, Notifier: n})
	res, err := o.HandleUpload(context.Background(), files("a.txt"))

	assert.Nil(t, res)
	var failure *upload.Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, upload.StageInternal, failure.Stage)
	n.AssertExpectations(t)
}

// panickingNotifier counts its calls and panics on every one of them.
type panickingNotifier struct {
	calls int
}

func (p *panickingNotifier) Notify(context.Context, string) error {
	p.calls++
	panic("notifier blew up")
}

func TestHandleUpload_NotifierPanicKeepsSuccess(t *testing.T) {
	n := &panickingNotifier{}
	o := upload.New(upload.Options{Uploader: &fakeUploader{}, Notifier: n})

	var (
		res *upload.Result
		err error
	)
	require.NotPanics(t, func() {
		res, err = o.HandleUpload(context.Background(), files("a.txt", "b.txt"))
	})
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	assert.Equal(t, 1, n.calls)

	op, err := o.Operation(res.OperationID)
	require.NoError(t, err)
	assert.Equal(t, operation.StatusDone, op.Status)
}

func TestHandleUpload_NotifierPanicOnFailure(t *testing.T) {
	n := &panickingNotifier{}
	up := &fakeUploader{failAt: 1, err: errors.New("simulated provider error")}
	o := upload.New(upload.Options{Uploader: up, Notifier: n})

	var err error
	require.NotPanics(t, func() {
		_, err = o.HandleUpload(context.Background(), files("a.txt"))
	})
	assert.EqualError(t, err, "upload failed: simulated provider error")
	assert.Equal(t, 1, n.calls)
}

func TestHandleUpload_IgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seen error
	up := uploaderFunc(func(ctx context.Context, req *storage.UploadRequest) (*storage.UploadResult, error) {
		seen = ctx.Err()
		return &storage.UploadResult{ID: "1", Name: req.Name, Link: "l"}, nil
	})

	o := upload.New(upload.Options{Uploader: up})
	_, err := o.HandleUpload(ctx, files("a.txt"))
	require.NoError(t, err)
	assert.NoError(t, seen)
}

type uploaderFunc func(context.Context, *storage.UploadRequest) (*storage.UploadResult, error)

func (f uploaderFunc) Upload(ctx context.Context, req *storage.UploadRequest) (*storage.UploadResult, error) {
	return f(ctx, req)
}

func TestReadTable_NotConfigured(t *testing.T) {
	o := upload.New(upload.Options{Uploader: &fakeUploader{}})
	assert.False(t, o.SheetEnabled())
	_, err := o.ReadTable(context.Background())
	assert.Error(t, err)
}

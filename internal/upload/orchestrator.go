// Package upload composes the storage, sheets and notify collaborators into
// the upload request flow:
//
//	upload each file in order → read the sheet (optional) → notify → result
//
// Files are uploaded one at a time. The first failure aborts the request;
// objects created before it are left in place.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tomasbasham/drive-uploader/internal/notify"
	"github.com/tomasbasham/drive-uploader/internal/operation"
	"github.com/tomasbasham/drive-uploader/internal/sheets"
	"github.com/tomasbasham/drive-uploader/internal/storage"
)

// ErrNoFiles is returned when a request carries no files.
var ErrNoFiles = errors.New("no files provided")

// File is a fully buffered upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result is the outcome of a successful request.
type Result struct {
	OperationID string
	Files       []storage.UploadResult

	// Table is nil when no spreadsheet is configured.
	Table sheets.Table
}

// Stage identifies where a request failed.
type Stage string

const (
	StageUpload   Stage = "upload"
	StageTable    Stage = "table"
	StageInternal Stage = "internal"
)

// Failure is returned for any request that did not complete. Its message is
// the provider's error text with no further context.
type Failure struct {
	Stage Stage
	Err   error
}

func (f *Failure) Error() string { return "upload failed: " + f.Err.Error() }

func (f *Failure) Unwrap() error { return f.Err }

// SheetSource is the spreadsheet range read after a successful upload.
type SheetSource struct {
	Reader sheets.Reader
	ID     string
	Range  string
}

type Options struct {
	Uploader storage.Uploader

	// Backend labels metrics, e.g. "drive".
	Backend string

	// Folder is passed to every upload.
	Folder string

	// Sheet is optional; a nil Sheet.Reader disables the table read.
	Sheet SheetSource

	// Notifier defaults to notify.Nop.
	Notifier notify.Notifier

	// Store keeps finished operations. It defaults to an in-memory store
	// of operation.DefaultCapacity records.
	Store operation.Store

	Logger *slog.Logger
}

// Orchestrator runs upload requests. It holds no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	uploader storage.Uploader
	backend  string
	folder   string
	sheet    SheetSource
	notifier notify.Notifier
	store    operation.Store
	logger   *slog.Logger
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		uploader: opts.Uploader,
		backend:  opts.Backend,
		folder:   opts.Folder,
		sheet:    opts.Sheet,
		notifier: opts.Notifier,
		store:    opts.Store,
		logger:   opts.Logger,
	}
	if o.notifier == nil {
		o.notifier = notify.Nop{}
	}
	if o.store == nil {
		o.store = operation.NewMemoryStore(operation.DefaultCapacity)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// SheetEnabled reports whether a spreadsheet is configured.
func (o *Orchestrator) SheetEnabled() bool {
	return o.sheet.Reader != nil
}

// ReadTable reads the configured range on its own, outside any upload.
func (o *Orchestrator) ReadTable(ctx context.Context) (sheets.Table, error) {
	if o.sheet.Reader == nil {
		return nil, errors.New("no spreadsheet configured")
	}
	return o.sheet.Reader.ReadTable(ctx, o.sheet.ID, o.sheet.Range)
}

// Operation returns a recently finished request. Older records are evicted
// and reported as operation.ErrNotFound.
func (o *Orchestrator) Operation(id string) (*operation.Operation, error) {
	return o.store.Get(id)
}

// HandleUpload uploads files in order and returns their results. Every
// failure is reported as a *Failure after a best-effort failure notification.
//
// Provider calls run on a context detached from ctx's cancellation: a caller
// that goes away does not abort uploads already in flight.
func (o *Orchestrator) HandleUpload(ctx context.Context, files []File) (result *Result, err error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	ctx = context.WithoutCancel(ctx)

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	op := operation.Begin(names)

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = o.fail(ctx, op, &Failure{Stage: StageInternal, Err: fmt.Errorf("%v", r)})
		}
	}()

	uploaded, err := o.uploadAll(ctx, op, files)
	if err != nil {
		return nil, o.fail(ctx, op, &Failure{Stage: StageUpload, Err: err})
	}

	var table sheets.Table
	if o.sheet.Reader != nil {
		op.FetchingTable()
		table, err = o.sheet.Reader.ReadTable(ctx, o.sheet.ID, o.sheet.Range)
		if err != nil {
			return nil, o.fail(ctx, op, &Failure{Stage: StageTable, Err: err})
		}
	}

	op.Notifying()
	o.notify(ctx, SuccessMessage(uploaded))
	op.Done(uploaded)
	o.record(op)

	requestsTotal.WithLabelValues("success").Inc()
	o.logger.Info("upload complete",
		slog.String("operation", op.ID),
		slog.Int("files", len(uploaded)),
	)

	return &Result{OperationID: op.ID, Files: uploaded, Table: table}, nil
}

// uploadAll uploads files sequentially, stopping at the first error.
func (o *Orchestrator) uploadAll(ctx context.Context, op *operation.Operation, files []File) ([]storage.UploadResult, error) {
	results := make([]storage.UploadResult, 0, len(files))
	for i, f := range files {
		op.Uploading(i)

		res, err := o.uploader.Upload(ctx, &storage.UploadRequest{
			Name:        f.Name,
			ContentType: f.ContentType,
			Content:     bytes.NewReader(f.Data),
			Folder:      o.folder,
		})
		if err != nil {
			filesTotal.WithLabelValues(o.backend, "failure").Inc()
			o.logger.Error("upload failed",
				slog.String("operation", op.ID),
				slog.String("file", f.Name),
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
			return nil, err
		}
		filesTotal.WithLabelValues(o.backend, "success").Inc()
		results = append(results, *res)
	}
	return results, nil
}

func (o *Orchestrator) fail(ctx context.Context, op *operation.Operation, f *Failure) error {
	requestsTotal.WithLabelValues(string(f.Stage) + "_failed").Inc()
	op.Notifying()
	o.notify(ctx, FailureMessage(f.Err))
	op.Failed(f.Err)
	o.record(op)
	return f
}

// notify never fails the request: errors and panics from the notifier are
// logged and dropped.
func (o *Orchestrator) notify(ctx context.Context, message string) {
	if _, ok := o.notifier.(notify.Nop); ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			notificationsTotal.WithLabelValues("failure").Inc()
			o.logger.Warn("notification panicked", slog.String("error", fmt.Sprint(r)))
		}
	}()
	if err := o.notifier.Notify(ctx, message); err != nil {
		notificationsTotal.WithLabelValues("failure").Inc()
		o.logger.Warn("notification failed", slog.String("error", err.Error()))
		return
	}
	notificationsTotal.WithLabelValues("success").Inc()
}

// record keeps the finished operation for later inspection; a store error
// never affects the request outcome.
func (o *Orchestrator) record(op *operation.Operation) {
	if err := o.store.Record(op); err != nil {
		o.logger.Warn("failed to record operation",
			slog.String("operation", op.ID),
			slog.String("error", err.Error()),
		)
	}
}

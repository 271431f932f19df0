// Package server provides the HTTP API for uploading files.
//
// Endpoints:
//
//	GET  /              — liveness check
//	POST /upload        — multipart upload; parts named "file" or "files"
//	GET  /sheets        — current contents of the configured sheet range
//	GET  /uploads/{id}  — record of a recently finished upload
//	GET  /metrics       — Prometheus metrics
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomasbasham/drive-uploader/internal/operation"
	"github.com/tomasbasham/drive-uploader/internal/sheets"
	"github.com/tomasbasham/drive-uploader/internal/storage"
	"github.com/tomasbasham/drive-uploader/internal/upload"
)

const defaultContentType = "application/octet-stream"

// Uploads is the orchestration surface the handlers depend on.
type Uploads interface {
	HandleUpload(ctx context.Context, files []upload.File) (*upload.Result, error)
	ReadTable(ctx context.Context) (sheets.Table, error)
	SheetEnabled() bool
	Operation(id string) (*operation.Operation, error)
}

// Server holds the dependencies shared across HTTP handlers.
type Server struct {
	uploads Uploads
	logger  *slog.Logger
	handler http.Handler
}

// New creates a Server backed by uploads. A nil logger falls back to
// slog.Default().
func New(uploads Uploads, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{uploads: uploads, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /sheets", s.handleSheets)
	mux.HandleFunc("GET /uploads/{id}", s.handleGetUpload)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.handler = instrument(logRequests(logger, mux))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	// No read or write timeout: uploads have no size limit.
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

type statusResponse struct {
	Status string `json:"status"`
}

// uploadResponse is returned from a successful POST /upload.
type uploadResponse struct {
	ID    string                 `json:"id"`
	Files []storage.UploadResult `json:"files"`

	// Table is present only when a spreadsheet is configured.
	Table *sheets.Table `json:"table,omitempty"`
}

type sheetsResponse struct {
	Values sheets.Table `json:"values"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	files, err := readFiles(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.uploads.HandleUpload(r.Context(), files)
	if err != nil {
		if errors.Is(err, upload.ErrNoFiles) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var failure *upload.Failure
		if !errors.As(err, &failure) {
			err = &upload.Failure{Stage: upload.StageInternal, Err: err}
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := uploadResponse{ID: result.OperationID, Files: result.Files}
	if s.uploads.SheetEnabled() {
		table := result.Table
		if table == nil {
			table = sheets.Table{}
		}
		resp.Table = &table
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSheets(w http.ResponseWriter, r *http.Request) {
	if !s.uploads.SheetEnabled() {
		writeError(w, http.StatusNotFound, "no spreadsheet configured")
		return
	}

	table, err := s.uploads.ReadTable(r.Context())
	if err != nil {
		s.logger.Error("sheet read failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "sheet read failed: "+err.Error())
		return
	}
	if table == nil {
		table = sheets.Table{}
	}
	writeJSON(w, http.StatusOK, sheetsResponse{Values: table})
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	op, err := s.uploads.Operation(id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("upload %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// readFiles buffers every file part named "file" or "files", in the order
// they appear in the body.
func readFiles(r *http.Request) ([]upload.File, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}

	var files []upload.File
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid request body: %w", err)
		}

		name := part.FormName()
		if (name != "file" && name != "files") || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %q: %w", part.FileName(), err)
		}

		contentType := part.Header.Get("Content-Type")
		if contentType == "" {
			contentType = defaultContentType
		}
		files = append(files, upload.File{
			Name:        part.FileName(),
			ContentType: contentType,
			Data:        data,
		})
	}
	return files, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

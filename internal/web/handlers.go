package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/brandimport/internal/core"
	"github.com/JonMunkholm/brandimport/internal/customer"
	"github.com/JonMunkholm/brandimport/internal/mapping"
	"github.com/JonMunkholm/brandimport/internal/tabular"
)

// multipartOverhead is the slack allowed on top of the file size for
// multipart boundaries and headers.
const multipartOverhead = 1 << 20

// maxJSONBody bounds import and auto-map request bodies.
const maxJSONBody = 1 << 20

// Uploads pass when either the extension or the declared MIME type is known.
// PDF is accepted here and rejected by the parser with a clear message.
var (
	allowedExtensions = map[string]bool{
		".csv": true, ".tsv": true, ".json": true, ".xlsx": true, ".xls": true, ".xml": true, ".pdf": true,
	}
	allowedMIMETypes = map[string]bool{
		"text/csv":                  true,
		"text/tab-separated-values": true,
		"application/json":          true,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
		"application/vnd.ms-excel": true,
		"text/xml":                 true,
		"application/xml":          true,
		"application/pdf":          true,
	}
)

type importRequest struct {
	FileID  string                `json:"fileId"`
	Mapping mapping.ColumnMapping `json:"mapping"`
}

type autoMapRequest struct {
	Headers []string              `json:"headers"`
	Schema  []mapping.SchemaField `json:"schema"`
}

type autoMapResponse struct {
	Mapping map[string]string `json:"mapping"`
}

type healthResponse struct {
	Status  string                   `json:"status"`
	Message string                   `json:"message"`
	Imports core.ImportLimiterStatus `json:"imports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "OK",
		Message: "Backend is running",
		Imports: s.service.ImportStatus(),
	})
}

// handleUploadFile accepts a multipart "file", stores it and returns its preview.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, uploadFormError(err))
		return
	}
	defer file.Close()

	if header.Size > maxSize {
		s.respondError(w, r, fmt.Errorf("%w: %d bytes", core.ErrFileTooLarge, header.Size))
		return
	}
	if !allowedUpload(header.Filename, header.Header.Get("Content-Type")) {
		s.respondError(w, r, fmt.Errorf("%w: %s", tabular.ErrUnsupportedFormat, displayExt(header.Filename)))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		s.respondError(w, r, fmt.Errorf("reading upload: %w", err))
		return
	}
	if int64(len(data)) > maxSize {
		s.respondError(w, r, core.ErrFileTooLarge)
		return
	}

	preview, err := s.service.Upload(r.Context(), header.Filename, data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := s.service.Preview(r.Context(), chi.URLParam(r, "fileId"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// handleImport runs an import of a stored upload for the caller's brand.
// The mapping goes from schema key to uploaded header.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.FileID == "" || req.Mapping == nil {
		s.respondError(w, r, &core.MissingFieldError{Op: core.OpImport, Fields: []string{"fileId", "mapping"}})
		return
	}

	ctx := r.Context()
	outcome, err := s.service.Import(ctx, core.BrandIDFromContext(ctx), req.FileID, req.Mapping)
	if err != nil {
		status, body := s.errorResponse(w, r, err)
		if outcome != nil && outcome.SuccessCount > 0 {
			body.Outcome = outcome
		}
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// handleAutoMap answers with the header -> schema key mapping.
func (s *Server) handleAutoMap(w http.ResponseWriter, r *http.Request) {
	var req autoMapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	m, err := s.service.AutoMap(r.Context(), req.Headers, req.Schema)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, autoMapResponse{Mapping: m.Invert()})
}

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := s.service.ListCustomers(ctx, core.BrandIDFromContext(ctx))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []customer.Customer{}
	}
	writeJSON(w, http.StatusOK, list)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidBody, err)
	}
	return nil
}

// uploadFormError maps multipart parsing failures onto the error catalog.
func uploadFormError(err error) error {
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig):
		return fmt.Errorf("%w: %v", core.ErrFileTooLarge, err)
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return fmt.Errorf("%w: %v", core.ErrNoFile, err)
	default:
		return fmt.Errorf("reading multipart form: %w", err)
	}
}

func allowedUpload(filename, contentType string) bool {
	if allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		return true
	}
	mediaType, _, _ := strings.Cut(contentType, ";")
	return allowedMIMETypes[strings.TrimSpace(strings.ToLower(mediaType))]
}

func displayExt(filename string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return ext
	}
	return filename
}

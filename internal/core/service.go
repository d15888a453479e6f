package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/brandimport/internal/customer"
	"github.com/JonMunkholm/brandimport/internal/mapping"
	"github.com/JonMunkholm/brandimport/internal/storage"
	"github.com/JonMunkholm/brandimport/internal/tabular"
)

// DefaultImportTimeout is the maximum duration for one import.
const DefaultImportTimeout = 10 * time.Minute

// PreviewRows is how many rows a preview carries.
const PreviewRows = 5

// Preview is what the client sees after uploading a file.
type Preview struct {
	FileID     string        `json:"fileId"`
	Headers    []string      `json:"headers"`
	SampleRows []tabular.Row `json:"sampleRows"`
}

// ServiceConfig tunes a Service. Zero values fall back to defaults.
type ServiceConfig struct {
	MaxConcurrentImports int
	MaxWaitTime          time.Duration
	ImportTimeout        time.Duration
	BatchSize            int
}

// Service provides the business logic behind the upload, preview, auto-map
// and import endpoints.
type Service struct {
	files     storage.Store
	parsers   *tabular.Registry
	mapper    *mapping.AutoMapper
	customers customer.Store
	importer  *Importer
	limiter   *ImportLimiter

	importTimeout time.Duration
}

// NewService wires a Service.
func NewService(files storage.Store, customers customer.Store, mapper *mapping.AutoMapper, cfg ServiceConfig) *Service {
	if cfg.ImportTimeout <= 0 {
		cfg.ImportTimeout = DefaultImportTimeout
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	return &Service{
		files:         files,
		parsers:       tabular.NewRegistry(),
		mapper:        mapper,
		customers:     customers,
		importer:      NewImporter(customers, cfg.BatchSize),
		limiter:       NewImportLimiter(cfg.MaxConcurrentImports, cfg.MaxWaitTime),
		importTimeout: cfg.ImportTimeout,
	}
}

// Upload parses an uploaded file, keeps it for the later import and returns
// its preview. Files without headers are rejected before they are stored.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (*Preview, error) {
	ds, err := s.parse(filename, data)
	if err != nil {
		return nil, err
	}

	fileID, err := s.files.Save(ctx, filename, data)
	if err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}

	slog.InfoContext(ctx, "file uploaded",
		"file_id", fileID,
		"headers", len(ds.Headers),
		"rows", len(ds.Rows),
	)
	return newPreview(fileID, ds), nil
}

// Preview re-reads a stored upload and returns its headers and first rows.
func (s *Service) Preview(ctx context.Context, fileID string) (*Preview, error) {
	ds, err := s.load(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if len(ds.Headers) == 0 {
		return nil, fmt.Errorf("preview %s: %w", fileID, ErrNoHeaders)
	}
	return newPreview(fileID, ds), nil
}

// AutoMap resolves uploaded headers to schema keys.
func (s *Service) AutoMap(ctx context.Context, headers []string, schema []mapping.SchemaField) (mapping.ColumnMapping, error) {
	if len(headers) == 0 || len(schema) == 0 {
		return nil, &MissingFieldError{Op: OpAutoMap, Fields: []string{"headers", "schema"}}
	}
	return s.mapper.Resolve(ctx, headers, schema)
}

// Import creates the brand's customers from a stored upload using m
// (schema key -> uploaded header). Concurrent imports are bounded by the
// import limiter; callers past the limit wait, then get ErrTooManyImports.
// A run aborted by a store fault or timeout returns its partial outcome
// together with the error.
func (s *Service) Import(ctx context.Context, brandID, fileID string, m mapping.ColumnMapping) (*ImportOutcome, error) {
	if brandID == "" {
		return nil, ErrUnauthorized
	}
	if fileID == "" || m == nil {
		return nil, &MissingFieldError{Op: OpImport, Fields: []string{"fileId", "mapping"}}
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("import %s: %w", fileID, err)
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.importTimeout)
	defer cancel()

	ds, err := s.load(ctx, fileID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := s.importer.Import(ctx, brandID, ds, m)
	if err != nil {
		// Rows created before the abort are not rolled back; the partial
		// outcome tells the caller which ones made it.
		if out != nil {
			slog.WarnContext(ctx, "import aborted",
				"file_id", fileID,
				"total_rows", out.TotalRows,
				"created", out.SuccessCount,
				"error", err,
			)
		}
		return out, fmt.Errorf("import %s: %w", fileID, err)
	}

	slog.InfoContext(ctx, "import completed",
		"file_id", fileID,
		"brand_id", brandID,
		"total_rows", out.TotalRows,
		"created", out.SuccessCount,
		"errors", len(out.ErrorRows),
		"duplicates", len(out.DuplicateRows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// ListCustomers returns the brand's customers, oldest first.
func (s *Service) ListCustomers(ctx context.Context, brandID string) ([]customer.Customer, error) {
	if brandID == "" {
		return nil, ErrUnauthorized
	}
	list, err := s.customers.List(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	return list, nil
}

// ImportStatus reports the import limiter's state.
func (s *Service) ImportStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until running imports finish or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// load reads a stored upload and parses it. Stored IDs keep the original
// extension, so the ID alone selects the parser.
func (s *Service) load(ctx context.Context, fileID string) (*tabular.Dataset, error) {
	data, err := s.files.Read(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("reading upload %s: %w", fileID, err)
	}
	ds, err := s.parsers.Parse(fileID, data)
	if err != nil {
		return nil, fmt.Errorf("parsing upload %s: %w", fileID, err)
	}
	return ds, nil
}

func (s *Service) parse(filename string, data []byte) (*tabular.Dataset, error) {
	ds, err := s.parsers.Parse(filename, data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	if len(ds.Headers) == 0 {
		return nil, fmt.Errorf("upload %s: %w", filename, ErrNoHeaders)
	}
	return ds, nil
}

func newPreview(fileID string, ds *tabular.Dataset) *Preview {
	return &Preview{
		FileID:     fileID,
		Headers:    ds.Headers,
		SampleRows: ds.Sample(PreviewRows),
	}
}

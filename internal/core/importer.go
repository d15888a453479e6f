package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/brandimport/internal/customer"
	"github.com/JonMunkholm/brandimport/internal/mapping"
	"github.com/JonMunkholm/brandimport/internal/tabular"
)

// Customer schema field keys.
const (
	FieldFullName    = "fullName"
	FieldCompanyName = "companyName"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldAddress     = "address"
	FieldLanguage    = "language"
)

// RequiredFields lists the schema keys every imported row must carry.
var RequiredFields = []string{
	FieldFullName, FieldCompanyName, FieldEmail, FieldPhone, FieldAddress, FieldLanguage,
}

// ReasonMissingFields is the row error recorded when a required field is blank.
const ReasonMissingFields = "Missing required fields"

// ContextCheckInterval is how often (in rows) to check for context cancellation.
const ContextCheckInterval = 100

// DefaultBatchSize is how many rows share one duplicate lookup.
const DefaultBatchSize = 500

// RowError is a row that failed validation. Row is 1-based.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// DuplicateRow is a row whose email the brand already has. Row is 1-based.
type DuplicateRow struct {
	Row   int    `json:"row"`
	Email string `json:"email"`
}

// ImportOutcome summarizes one import. Every row lands in exactly one of
// SuccessCount, ErrorRows or DuplicateRows.
type ImportOutcome struct {
	TotalRows     int            `json:"totalRows"`
	SuccessCount  int            `json:"successCount"`
	ErrorRows     []RowError     `json:"errorRows"`
	DuplicateRows []DuplicateRow `json:"duplicateRows"`
}

// Importer creates customers from a parsed dataset.
type Importer struct {
	store     customer.Store
	batchSize int
}

// NewImporter returns an importer writing to store. With batchSize > 1
// existing emails are prefetched once per chunk of rows; otherwise each row
// is looked up on its own.
func NewImporter(store customer.Store, batchSize int) *Importer {
	return &Importer{store: store, batchSize: batchSize}
}

// Import walks rows in order and creates a customer for each complete,
// non-duplicate row. Row-level problems are recorded in the outcome; only
// store faults and cancellation abort the run. An aborted run still returns
// the outcome so far next to the error: rows already created stay created.
func (im *Importer) Import(ctx context.Context, brandID string, ds *tabular.Dataset, m mapping.ColumnMapping) (*ImportOutcome, error) {
	out := &ImportOutcome{
		TotalRows:     len(ds.Rows),
		ErrorRows:     []RowError{},
		DuplicateRows: []DuplicateRow{},
	}

	chunk := im.batchSize
	if chunk <= 1 {
		chunk = len(ds.Rows)
	}

	// Emails created earlier in this run.
	created := make(map[string]bool)

	for start := 0; start < len(ds.Rows); start += chunk {
		end := min(start+chunk, len(ds.Rows))

		candidates := make([]*customer.Customer, end-start)
		for i, row := range ds.Rows[start:end] {
			candidates[i] = project(brandID, row, m)
		}

		var existing map[string]bool
		if im.batchSize > 1 {
			var err error
			existing, err = im.prefetch(ctx, brandID, candidates, created)
			if err != nil {
				return out, fmt.Errorf("checking duplicates for rows %d-%d: %w", start+1, end, err)
			}
		}

		for i, c := range candidates {
			idx := start + i
			rowNum := idx + 1

			if idx%ContextCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return out, fmt.Errorf("import stopped at row %d: %w", rowNum, err)
				}
			}

			if c == nil {
				out.ErrorRows = append(out.ErrorRows, RowError{Row: rowNum, Reason: ReasonMissingFields})
				continue
			}

			dup, err := im.isDuplicate(ctx, c, created, existing)
			if err != nil {
				return out, fmt.Errorf("checking duplicate at row %d: %w", rowNum, err)
			}
			if dup {
				out.DuplicateRows = append(out.DuplicateRows, DuplicateRow{Row: rowNum, Email: c.Email})
				continue
			}

			if err := im.store.Create(ctx, c); err != nil {
				// Another import for the same brand won the race.
				if errors.Is(err, customer.ErrDuplicate) {
					created[c.Email] = true
					out.DuplicateRows = append(out.DuplicateRows, DuplicateRow{Row: rowNum, Email: c.Email})
					continue
				}
				return out, fmt.Errorf("creating customer at row %d: %w", rowNum, err)
			}
			created[c.Email] = true
			out.SuccessCount++
		}
	}

	return out, nil
}

func (im *Importer) prefetch(ctx context.Context, brandID string, candidates []*customer.Customer, created map[string]bool) (map[string]bool, error) {
	emails := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c == nil || created[c.Email] || seen[c.Email] {
			continue
		}
		seen[c.Email] = true
		emails = append(emails, c.Email)
	}
	if len(emails) == 0 {
		return map[string]bool{}, nil
	}
	return im.store.ExistingEmails(ctx, brandID, emails)
}

func (im *Importer) isDuplicate(ctx context.Context, c *customer.Customer, created, existing map[string]bool) (bool, error) {
	if created[c.Email] {
		return true, nil
	}
	if existing != nil {
		return existing[c.Email], nil
	}

	_, err := im.store.FindByEmail(ctx, c.BrandID, c.Email)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, customer.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// project builds a customer from row through m, or returns nil when any
// required field is missing or blank.
func project(brandID string, row tabular.Row, m mapping.ColumnMapping) *customer.Customer {
	values := make(map[string]string, len(RequiredFields))
	for _, key := range RequiredFields {
		header, ok := m[key]
		if !ok {
			return nil
		}
		v := strings.TrimSpace(row[header])
		if v == "" {
			return nil
		}
		values[key] = v
	}

	return &customer.Customer{
		BrandID:     brandID,
		FullName:    values[FieldFullName],
		CompanyName: values[FieldCompanyName],
		Email:       values[FieldEmail],
		PhoneNumber: values[FieldPhone],
		FullAddress: values[FieldAddress],
		Language:    values[FieldLanguage],
	}
}

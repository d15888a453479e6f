// Package core provides the business logic for importing a brand's customers
// from uploaded tabular files.
//
// The package is independent of the HTTP layer. Web handlers, tests or a
// future CLI drive it through [Service].
//
// # Flow
//
//  1. [Service.Upload] parses the file (CSV, TSV, JSON, XLSX, XLS or XML),
//     stores it and returns a [Preview] with its headers and first rows.
//  2. [Service.AutoMap] proposes a column mapping: exact label matches
//     first, then the configured resolver for whatever is left.
//  3. [Service.Import] re-reads the stored file and runs the [Importer],
//     which creates one customer per complete, non-duplicate row and
//     accounts for every row in an [ImportOutcome].
//
// Imports are bounded by an [ImportLimiter]; callers past the limit wait up
// to a configured time and then get [ErrTooManyImports].
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE004: Upload problems (size, type, missing, not found)
//   - PARSE001-PARSE002: Unreadable files and missing headers
//   - MAP001-MAP002: Auto-map requests and mapping service failures
//   - IMP001-IMP002: Import requests and customer store outages
//   - UPL001-UPL003: Import capacity, cancellation and timeouts
//   - AUTH001-AUTH002, RATE001: Access control
//
// # Retention
//
// Stored uploads are only needed between preview and import.
// [Service.StartRetentionScheduler] removes them once they age out.
package core

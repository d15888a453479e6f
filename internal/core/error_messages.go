// Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Error codes are grouped by category:
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum upload size
//	          Action: Split the file into smaller files
//	FILE002 - Unsupported type: "Unsupported file type: .ext"
//	          Action: Upload a CSV, TSV, JSON, XLSX, XLS or XML file
//	FILE003 - No file: "No file uploaded"
//	          Action: Choose a file to upload
//	FILE004 - Not found: "File not found"
//	          Action: The upload may have expired. Please upload the file again
//
// # Parse Errors (PARSE001-PARSE099)
//
//	PARSE001 - Parse failure: "Could not read file: <detail>"
//	           Action: Check that the file is well-formed
//	PARSE002 - No headers: "Could not detect headers"
//	           Action: Make sure the first row holds column names
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - Missing input: "Missing headers or schema"
//	MAP002 - Mapping service: "Failed to generate mapping"
//	         Action: Map the columns manually or try again
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Missing input: "Missing fileId or mapping"
//	IMP002 - Store unavailable: Customer database is unavailable
//	         Patterns: "connection refused", "connection reset", "too many clients", "deadlock"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Invalid body: request body is not valid JSON of the expected shape
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - System busy: Too many imports in progress
//	UPL002 - Request cancelled
//	UPL003 - Request timeout
//
// # Auth Errors (AUTH001-AUTH099)
//
//	AUTH001 - "Unauthorized": no bearer token
//	AUTH002 - "Invalid token": signature, expiry or brand claim rejected
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches; check the logs for the technical error.
//
// # Matching
//
// Known error values are matched first with errors.Is / errors.As, so wrapping
// with fmt.Errorf("...: %w", err) keeps the mapping intact. Errors from
// drivers and the network fall back to case-insensitive substring patterns;
// the first matching pattern wins.

package core

import (
	"context"
	"errors"
	"strings"

	"github.com/JonMunkholm/brandimport/internal/mapping"
	"github.com/JonMunkholm/brandimport/internal/storage"
	"github.com/JonMunkholm/brandimport/internal/tabular"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// knownError maps an error value to its user message.
type knownError struct {
	target error
	msg    UserMessage
}

// knownErrors is checked in order with errors.Is. Mapping service failures
// come before the context errors because a timed-out resolver wraps
// context.DeadlineExceeded.
var knownErrors = []knownError{
	{ErrFileTooLarge, UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller files",
		Code:    "FILE001",
	}},
	{ErrNoFile, UserMessage{
		Message: "No file uploaded",
		Action:  "Choose a file to upload",
		Code:    "FILE003",
	}},
	{storage.ErrFileNotFound, UserMessage{
		Message: "File not found",
		Action:  "The upload may have expired. Please upload the file again",
		Code:    "FILE004",
	}},
	{ErrNoHeaders, UserMessage{
		Message: "Could not detect headers",
		Action:  "Make sure the first row holds column names",
		Code:    "PARSE002",
	}},
	{ErrInvalidBody, UserMessage{
		Message: "Invalid request body",
		Action:  "Send a JSON body with the documented fields",
		Code:    "REQ001",
	}},
	{mapping.ErrMappingService, UserMessage{
		Message: "Failed to generate mapping",
		Action:  "Map the columns manually or try again",
		Code:    "MAP002",
	}},
	{ErrTooManyImports, UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "UPL001",
	}},
	{ErrUnauthorized, UserMessage{
		Message: "Unauthorized",
		Action:  "Sign in and try again",
		Code:    "AUTH001",
	}},
	{ErrInvalidToken, UserMessage{
		Message: "Invalid token",
		Action:  "Sign in again to refresh your session",
		Code:    "AUTH002",
	}},
	{ErrRateLimited, UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL002",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "UPL003",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var storeUnavailable = UserMessage{
	Message: "Customer database is unavailable",
	Action:  "Please try again in a few moments",
	Code:    "IMP002",
}

// errorPatterns maps technical error text (case-insensitive) to user messages
// for errors that arrive without a typed value, mostly from pgx and net/http.
var errorPatterns = []errorPattern{
	{"request body too large", UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller files",
		Code:    "FILE001",
	}},
	{"connection refused", storeUnavailable},
	{"connection reset", storeUnavailable},
	{"too many clients", storeUnavailable},
	{"deadlock", storeUnavailable},
	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Unsupported formats, parse failures and missing request fields carry a
// message derived from the error itself; everything else uses the catalog.
//
// Example:
//
//	err := fmt.Errorf("reading upload: %w", storage.ErrFileNotFound)
//	msg := MapError(err)
//	// msg.Code == "FILE004"
//	// msg.Message == "File not found"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if errors.Is(err, tabular.ErrUnsupportedFormat) {
		return UserMessage{
			Message: unsupportedMessage(err),
			Action:  "Upload a CSV, TSV, JSON, XLSX, XLS or XML file",
			Code:    "FILE002",
		}
	}

	var pe *tabular.ParseError
	if errors.As(err, &pe) {
		return UserMessage{
			Message: "Could not read file: " + pe.Detail,
			Action:  "Check that the file is well-formed",
			Code:    "PARSE001",
		}
	}

	var mf *MissingFieldError
	if errors.As(err, &mf) {
		code := "IMP001"
		if mf.Op == OpAutoMap {
			code = "MAP001"
		}
		return UserMessage{
			Message: capitalize(mf.Error()),
			Action:  "Include every required field in the request",
			Code:    code,
		}
	}

	for _, ke := range knownErrors {
		if errors.Is(err, ke.target) {
			return ke.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// unsupportedMessage keeps the offending extension from the wrapped error text.
func unsupportedMessage(err error) string {
	s := err.Error()
	prefix := tabular.ErrUnsupportedFormat.Error()
	if i := strings.Index(s, prefix); i >= 0 {
		return capitalize(s[i:])
	}
	return capitalize(prefix)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

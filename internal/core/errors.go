package core

import (
	"errors"
	"strings"
)

var (
	// ErrNoHeaders is returned when a parsed file has no header row.
	ErrNoHeaders = errors.New("could not detect headers")

	// ErrNoFile is returned when an upload request carries no file part.
	ErrNoFile = errors.New("no file uploaded")

	// ErrFileTooLarge is returned when an upload exceeds the configured size.
	ErrFileTooLarge = errors.New("file too large")

	// ErrUnauthorized is returned when a request has no bearer token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidToken is returned when a bearer token fails verification
	// or carries no brand.
	ErrInvalidToken = errors.New("invalid token")

	// ErrRateLimited is returned when a client exceeds its request budget.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidBody is returned when a request body is not the expected JSON.
	ErrInvalidBody = errors.New("invalid request body")

	// ErrMissingField is matched by every *MissingFieldError.
	ErrMissingField = errors.New("missing required request field")
)

// Request kinds used by MissingFieldError.
const (
	OpImport  = "import"
	OpAutoMap = "auto-map"
)

// MissingFieldError reports a request body without one of its required fields.
type MissingFieldError struct {
	Op     string
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "missing " + strings.Join(e.Fields, " or ")
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }

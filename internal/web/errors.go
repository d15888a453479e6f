package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls s.respondError(w, r, err)
//  3. Error is mapped via core.MapError to a user message and code
//  4. statusFor picks the HTTP status from the code
//  5. Technical error + code is logged with request ID and brand for correlation
//  6. {message, code, action} is written as JSON; a failed import adds the
//     partial outcome

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/brandimport/internal/core"
	"github.com/JonMunkholm/brandimport/internal/logging"
)

// ErrorResponse is the JSON body of every failed request. Message is kept
// as the primary field so clients that only read "message" keep working.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Action  string `json:"action,omitempty"`

	// Outcome is set when an import aborted after creating some customers.
	Outcome *core.ImportOutcome `json:"outcome,omitempty"`
}

// statusByCode maps catalog codes to HTTP status. Unlisted codes are 500.
var statusByCode = map[string]int{
	"FILE001":  http.StatusRequestEntityTooLarge,
	"FILE002":  http.StatusBadRequest,
	"FILE003":  http.StatusBadRequest,
	"FILE004":  http.StatusNotFound,
	"PARSE001": http.StatusBadRequest,
	"PARSE002": http.StatusBadRequest,
	"MAP001":   http.StatusBadRequest,
	"MAP002":   http.StatusInternalServerError,
	"IMP001":   http.StatusBadRequest,
	"IMP002":   http.StatusServiceUnavailable,
	"REQ001":   http.StatusBadRequest,
	"UPL001":   http.StatusServiceUnavailable,
	"UPL002":   http.StatusBadRequest,
	"UPL003":   http.StatusGatewayTimeout,
	"AUTH001":  http.StatusUnauthorized,
	"AUTH002":  http.StatusUnauthorized,
	"RATE001":  http.StatusTooManyRequests,
}

// statusFor returns the HTTP status for a catalog code.
func statusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes its user-facing JSON form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := s.errorResponse(w, r, err)
	writeJSON(w, status, body)
}

// errorResponse logs err, sets any error-specific headers and returns the
// status and body to send.
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) (int, ErrorResponse) {
	msg := core.MapError(err)
	status := statusFor(msg.Code)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.WithFields(r.Context(), "path", r.URL.Path, "method", r.Method).Log(r.Context(), level, "request error",
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	switch msg.Code {
	case "UPL001":
		w.Header().Set("Retry-After", "5")
	case "RATE001":
		w.Header().Set("Retry-After", "60")
	}
	if strings.HasPrefix(msg.Code, "AUTH") {
		w.Header().Set("WWW-Authenticate", `Bearer realm="brandimport"`)
	}

	return status, ErrorResponse{
		Message: msg.Message,
		Code:    msg.Code,
		Action:  msg.Action,
	}
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

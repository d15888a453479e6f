// Package logging configures log/slog for the import service.
//
// Loggers built here understand two pieces of request context: the chi
// request ID and the authenticated brand. Any *Context logging call
// (slog.InfoContext and friends) made with a request context carries
// request_id and brand_id without the caller passing them.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/brandimport/internal/core"
)

// Attribute keys added from the request context.
const (
	KeyRequestID = "request_id"
	KeyBrandID   = "brand_id"
)

// Setup installs the process-wide logger.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a context-aware logger writing to w.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var base slog.Handler
	if strings.EqualFold(format, "json") {
		base = slog.NewJSONHandler(w, opts)
	} else {
		base = slog.NewTextHandler(w, opts)
	}
	return slog.New(&contextHandler{Handler: base})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// contextHandler adds request_id and brand_id from the record's context
// unless a logger already bound them with With.
type contextHandler struct {
	slog.Handler
	boundRequestID bool
	boundBrandID   bool
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.boundRequestID {
		if id := middleware.GetReqID(ctx); id != "" {
			r.AddAttrs(slog.String(KeyRequestID, id))
		}
	}
	if !h.boundBrandID {
		if brand := core.BrandIDFromContext(ctx); brand != "" {
			r.AddAttrs(slog.String(KeyBrandID, brand))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.Handler = h.Handler.WithAttrs(attrs)
	for _, a := range attrs {
		switch a.Key {
		case KeyRequestID:
			next.boundRequestID = true
		case KeyBrandID:
			next.boundBrandID = true
		}
	}
	return &next
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.Handler = h.Handler.WithGroup(name)
	return &next
}

// FromContext returns the default logger with the request's IDs bound, for
// code that logs without passing ctx along.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if id := middleware.GetReqID(ctx); id != "" {
		logger = logger.With(KeyRequestID, id)
	}
	if brand := core.BrandIDFromContext(ctx); brand != "" {
		logger = logger.With(KeyBrandID, brand)
	}
	return logger
}

// WithFields is FromContext plus operation-specific fields:
//
//	log := logging.WithFields(ctx, "path", r.URL.Path)
//	log.Warn("request error")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}

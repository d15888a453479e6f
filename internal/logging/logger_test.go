package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/brandimport/internal/core"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "parseLevel(%q)", in)
	}
}

func TestNew_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "json")

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept", "rows", 3)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.EqualValues(t, 3, entry["rows"])
}

func TestFromContext_AddsRequestAndTenant(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "info", "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	ctx = core.ContextWithTenant(ctx, core.Tenant{BrandID: "brand-7"})

	WithFields(ctx, "file_id", "file-1.csv").Info("import started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "brand-7", entry["brand_id"])
	assert.Equal(t, "file-1.csv", entry["file_id"])
}

func TestContextCalls_PickUpRequestIDs(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "info", "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-9")
	ctx = core.ContextWithTenant(ctx, core.Tenant{BrandID: "brand-3"})

	slog.InfoContext(ctx, "file uploaded", "rows", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-9", entry["request_id"])
	assert.Equal(t, "brand-3", entry["brand_id"])

	// Bound IDs are not repeated.
	buf.Reset()
	FromContext(ctx).InfoContext(ctx, "request")
	assert.Equal(t, 1, strings.Count(buf.String(), `"request_id"`))
	assert.Equal(t, 1, strings.Count(buf.String(), `"brand_id"`))
}

func TestFromContext_Bare(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "info", "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	FromContext(context.Background()).Info("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "request_id")
	assert.NotContains(t, entry, "brand_id")
}

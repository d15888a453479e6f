package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/brandimport/internal/config"
	"github.com/JonMunkholm/brandimport/internal/core"
	"github.com/JonMunkholm/brandimport/internal/customer"
	"github.com/JonMunkholm/brandimport/internal/logging"
	"github.com/JonMunkholm/brandimport/internal/mapping"
	"github.com/JonMunkholm/brandimport/internal/storage"
	mw "github.com/JonMunkholm/brandimport/internal/web/middleware"
)

const testSecret = "web-test-secret-0123456789"

const customersCSV = "Full Name,Company Name,Courriel,Phone,Address,Language\n" +
	"Ada Lovelace,Analytical,ada@example.com,555-0101,1 Engine Way,en\n" +
	"Bob Martin,Clean Co,bob@example.com,555-0102,2 Code St,en\n" +
	"Ada Again,Analytical,ada@example.com,555-0103,3 Engine Way,en\n" +
	"Dee,,dee@example.com,555-0104,4 Blank Rd,fr\n"

var customerSchema = []mapping.SchemaField{
	{Key: "fullName", Label: "Full Name"},
	{Key: "companyName", Label: "Company Name"},
	{Key: "email", Label: "Email"},
	{Key: "phone", Label: "Phone"},
	{Key: "address", Label: "Address"},
	{Key: "language", Label: "Language"},
}

// stubResolver maps "Courriel" to email and fails whenever a "boom" header is present.
var stubResolver = mapping.ResolverFunc(func(ctx context.Context, headers, keys []string) (map[string]string, error) {
	if slices.Contains(headers, "boom") {
		return nil, &mapping.ServiceError{Reason: "chat request failed", Err: errors.New("connection refused")}
	}
	return map[string]string{"Courriel": "email"}, nil
})

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{RequestTimeout: time.Minute},
		Upload:   config.UploadConfig{MaxFileSize: 1 << 20},
		Security: config.SecurityConfig{JWTSecret: testSecret, EnableCSP: true},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	return newTestServerWithResolver(t, cfg, stubResolver)
}

func newTestServerWithResolver(t *testing.T, cfg *config.Config, resolver mapping.Resolver) *Server {
	t.Helper()
	return newTestServerWith(t, cfg, resolver, customer.NewMemoryStore())
}

func newTestServerWith(t *testing.T, cfg *config.Config, resolver mapping.Resolver, customers customer.Store) *Server {
	t.Helper()
	files, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	mapper := mapping.NewAutoMapper(resolver, nil, mapping.AutoMapperConfig{})
	svc := core.NewService(files, customers, mapper, core.ServiceConfig{BatchSize: 1})

	srv := NewServer(svc, cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func bearer(t *testing.T, brandID string) string {
	t.Helper()
	tok, err := mw.SignTenantToken([]byte(testSecret), core.Tenant{BrandID: brandID}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

// multipartFile builds a form with one "file" part.
func multipartFile(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mpw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mpw.Close())
	return &buf, mpw.FormDataContentType()
}

func do(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, srv *Server, auth, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartFile(t, filename, contentType, data)
	req := httptest.NewRequest(http.MethodPost, "/upload/file", body)
	req.Header.Set("Content-Type", ct)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return do(t, srv, req)
}

func postJSON(t *testing.T, srv *Server, path, auth string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if s, ok := v.(string); ok {
		body.WriteString(s)
	} else {
		require.NoError(t, json.NewEncoder(&body).Encode(v))
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return do(t, srv, req)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "OK", body.Status)
	assert.Equal(t, 0, body.Imports.Active)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestUploadPreviewImportFlow(t *testing.T) {
	srv := newTestServer(t, testConfig())
	auth := bearer(t, "brand-1")

	rec := upload(t, srv, auth, "customers.csv", "text/csv", []byte(customersCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var preview core.Preview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.Regexp(t, `^file-\d+-[0-9a-f]{12}\.csv$`, preview.FileID)
	assert.Equal(t, []string{"Full Name", "Company Name", "Courriel", "Phone", "Address", "Language"}, preview.Headers)
	assert.Len(t, preview.SampleRows, 4)

	req := httptest.NewRequest(http.MethodGet, "/upload/preview/"+preview.FileID, nil)
	req.Header.Set("Authorization", auth)
	rec = do(t, srv, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var again core.Preview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, preview, again)

	rec = postJSON(t, srv, "/api/auto-map", "", autoMapRequest{Headers: preview.Headers, Schema: customerSchema})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var mapped autoMapResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mapped))
	assert.Equal(t, map[string]string{
		"Full Name":    "fullName",
		"Company Name": "companyName",
		"Courriel":     "email",
		"Phone":        "phone",
		"Address":      "address",
		"Language":     "language",
	}, mapped.Mapping)

	keyToHeader := mapping.FromHeaderMapping(mapped.Mapping, preview.Headers)
	rec = postJSON(t, srv, "/upload/import", auth, importRequest{FileID: preview.FileID, Mapping: keyToHeader})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var outcome core.ImportOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.Equal(t, core.ImportOutcome{
		TotalRows:     4,
		SuccessCount:  2,
		ErrorRows:     []core.RowError{{Row: 4, Reason: "Missing required fields"}},
		DuplicateRows: []core.DuplicateRow{{Row: 3, Email: "ada@example.com"}},
	}, outcome)
	assert.Contains(t, rec.Body.String(), `"totalRows":4`)

	req = httptest.NewRequest(http.MethodGet, "/customers", nil)
	req.Header.Set("Authorization", auth)
	rec = do(t, srv, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []customer.Customer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "brand-1", list[0].BrandID)
	assert.Equal(t, "555-0101", list[0].PhoneNumber)

	// Another brand sees nothing.
	req = httptest.NewRequest(http.MethodGet, "/customers", nil)
	req.Header.Set("Authorization", bearer(t, "brand-2"))
	rec = do(t, srv, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

// flakyStore fails every create after the first.
type flakyStore struct {
	*customer.MemoryStore
	created int
}

func (f *flakyStore) Create(ctx context.Context, c *customer.Customer) error {
	if f.created > 0 {
		return errors.New("write tcp 10.0.0.5:5432: connection reset by peer")
	}
	f.created++
	return f.MemoryStore.Create(ctx, c)
}

func TestImportAbortReportsPartialOutcome(t *testing.T) {
	srv := newTestServerWith(t, testConfig(), stubResolver, &flakyStore{MemoryStore: customer.NewMemoryStore()})
	auth := bearer(t, "brand-1")

	rec := upload(t, srv, auth, "customers.csv", "text/csv", []byte(customersCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var preview core.Preview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))

	m := mapping.ColumnMapping{
		"fullName": "Full Name", "companyName": "Company Name", "email": "Courriel",
		"phone": "Phone", "address": "Address", "language": "Language",
	}
	rec = postJSON(t, srv, "/upload/import", auth, importRequest{FileID: preview.FileID, Mapping: m})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())

	e := decodeError(t, rec)
	assert.Equal(t, "IMP002", e.Code)
	require.NotNil(t, e.Outcome)
	assert.Equal(t, 4, e.Outcome.TotalRows)
	assert.Equal(t, 1, e.Outcome.SuccessCount)
}

func TestUploadErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 64
	srv := newTestServer(t, cfg)
	auth := bearer(t, "brand-1")

	tests := []struct {
		name        string
		filename    string
		contentType string
		data        string
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"pdf passes filter but has no parser", "scan.pdf", "application/pdf", "%PDF-1.7", http.StatusBadRequest, "FILE002", "Unsupported file type: .pdf"},
		{"unknown type", "tool.exe", "application/octet-stream", "MZ", http.StatusBadRequest, "FILE002", "Unsupported file type: .exe"},
		{"empty file", "empty.csv", "text/csv", "", http.StatusBadRequest, "PARSE002", "Could not detect headers"},
		{"xml without list", "doc.xml", "text/xml", "<root/>", http.StatusBadRequest, "PARSE001", "Could not read file: no list of items found"},
		{"too large", "big.csv", "text/csv", "a,b\n" + strings.Repeat("1,2\n", 40), http.StatusRequestEntityTooLarge, "FILE001", "File exceeds the maximum upload size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, srv, auth, tt.filename, tt.contentType, []byte(tt.data))
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			e := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.wantMessage, e.Message)
		})
	}
}

func TestUploadWithoutFile(t *testing.T) {
	srv := newTestServer(t, testConfig())

	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	require.NoError(t, mpw.WriteField("note", "no file here"))
	require.NoError(t, mpw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload/file", &buf)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	req.Header.Set("Authorization", bearer(t, "brand-1"))
	rec := do(t, srv, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", decodeError(t, rec).Message)
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := upload(t, srv, "", "customers.csv", "text/csv", []byte(customersCSV))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "Unauthorized", e.Message)
	assert.Equal(t, "AUTH001", e.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	req.Header.Set("Authorization", "Bearer forged.token.value")
	rec = do(t, srv, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", decodeError(t, rec).Message)

	rec = postJSON(t, srv, "/upload/import", "", importRequest{FileID: "x", Mapping: mapping.ColumnMapping{}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPreviewUnknownFile(t *testing.T) {
	srv := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/upload/preview/file-1-000000000000.csv", nil)
	req.Header.Set("Authorization", bearer(t, "brand-1"))
	rec := do(t, srv, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File not found", decodeError(t, rec).Message)
}

func TestImportRequestErrors(t *testing.T) {
	srv := newTestServer(t, testConfig())
	auth := bearer(t, "brand-1")

	tests := []struct {
		name        string
		body        any
		wantStatus  int
		wantMessage string
	}{
		{"missing mapping", map[string]any{"fileId": "file-1-000000000000.csv"}, http.StatusBadRequest, "Missing fileId or mapping"},
		{"missing file id", map[string]any{"mapping": map[string]string{}}, http.StatusBadRequest, "Missing fileId or mapping"},
		{"malformed json", `{"fileId":`, http.StatusBadRequest, "Invalid request body"},
		{"unknown file", importRequest{FileID: "file-1-000000000000.csv", Mapping: mapping.ColumnMapping{}}, http.StatusNotFound, "File not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, srv, "/upload/import", auth, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantMessage, decodeError(t, rec).Message)
		})
	}
}

func TestAutoMapErrors(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := postJSON(t, srv, "/api/auto-map", "", map[string]any{"headers": []string{"Email"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "Missing headers or schema", e.Message)
	assert.Equal(t, "MAP001", e.Code)

	rec = postJSON(t, srv, "/api/auto-map", "", autoMapRequest{Headers: []string{"boom"}, Schema: customerSchema})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	e = decodeError(t, rec)
	assert.Equal(t, "Failed to generate mapping", e.Message)
	assert.Equal(t, "MAP002", e.Code)
}

func TestAutoMap_OllamaBadReply(t *testing.T) {
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"sorry, no idea"},"done":true}`))
	}))
	defer ollama.Close()

	resolver, err := mapping.NewConfiguredResolver(mapping.ResolverConfig{
		Kind:       mapping.ResolverAuto,
		OllamaURL:  ollama.URL,
		HTTPClient: ollama.Client(),
	})
	require.NoError(t, err)
	srv := newTestServerWithResolver(t, testConfig(), resolver)

	// "Courriel" is in the synonym table, so a rules fallback would hide the failure.
	rec := postJSON(t, srv, "/api/auto-map", "", autoMapRequest{Headers: []string{"Courriel"}, Schema: customerSchema})
	require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
	e := decodeError(t, rec)
	assert.Equal(t, "MAP002", e.Code)
}

func TestRespondError_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logging.New(&buf, "info", "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	srv := newTestServer(t, testConfig())
	rec := postJSON(t, srv, "/api/auto-map", "", map[string]any{"headers": []string{"Email"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, `"request error"`) {
			require.NoError(t, json.Unmarshal([]byte(line), &entry))
		}
	}
	require.NotNil(t, entry, buf.String())
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "/api/auto-map", entry["path"])
	assert.Equal(t, http.MethodPost, entry["method"])
	assert.Equal(t, "MAP001", entry["code"])
	assert.NotEmpty(t, entry["request_id"])
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, UploadLimit: 1}
	srv := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	now := time.Now()
	rl := &rateLimiter{visitors: map[string]*visitor{}, rate: 1, window: time.Minute, now: func() time.Time { return now }}

	assert.True(t, rl.allow("1.2.3.4"))
	assert.False(t, rl.allow("1.2.3.4"))
	assert.True(t, rl.allow("5.6.7.8"), "budgets are per IP")

	now = now.Add(2 * time.Minute)
	assert.True(t, rl.allow("1.2.3.4"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor("FILE004"))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor("UPL001"))
	assert.Equal(t, http.StatusInternalServerError, statusFor("ERR000"))
	assert.Equal(t, http.StatusInternalServerError, statusFor("nope"))
}

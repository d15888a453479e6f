package mapping

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// Ollama defaults.
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama2:7b"
)

// chatClient is the subset of *api.Client the resolver needs.
type chatClient interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}

// OllamaResolver asks a local Ollama model to map headers to keys. Headers in
// any language are accepted; the model is instructed to translate.
type OllamaResolver struct {
	client chatClient
	model  string
}

// NewOllamaResolver connects to the Ollama HTTP API at baseURL.
func NewOllamaResolver(baseURL, model string, httpClient *http.Client) (*OllamaResolver, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaResolver{client: api.NewClient(u, httpClient), model: model}, nil
}

// Resolve implements Resolver. The call is bounded by ctx.
func (r *OllamaResolver) Resolve(ctx context.Context, headers, keys []string) (map[string]string, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    r.model,
		Messages: []api.Message{{Role: "user", Content: buildPrompt(headers, keys)}},
		Stream:   &stream,
		Options:  map[string]any{"temperature": 0},
	}

	var content strings.Builder
	err := r.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, &ServiceError{Reason: "chat request failed", Err: err}
	}

	slog.DebugContext(ctx, "ollama mapping reply", "model", r.model, "content", content.String())
	return ParseResolverReply(content.String())
}

func buildPrompt(headers, keys []string) string {
	var b strings.Builder
	b.WriteString(`You are a multilingual data import assistant.

Map each uploaded column header to the most relevant internal field key from the schema.

Rules:
- Translate headers to English if needed
- Use synonyms and meaning to find the best match
- Use only internal field keys (not labels) as values
- Keep uploaded headers exactly as-is
- Skip headers that don't clearly match
- Respond ONLY with a valid JSON object, no explanations

Valid internal keys:
`)
	for _, k := range keys {
		b.WriteString("- " + k + "\n")
	}
	b.WriteString("\nUploaded headers:\n")
	for _, h := range headers {
		b.WriteString("- " + h + "\n")
	}
	b.WriteString(`
Example:
{
  "Entreprise": "companyName",
  "courriel": "email",
  "Nom Complet": "fullName"
}
`)
	return b.String()
}

package mapping

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRuleResolver(t *testing.T) {
	r, err := DefaultRuleResolver()
	require.NoError(t, err)

	headers := []string{"Nom Complet", "Société", "Courriel", "Téléphone", "Adresse", "Langue", "Notes"}
	got, err := r.Resolve(context.Background(), headers, Keys(customerSchema))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"Nom Complet": "fullName",
		"Société":     "companyName",
		"Courriel":    "email",
		"Téléphone":   "phone",
		"Adresse":     "address",
		"Langue":      "language",
	}, got)
}

func TestRuleResolver_OnlyRequestedKeys(t *testing.T) {
	r := NewRuleResolver(SynonymRules{Synonyms: map[string][]string{
		"email": {"e-mail"},
		"phone": {"tel"},
	}})

	got, err := r.Resolve(context.Background(), []string{"E-Mail", "TEL."}, []string{"phone"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"TEL.": "phone"}, got)
}

func TestParseSynonymRules(t *testing.T) {
	_, err := ParseSynonymRules(strings.NewReader("synonyms: [not, a, map]"))
	assert.Error(t, err)

	r, err := ParseSynonymRules(strings.NewReader("synonyms:\n  language:\n    - idioma\n"))
	require.NoError(t, err)
	got, err := r.Resolve(context.Background(), []string{"Idioma"}, []string{"language"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Idioma": "language"}, got)
}

func TestLoadRuleResolver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("synonyms:\n  email: [correo]\n"), 0o600))

	r, err := LoadRuleResolver(path)
	require.NoError(t, err)
	got, err := r.Resolve(context.Background(), []string{"Correo"}, []string{"email"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Correo": "email"}, got)

	_, err = LoadRuleResolver(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestChainResolver(t *testing.T) {
	first := ResolverFunc(func(ctx context.Context, headers, keys []string) (map[string]string, error) {
		return map[string]string{"Courriel": "email"}, nil
	})
	var secondKeys []string
	second := ResolverFunc(func(ctx context.Context, headers, keys []string) (map[string]string, error) {
		secondKeys = keys
		return map[string]string{"Courriel": "fullName", "Nom": "fullName"}, nil
	})

	got, err := NewChainResolver(first, nil, second).Resolve(context.Background(), []string{"Nom", "Courriel"}, []string{"email", "fullName"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Courriel": "email", "Nom": "fullName"}, got)
	assert.Equal(t, []string{"fullName"}, secondKeys)
}

func TestChainResolver_FailureFallsThrough(t *testing.T) {
	failing := ResolverFunc(func(ctx context.Context, headers, keys []string) (map[string]string, error) {
		return nil, &ServiceError{Reason: "chat request failed"}
	})
	rules := NewRuleResolver(SynonymRules{Synonyms: map[string][]string{"email": {"courriel"}}})

	got, err := NewChainResolver(failing, rules).Resolve(context.Background(), []string{"Courriel"}, []string{"email"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Courriel": "email"}, got)

	_, err = NewChainResolver(failing).Resolve(context.Background(), []string{"Courriel"}, []string{"email"})
	assert.True(t, errors.Is(err, ErrMappingService))

	_, err = NewChainResolver().Resolve(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestNewConfiguredResolver(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ResolverConfig
		want    any
		wantErr bool
	}{
		{"auto without url uses rules", ResolverConfig{Kind: ResolverAuto}, &RuleResolver{}, false},
		{"empty kind is auto", ResolverConfig{}, &RuleResolver{}, false},
		{"auto with url uses ollama", ResolverConfig{Kind: ResolverAuto, OllamaURL: "http://ollama:11434"}, &OllamaResolver{}, false},
		{"ollama", ResolverConfig{Kind: ResolverOllama, OllamaURL: "http://ollama:11434"}, &OllamaResolver{}, false},
		{"rules ignores url", ResolverConfig{Kind: ResolverRules, OllamaURL: "http://ollama:11434"}, &RuleResolver{}, false},
		{"chain", ResolverConfig{Kind: ResolverChain, OllamaURL: "http://ollama:11434"}, &ChainResolver{}, false},
		{"ollama without url", ResolverConfig{Kind: ResolverOllama}, nil, true},
		{"chain without url", ResolverConfig{Kind: ResolverChain}, nil, true},
		{"unknown kind", ResolverConfig{Kind: "gpt"}, nil, true},
		{"missing synonyms file", ResolverConfig{Kind: ResolverRules, SynonymsFile: "/nonexistent/synonyms.yaml"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewConfiguredResolver(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, r)
		})
	}
}

func TestNewConfiguredResolver_OllamaFailureSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"sorry, no idea"},"done":true}`))
	}))
	defer srv.Close()

	headers, keys := []string{"Courriel"}, []string{"email"}

	ollama, err := NewConfiguredResolver(ResolverConfig{Kind: ResolverAuto, OllamaURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	_, err = ollama.Resolve(context.Background(), headers, keys)
	assert.ErrorIs(t, err, ErrMappingService)

	chain, err := NewConfiguredResolver(ResolverConfig{Kind: ResolverChain, OllamaURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	got, err := chain.Resolve(context.Background(), headers, keys)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Courriel": "email"}, got)
}

package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Resolver matches uploaded headers to schema keys by meaning rather than by
// exact label. It returns header -> key; headers it cannot place are omitted.
//
// Implementations may return keys outside keys or headers outside headers;
// the AutoMapper discards those.
type Resolver interface {
	Resolve(ctx context.Context, headers, keys []string) (map[string]string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, headers, keys []string) (map[string]string, error)

func (f ResolverFunc) Resolve(ctx context.Context, headers, keys []string) (map[string]string, error) {
	return f(ctx, headers, keys)
}

// ChainResolver asks each resolver in turn and keeps the first answer for
// every header. Later resolvers only see the keys still unplaced. A failing
// resolver is skipped as long as another one answers; if all fail the last
// error is returned.
type ChainResolver struct {
	resolvers []Resolver
}

// NewChainResolver builds a chain; nil entries are ignored.
func NewChainResolver(resolvers ...Resolver) *ChainResolver {
	c := &ChainResolver{}
	for _, r := range resolvers {
		if r != nil {
			c.resolvers = append(c.resolvers, r)
		}
	}
	return c
}

// Resolve implements Resolver.
func (c *ChainResolver) Resolve(ctx context.Context, headers, keys []string) (map[string]string, error) {
	if len(c.resolvers) == 0 {
		return nil, errors.New("no resolvers configured")
	}

	out := make(map[string]string)
	placed := make(map[string]bool)
	remaining := keys

	var lastErr error
	answered := false
	for _, r := range c.resolvers {
		if len(remaining) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		got, err := r.Resolve(ctx, headers, remaining)
		if err != nil {
			slog.WarnContext(ctx, "resolver failed, trying next", "error", err)
			lastErr = err
			continue
		}
		answered = true

		for _, h := range headers {
			key, ok := got[h]
			if !ok || placed[key] {
				continue
			}
			if _, used := out[h]; used {
				continue
			}
			out[h] = key
			placed[key] = true
		}
		remaining = remainingKeys(remaining, placed)
	}

	if !answered && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func remainingKeys(keys []string, placed map[string]bool) []string {
	var out []string
	for _, k := range keys {
		if !placed[k] {
			out = append(out, k)
		}
	}
	return out
}

// Resolver kinds accepted by NewConfiguredResolver.
const (
	ResolverAuto   = "auto"   // Ollama when a URL is set, rules otherwise
	ResolverOllama = "ollama" // Ollama only; its failures surface to the caller
	ResolverRules  = "rules"  // synonym rules only
	ResolverChain  = "chain"  // Ollama, with the rules answering when it fails
)

// ResolverConfig selects and configures the semantic resolver.
type ResolverConfig struct {
	Kind         string
	OllamaURL    string
	OllamaModel  string
	SynonymsFile string // empty means the built-in synonym table
	HTTPClient   *http.Client
}

// NewConfiguredResolver builds the resolver named by cfg.Kind. Only the chain
// kind falls back to the rules, so a single configured resolver reports its
// own failures.
func NewConfiguredResolver(cfg ResolverConfig) (Resolver, error) {
	kind := cfg.Kind
	if kind == "" {
		kind = ResolverAuto
	}
	if kind == ResolverAuto {
		kind = ResolverRules
		if cfg.OllamaURL != "" {
			kind = ResolverOllama
		}
	}

	switch kind {
	case ResolverRules:
		return loadRules(cfg.SynonymsFile)
	case ResolverOllama, ResolverChain:
		if cfg.OllamaURL == "" {
			return nil, fmt.Errorf("resolver %q needs an Ollama URL", kind)
		}
		ollama, err := NewOllamaResolver(cfg.OllamaURL, cfg.OllamaModel, cfg.HTTPClient)
		if err != nil {
			return nil, err
		}
		if kind == ResolverOllama {
			return ollama, nil
		}
		rules, err := loadRules(cfg.SynonymsFile)
		if err != nil {
			return nil, err
		}
		return NewChainResolver(ollama, rules), nil
	default:
		return nil, fmt.Errorf("unknown resolver %q", cfg.Kind)
	}
}

func loadRules(path string) (*RuleResolver, error) {
	if path == "" {
		return DefaultRuleResolver()
	}
	return LoadRuleResolver(path)
}

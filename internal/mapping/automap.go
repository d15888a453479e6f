package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// Precedence decides which side wins when the exact pass and the resolver
// map the same key to different headers.
type Precedence string

const (
	// PrecedenceExact keeps exact label matches over resolver suggestions.
	PrecedenceExact Precedence = "exact"
	// PrecedenceSemantic lets resolver suggestions replace exact matches.
	PrecedenceSemantic Precedence = "semantic"
)

// ParsePrecedence validates a configured precedence. Empty means exact.
func ParsePrecedence(s string) (Precedence, error) {
	switch Precedence(s) {
	case "", PrecedenceExact:
		return PrecedenceExact, nil
	case PrecedenceSemantic:
		return PrecedenceSemantic, nil
	default:
		return "", fmt.Errorf("unknown mapping precedence %q (want %q or %q)", s, PrecedenceExact, PrecedenceSemantic)
	}
}

// DefaultResolveTimeout bounds one resolver call.
const DefaultResolveTimeout = 30 * time.Second

// AutoMapperConfig tunes an AutoMapper.
type AutoMapperConfig struct {
	Timeout    time.Duration
	Precedence Precedence
}

// AutoMapper resolves headers to schema keys: exact label matches first, then
// the Resolver for whatever is left. Results are cached per (headers, schema).
type AutoMapper struct {
	cache      Cache
	resolver   Resolver
	timeout    time.Duration
	precedence Precedence
	group      singleflight.Group
}

// NewAutoMapper wires an AutoMapper. A nil cache gets a default LRUCache;
// a nil resolver means only exact matches are ever produced.
func NewAutoMapper(resolver Resolver, cache Cache, cfg AutoMapperConfig) *AutoMapper {
	if cache == nil {
		cache = NewLRUCache(DefaultCacheSize, DefaultCacheTTL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultResolveTimeout
	}
	if cfg.Precedence == "" {
		cfg.Precedence = PrecedenceExact
	}
	return &AutoMapper{
		cache:      cache,
		resolver:   resolver,
		timeout:    cfg.Timeout,
		precedence: cfg.Precedence,
	}
}

// Resolve returns the key -> header mapping for headers against schema.
func (a *AutoMapper) Resolve(ctx context.Context, headers []string, schema []SchemaField) (ColumnMapping, error) {
	if m, ok := a.cache.Get(headers, schema); ok {
		slog.DebugContext(ctx, "auto-map cache hit", "headers", len(headers))
		return m, nil
	}

	exact := ExactMatch(headers, schema)
	if len(Unresolved(schema, exact)) == 0 || a.resolver == nil {
		a.cache.Put(headers, schema, exact)
		return exact, nil
	}

	key, err := CacheKey(headers, schema)
	if err != nil {
		return nil, fmt.Errorf("derive cache key: %w", err)
	}

	// The lookup is shared, so it must not die with whichever caller started
	// it. Each caller still stops waiting when its own ctx ends.
	ch := a.group.DoChan(key, func() (any, error) {
		return a.resolveSemantic(context.WithoutCancel(ctx), headers, schema, exact)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("auto-map abandoned: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			slog.DebugContext(ctx, "auto-map shared in-flight resolution")
		}
		return res.Val.(ColumnMapping).Clone(), nil
	}
}

func (a *AutoMapper) resolveSemantic(ctx context.Context, headers []string, schema []SchemaField, exact ColumnMapping) (ColumnMapping, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	byHeader, err := a.resolver.Resolve(callCtx, headers, Keys(schema))
	if err != nil {
		var se *ServiceError
		if !errors.As(err, &se) {
			err = &ServiceError{Reason: "failed to generate mapping", Err: err}
		}
		slog.ErrorContext(ctx, "semantic mapping failed", "error", err, "duration", time.Since(start))
		return nil, err
	}

	semantic := semanticMapping(byHeader, headers, schema)
	merged := merge(exact, semantic, a.precedence)
	slog.InfoContext(ctx, "semantic mapping resolved",
		"exact", len(exact),
		"semantic", len(semantic),
		"merged", len(merged),
		"duration", time.Since(start),
	)

	a.cache.Put(headers, schema, merged)
	return merged, nil
}

// semanticMapping turns resolver output into key -> header, dropping keys not
// in schema and headers that were not uploaded. Ties go to the earlier header.
func semanticMapping(byHeader map[string]string, headers []string, schema []SchemaField) ColumnMapping {
	valid := make(map[string]bool, len(schema))
	for _, f := range schema {
		valid[f.Key] = true
	}

	out := make(ColumnMapping)
	for _, h := range headers {
		key, ok := byHeader[h]
		if !ok || !valid[key] {
			continue
		}
		if _, taken := out[key]; !taken {
			out[key] = h
		}
	}
	return out
}

// merge combines both passes so that no key and no header appears twice. The
// winning side is applied first; the other side only fills gaps.
func merge(exact, semantic ColumnMapping, p Precedence) ColumnMapping {
	first, second := exact, semantic
	if p == PrecedenceSemantic {
		first, second = semantic, exact
	}

	out := make(ColumnMapping, len(first)+len(second))
	used := make(map[string]bool, len(first)+len(second))
	for key, h := range first {
		out[key] = h
		used[h] = true
	}
	for key, h := range second {
		if _, taken := out[key]; taken || used[h] {
			continue
		}
		out[key] = h
		used[h] = true
	}
	return out
}

package mapping

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores resolved mappings keyed by the exact (headers, schema) pair.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(headers []string, schema []SchemaField) (ColumnMapping, bool)
	Put(headers []string, schema []SchemaField, m ColumnMapping)
}

// Default cache sizing.
const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = time.Hour
)

// LRUCache is a bounded, expiring Cache. Last writer wins.
type LRUCache struct {
	lru *expirable.LRU[string, ColumnMapping]
}

// NewLRUCache returns a cache holding at most size entries for at most ttl.
// Non-positive arguments fall back to the defaults.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &LRUCache{lru: expirable.NewLRU[string, ColumnMapping](size, nil, ttl)}
}

// Get returns a copy of the cached mapping.
func (c *LRUCache) Get(headers []string, schema []SchemaField) (ColumnMapping, bool) {
	key, err := CacheKey(headers, schema)
	if err != nil {
		return nil, false
	}
	m, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// Put stores a copy of m.
func (c *LRUCache) Put(headers []string, schema []SchemaField, m ColumnMapping) {
	key, err := CacheKey(headers, schema)
	if err != nil {
		return
	}
	c.lru.Add(key, m.Clone())
}

// cacheKeyMaterial is what gets hashed. Headers and schema keep their order,
// so reordering either produces a different key.
type cacheKeyMaterial struct {
	Headers []string    `msgpack:"h"`
	Schema  [][2]string `msgpack:"s"`
}

// CacheKey derives the stable cache key for a (headers, schema) pair.
func CacheKey(headers []string, schema []SchemaField) (string, error) {
	mat := cacheKeyMaterial{Headers: headers, Schema: make([][2]string, len(schema))}
	for i, f := range schema {
		mat.Schema[i] = [2]string{f.Key, f.Label}
	}
	b, err := msgpack.Marshal(&mat)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(xxhash.Sum64(b), 16), nil
}

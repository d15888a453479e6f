package tabular

import (
	"fmt"
	"sync"
)

// Parser converts raw file bytes into a Dataset.
type Parser interface {
	Format() Format
	Parse(data []byte) (*Dataset, error)
}

// Registry holds one parser per format.
type Registry struct {
	mu      sync.RWMutex
	parsers map[Format]Parser
}

// NewRegistry returns a registry with every built-in adapter.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[Format]Parser)}
	r.Register(NewCSVParser())
	r.Register(NewTSVParser())
	r.Register(NewJSONParser())
	r.Register(NewSpreadsheetParser())
	r.Register(NewXMLParser())
	return r
}

var defaultRegistry = NewRegistry()

// Register adds or replaces the parser for p.Format().
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[p.Format()] = p
}

// Lookup returns the parser for a format.
func (r *Registry) Lookup(f Format) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[f]
	if !ok {
		return nil, fmt.Errorf("%w: no parser for %s", ErrUnsupportedFormat, f)
	}
	return p, nil
}

// Parse detects the format from filename and runs the matching parser.
func (r *Registry) Parse(filename string, data []byte) (*Dataset, error) {
	f, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}
	p, err := r.Lookup(f)
	if err != nil {
		return nil, err
	}
	return p.Parse(data)
}

// Parse uses the built-in registry.
func Parse(filename string, data []byte) (*Dataset, error) {
	return defaultRegistry.Parse(filename, data)
}

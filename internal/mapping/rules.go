package mapping

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed synonyms.yaml
var defaultSynonyms []byte

// SynonymRules lists, per schema key, header spellings that mean that key.
//
//	synonyms:
//	  email: [e-mail, courriel, correo]
type SynonymRules struct {
	Synonyms map[string][]string `yaml:"synonyms"`
}

// RuleResolver matches headers against a synonym table. Comparison ignores
// case, punctuation and whitespace, so "E-Mail" matches "email".
type RuleResolver struct {
	index map[string]string // normalized synonym -> key
}

// NewRuleResolver indexes rules. A synonym claimed by two keys keeps the
// first key in sorted-key order.
func NewRuleResolver(rules SynonymRules) *RuleResolver {
	r := &RuleResolver{index: make(map[string]string)}
	for _, key := range sortedKeys(rules.Synonyms) {
		r.add(key, key)
		for _, s := range rules.Synonyms[key] {
			r.add(s, key)
		}
	}
	return r
}

func (r *RuleResolver) add(spelling, key string) {
	n := compact(spelling)
	if n == "" {
		return
	}
	if _, exists := r.index[n]; !exists {
		r.index[n] = key
	}
}

// DefaultRuleResolver uses the built-in multilingual synonym table.
func DefaultRuleResolver() (*RuleResolver, error) {
	return ParseSynonymRules(bytes.NewReader(defaultSynonyms))
}

// LoadRuleResolver reads a YAML synonyms file.
func LoadRuleResolver(path string) (*RuleResolver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open synonyms file: %w", err)
	}
	defer f.Close()

	return ParseSynonymRules(f)
}

// ParseSynonymRules parses YAML synonym rules from r.
func ParseSynonymRules(r io.Reader) (*RuleResolver, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read synonyms: %w", err)
	}

	var rules SynonymRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse synonyms: %w", err)
	}
	return NewRuleResolver(rules), nil
}

// Resolve implements Resolver. Only keys listed in keys are returned.
func (r *RuleResolver) Resolve(ctx context.Context, headers, keys []string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}

	out := make(map[string]string)
	for _, h := range headers {
		key, ok := r.index[compact(h)]
		if ok && wanted[key] {
			out[h] = key
		}
	}
	return out, nil
}

// compact lowercases s and drops everything but letters and digits.
func compact(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range strings.ToLower(s) {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

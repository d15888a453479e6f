package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMappingService is matched by every *ServiceError.
var ErrMappingService = errors.New("mapping service error")

// ServiceError reports a failed or unusable semantic resolution.
type ServiceError struct {
	Reason string
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mapping service: %s: %v", e.Reason, e.Err)
	}
	return "mapping service: " + e.Reason
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) Is(target error) bool { return target == ErrMappingService }

// wrapperKey is a shape some models answer with:
// {"Uploaded Header": {"Nom": "fullName"}}.
const wrapperKey = "Uploaded Header"

// ExtractJSONObject returns the first balanced {...} object in s. Braces inside
// JSON strings are ignored.
func ExtractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		if end, ok := matchObject(s, start); ok {
			return s[start : end+1], true
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchObject returns the index of the brace closing the object at start.
func matchObject(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// ParseResolverReply turns free-form model output into a header -> key
// mapping. Non-string values are skipped.
func ParseResolverReply(content string) (map[string]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &ServiceError{Reason: "returned no content"}
	}

	obj, ok := ExtractJSONObject(content)
	if !ok {
		return nil, &ServiceError{Reason: "no valid JSON object found"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return nil, &ServiceError{Reason: "no valid JSON object found", Err: err}
	}

	if inner, ok := fields[wrapperKey]; ok {
		var unwrapped map[string]json.RawMessage
		if err := json.Unmarshal(inner, &unwrapped); err == nil {
			fields = unwrapped
		}
	}

	out := make(map[string]string, len(fields))
	for header, raw := range fields {
		var key string
		if err := json.Unmarshal(raw, &key); err != nil {
			continue
		}
		out[header] = key
	}
	return out, nil
}

package schema

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxSanitizePasses bounds how many layers of entity encoding are peeled.
const maxSanitizePasses = 8

// Sanitizer strips markup from model generated strings. Entities are decoded
// after each pass so arrows like "-->" in diagram edges survive; decoding
// repeats until the text is stable so encoded markup cannot come back to life.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

func (s *Sanitizer) String(in string) string {
	out := in
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(out))
		if next == out {
			return strings.TrimSpace(out)
		}
		out = next
	}
	// still changing: keep the escaped form
	return strings.TrimSpace(s.policy.Sanitize(out))
}

// Value walks a decoded JSON value and sanitises every string in place.
func (s *Sanitizer) Value(v any) any {
	switch v := v.(type) {
	case string:
		return s.String(v)
	case []any:
		for i := range v {
			v[i] = s.Value(v[i])
		}
		return v
	case map[string]any:
		for k, item := range v {
			v[k] = s.Value(item)
		}
		return v
	}
	return v
}

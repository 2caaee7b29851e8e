package generator

import (
	"fmt"
	"strings"
	"time"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
)

// Resolve returns the value for a logical field name on a record,
// honoring the feed's custom field-name mapping. A mapped target may be
// a dotted path ("brand.name") resolved by sequential key lookup into
// nested maps; resolution short-circuits to nil as soon as a segment is
// missing. Only key lookups are performed, never code execution.
func Resolve(rec domain.Record, field string, mapping map[string]string) any {
	target := field
	if mapped, ok := mapping[field]; ok {
		target = mapped
	}

	if !strings.Contains(target, ".") {
		return rec[target]
	}

	var value any = rec
	for _, part := range strings.Split(target, ".") {
		m, ok := asMap(value)
		if !ok {
			return nil
		}
		value = m[part]
		if value == nil {
			return nil
		}
	}
	return value
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case domain.Record:
		return m, true
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

// asStrings surfaces collection-valued results as an ordered sequence of
// stringified members. Callers decide how to flatten: CSV joins with
// "|", XML emits repeated value elements, JSON emits a native array.
func asStrings(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, len(s))
		for i, e := range s {
			out[i] = stringify(e)
		}
		return out, true
	default:
		return nil, false
	}
}

// stringify renders a scalar value for an export cell. Timestamps use
// extended ISO-8601. Related objects (the nested maps the record source
// builds, e.g. "brand" -> {"name": ...}) render as their display name so
// a plain "brand" field exports the brand name, not map syntax.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339)
	default:
		if m, ok := asMap(v); ok {
			return stringify(displayValue(m))
		}
		return fmt.Sprintf("%v", v)
	}
}

func displayValue(m map[string]any) any {
	for _, key := range []string{"name", "title"} {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return nil
}

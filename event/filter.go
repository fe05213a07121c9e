package event

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Filter narrows a subscription to events whose payload field matches a glob
// pattern, e.g. "organization_id=org-42" or "status=open*". Build one with
// NewFilter or ParseFilter; the zero Filter matches everything.
type Filter struct {
	field   string
	pattern string
	g       glob.Glob
}

// NewFilter compiles a filter on field.
func NewFilter(field, pattern string) (*Filter, error) {
	if field == "" {
		return nil, fmt.Errorf("filter field is empty")
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile filter pattern %q: %w", pattern, err)
	}
	return &Filter{field: field, pattern: pattern, g: g}, nil
}

// ParseFilter parses "field=pattern". An empty expression yields a nil filter.
func ParseFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	field, pattern, ok := strings.Cut(expr, "=")
	if !ok {
		return nil, fmt.Errorf("filter %q: expected field=pattern", expr)
	}
	return NewFilter(strings.TrimSpace(field), strings.TrimSpace(pattern))
}

// Match reports whether the event passes the filter. A nil filter matches
// everything. Delete payloads often carry only the primary key, so a missing
// field is treated as a match.
func (f *Filter) Match(ev RealtimeEvent) bool {
	if f == nil || f.g == nil {
		return true
	}
	v, ok := ev.Data[f.field]
	if !ok {
		return true
	}
	return f.g.Match(fmt.Sprint(v))
}

func (f *Filter) String() string {
	if f == nil || f.g == nil {
		return ""
	}
	return f.field + "=" + f.pattern
}

package telemetry

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter selects nodes by ID using glob patterns. IDs are matched as
// slash-separated paths, so "eu/**" matches "eu/fra/node-1" and
// "10.0.*" matches "10.0.3".
type Filter struct {
	Include []string
	Exclude []string
}

// NewFilter returns nil when there is nothing to filter.
func NewFilter(include, exclude []string) *Filter {
	if len(include) == 0 && len(exclude) == 0 {
		return nil
	}
	return &Filter{Include: include, Exclude: exclude}
}

// Allows reports whether id passes the include list (empty means all) and
// matches no exclude pattern.
func (f *Filter) Allows(id string) bool {
	if f == nil {
		return true
	}
	if len(f.Include) > 0 && !matchesAny(id, f.Include) {
		return false
	}
	return !matchesAny(id, f.Exclude)
}

// Validate checks that every pattern is well formed.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	for _, p := range append(append([]string{}, f.Include...), f.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid node filter pattern %q", p)
		}
	}
	return nil
}

func matchesAny(id string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, id); err == nil && matched {
			return true
		}
		// Case-insensitive fallback for hostnames.
		if matched, err := doublestar.Match(strings.ToLower(pattern), strings.ToLower(id)); err == nil && matched {
			return true
		}
	}
	return false
}

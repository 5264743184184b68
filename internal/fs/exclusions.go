package fs

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"maat-go/internal/maat"
)

// ExclusionRule declares one class of derived or internal artifacts that
// must not be listed as primary assets.
//
// A path is excluded when one of its directory segments matches Segment
// (a path.Match pattern) and its extension passes the extension filters.
type ExclusionRule struct {
	Segment string
	// Kinds limits the rule to some asset kinds; empty means all kinds.
	Kinds []maat.AssetKind
	// Extensions limits the rule to files with these extensions; empty means all.
	Extensions []string
	// ExceptExtensions exempts files with these extensions from the rule.
	ExceptExtensions []string
}

// DefaultExclusionRules hide the per-model auxiliary JSON kept under "Data"
// folders and the tiled derivatives kept under "tiles" folders. Tileset
// JSON files under "tiles" remain listed: they are the entry point of the
// tiled model.
func DefaultExclusionRules() []ExclusionRule {
	return []ExclusionRule{
		{Segment: "Data", Kinds: []maat.AssetKind{maat.KindModels}, Extensions: []string{".json"}},
		{Segment: "tiles", Kinds: []maat.AssetKind{maat.KindModels}, ExceptExtensions: []string{".json"}},
	}
}

// ExclusionMatcher checks collection paths against a set of exclusion rules.
type ExclusionMatcher struct {
	rules []ExclusionRule
}

// NewExclusionMatcher validates the rules and builds a matcher.
func NewExclusionMatcher(rules []ExclusionRule) (*ExclusionMatcher, error) {
	out := make([]ExclusionRule, 0, len(rules))
	for i, r := range rules {
		r.Segment = strings.TrimSpace(r.Segment)
		if r.Segment == "" {
			return nil, fmt.Errorf("exclusion rule %d: segment is required", i)
		}
		if strings.Contains(r.Segment, "/") {
			return nil, fmt.Errorf("exclusion rule %d: segment %q must not contain '/'", i, r.Segment)
		}
		if _, err := path.Match(r.Segment, ""); err != nil {
			return nil, fmt.Errorf("exclusion rule %d: bad segment pattern %q: %w", i, r.Segment, err)
		}
		r.Extensions = normalizeExts(r.Extensions)
		r.ExceptExtensions = normalizeExts(r.ExceptExtensions)
		out = append(out, r)
	}
	return &ExclusionMatcher{rules: out}, nil
}

// Excluded reports whether relPath (slash separated) is a derived artifact
// for the given kind.
func (m *ExclusionMatcher) Excluded(kind maat.AssetKind, relPath string) bool {
	if len(m.rules) == 0 || relPath == "" {
		return false
	}

	dir, file := path.Split(relPath)
	ext := strings.ToLower(path.Ext(file))
	segments := strings.Split(strings.Trim(dir, "/"), "/")

	for _, r := range m.rules {
		if len(r.Kinds) > 0 && !slices.Contains(r.Kinds, kind) {
			continue
		}
		if len(r.Extensions) > 0 && !slices.Contains(r.Extensions, ext) {
			continue
		}
		if slices.Contains(r.ExceptExtensions, ext) {
			continue
		}
		for _, seg := range segments {
			if matched, _ := path.Match(r.Segment, seg); matched {
				return true
			}
		}
	}
	return false
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// Compile-time check that ExclusionMatcher implements maat.ExclusionRules
var _ maat.ExclusionRules = (*ExclusionMatcher)(nil)

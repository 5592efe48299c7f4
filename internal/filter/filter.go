// Package filter holds the per-file acceptance rules applied during traversal:
// extension allow/deny lists and excluded-item wildcard patterns.
package filter

import (
	"path/filepath"
	"strings"
)

// Extensions is a case-insensitive allow/deny list of file extensions.
// An empty allow list accepts every extension not explicitly excluded.
type Extensions struct {
	allowed  map[string]struct{}
	excluded map[string]struct{}
}

// NewExtensions normalises both lists: leading dots and surrounding
// whitespace are stripped, values are lower-cased, empty values dropped.
func NewExtensions(allowed, excluded []string) Extensions {
	return Extensions{
		allowed:  toSet(allowed),
		excluded: toSet(excluded),
	}
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, ext := range list {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext == "" {
			continue
		}
		set[ext] = struct{}{}
	}
	return set
}

// Allows reports whether the file name passes both lists.
func (e Extensions) Allows(name string) bool {
	if len(e.allowed) == 0 && len(e.excluded) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if _, ok := e.excluded[ext]; ok {
		return false
	}
	if len(e.allowed) == 0 {
		return true
	}
	_, ok := e.allowed[ext]
	return ok
}

// HasAllowed reports whether an allow list is set.
func (e Extensions) HasAllowed() bool {
	return len(e.allowed) > 0
}

// Extend adds extensions to the allow list, used by tools with a fixed
// set of supported formats. When the allow list was empty it becomes
// exactly the given set; otherwise the user list is intersected with it.
func (e Extensions) Extend(supported []string) Extensions {
	sup := toSet(supported)
	out := Extensions{allowed: make(map[string]struct{}), excluded: e.excluded}
	if len(e.allowed) == 0 {
		out.allowed = sup
		return out
	}
	for ext := range e.allowed {
		if _, ok := sup[ext]; ok {
			out.allowed[ext] = struct{}{}
		}
	}
	return out
}

// ExcludedItems is a list of wildcard patterns matched against full paths.
// '*' matches any run of characters, separators included; '?' matches one.
type ExcludedItems struct {
	patterns []string
}

func NewExcludedItems(patterns []string) ExcludedItems {
	clean := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		clean = append(clean, filepath.ToSlash(p))
	}
	return ExcludedItems{patterns: clean}
}

// Matches reports whether path matches any pattern.
func (x ExcludedItems) Matches(path string) bool {
	if len(x.patterns) == 0 {
		return false
	}
	path = filepath.ToSlash(path)
	for _, p := range x.patterns {
		if wildcardMatch(p, path) {
			return true
		}
	}
	return false
}

// MatchesDir reports whether a directory is excluded, either by itself or
// because every path below it is. "*/.git/*" prunes the .git directory.
func (x ExcludedItems) MatchesDir(path string) bool {
	return x.Matches(path) || x.Matches(path+string(filepath.Separator))
}

func (x ExcludedItems) Len() int {
	return len(x.patterns)
}

// wildcardMatch is an iterative glob matcher with single-star backtracking.
// It compares runes, so ? matches one character of a UTF-8 path.
func wildcardMatch(pattern, s string) bool {
	pr, sr := []rune(pattern), []rune(s)
	p, i := 0, 0
	star, mark := -1, 0
	for i < len(sr) {
		switch {
		case p < len(pr) && (pr[p] == '?' || pr[p] == sr[i]):
			p++
			i++
		case p < len(pr) && pr[p] == '*':
			star = p
			mark = i
			p++
		case star != -1:
			p = star + 1
			mark++
			i = mark
		default:
			return false
		}
	}
	for p < len(pr) && pr[p] == '*' {
		p++
	}
	return p == len(pr)
}

// Package directories manages the included, excluded and reference
// directory sets of a search.
package directories

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoValidDirectories is the critical error reported when nothing is left
// to scan after optimisation.
var ErrNoValidDirectories = errors.New("no valid included directories")

type Directories struct {
	Included  []string
	Excluded  []string
	Reference []string
	// Files holds included paths that turned out to be regular files.
	Files []string
}

func New(included, excluded, reference []string) *Directories {
	return &Directories{
		Included:  append([]string(nil), included...),
		Excluded:  append([]string(nil), excluded...),
		Reference: append([]string(nil), reference...),
	}
}

// Optimize normalises every set and removes redundant entries. Returned
// warnings describe dropped paths. ErrNoValidDirectories is returned when
// neither a directory nor a file remains included.
func (d *Directories) Optimize() ([]string, error) {
	var warnings []string

	included := make([]string, 0, len(d.Included))
	var files []string
	for _, p := range unique(absAll(d.Included, &warnings)) {
		info, err := os.Stat(p)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("included path %s is not available: %v", p, err))
			continue
		}
		if info.Mode().IsRegular() {
			files = append(files, p)
			continue
		}
		if !info.IsDir() {
			warnings = append(warnings, fmt.Sprintf("included path %s is neither a file nor a directory", p))
			continue
		}
		included = append(included, p)
	}

	excluded := make([]string, 0, len(d.Excluded))
	for _, p := range unique(absAll(d.Excluded, &warnings)) {
		if _, err := os.Stat(p); err != nil {
			warnings = append(warnings, fmt.Sprintf("excluded path %s is not available: %v", p, err))
			continue
		}
		excluded = append(excluded, p)
	}

	included = dropNested(included)
	excluded = dropNested(excluded)

	// Excluded paths win over included paths at the same or finer level.
	kept := included[:0]
	for _, inc := range included {
		if isUnderAny(inc, excluded) {
			warnings = append(warnings, fmt.Sprintf("included directory %s is inside excluded directory", inc))
			continue
		}
		kept = append(kept, inc)
	}
	included = kept

	keptFiles := files[:0]
	for _, f := range files {
		if isUnderAny(f, excluded) || isUnderAny(f, included) {
			continue
		}
		keptFiles = append(keptFiles, f)
	}
	files = keptFiles

	// Exclusions that no included directory can reach do nothing.
	keptExcluded := excluded[:0]
	for _, exc := range excluded {
		if isUnderAny(exc, included) {
			keptExcluded = append(keptExcluded, exc)
		}
	}
	excluded = keptExcluded

	reference := unique(absAll(d.Reference, &warnings))
	keptRef := reference[:0]
	for _, ref := range reference {
		if !isUnderAny(ref, included) && !containsPath(files, ref) {
			warnings = append(warnings, fmt.Sprintf("reference path %s is not inside any included directory", ref))
			continue
		}
		keptRef = append(keptRef, ref)
	}

	d.Included = included
	d.Excluded = excluded
	d.Reference = keptRef
	d.Files = files

	if len(d.Included) == 0 && len(d.Files) == 0 {
		return warnings, ErrNoValidDirectories
	}
	return warnings, nil
}

// IsExcluded reports whether path equals or lies under an excluded directory.
func (d *Directories) IsExcluded(path string) bool {
	return isUnderAny(path, d.Excluded)
}

// IsInReference reports whether path equals or lies under a reference path.
func (d *Directories) IsInReference(path string) bool {
	return isUnderAny(path, d.Reference)
}

// HasReference reports whether reference directories are active.
func (d *Directories) HasReference() bool {
	return len(d.Reference) > 0
}

func absAll(paths []string, warnings *[]string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			*warnings = append(*warnings, fmt.Sprintf("cannot resolve %s: %v", p, err))
			continue
		}
		out = append(out, abs)
	}
	return out
}

func unique(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// dropNested keeps only the outermost paths. Input must be sorted.
func dropNested(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if isUnderAny(p, out) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func isUnderAny(path string, parents []string) bool {
	for _, parent := range parents {
		if IsSubPath(parent, path) {
			return true
		}
	}
	return false
}

func containsPath(paths []string, p string) bool {
	for _, x := range paths {
		if x == p {
			return true
		}
	}
	return false
}

// IsSubPath reports whether child equals parent or lies beneath it.
func IsSubPath(parent, child string) bool {
	if child == parent {
		return true
	}
	prefix := parent
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(child, prefix)
}

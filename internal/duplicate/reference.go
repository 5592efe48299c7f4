package duplicate

import (
	"dupescan/internal/directories"
	"dupescan/internal/walker"
)

// partition splits files into those under a reference directory and the rest,
// preserving order on both sides.
func partition(files []walker.Entry, dirs *directories.Directories) (refs, normal []walker.Entry) {
	for _, f := range files {
		if dirs.IsInReference(f.Path) {
			refs = append(refs, f)
		} else {
			normal = append(normal, f)
		}
	}
	return refs, normal
}

// hasBothSides reports whether files mix reference and normal entries.
func hasBothSides(files []walker.Entry, dirs *directories.Directories) bool {
	var ref, normal bool
	for _, f := range files {
		if dirs.IsInReference(f.Path) {
			ref = true
		} else {
			normal = true
		}
		if ref && normal {
			return true
		}
	}
	return false
}

// toRefGroups keeps groups having both reference and normal members and
// collapses the reference side to its last member.
func toRefGroups(groups []Group, dirs *directories.Directories) []RefGroup {
	out := make([]RefGroup, 0, len(groups))
	for _, g := range groups {
		refs, normal := partition(g.Files, dirs)
		if len(refs) == 0 || len(normal) == 0 {
			continue
		}
		out = append(out, RefGroup{
			Name:   g.Name,
			Size:   g.Size,
			Hash:   g.Hash,
			Master: refs[len(refs)-1],
			Files:  normal,
		})
	}
	return out
}

package duplicate

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"dupescan/internal/walker"
)

type DeleteMethod int

const (
	DeleteNone DeleteMethod = iota
	DeleteAll
	DeleteAllExceptNewest
	DeleteAllExceptOldest
	DeleteOneOldest
	DeleteOneNewest
	DeleteHardLink
	DeleteAllExceptBiggest
	DeleteAllExceptSmallest
	DeleteOneBiggest
	DeleteOneSmallest
)

var deleteMethodNames = map[DeleteMethod]string{
	DeleteNone:              "none",
	DeleteAll:               "delete",
	DeleteAllExceptNewest:   "all_except_newest",
	DeleteAllExceptOldest:   "all_except_oldest",
	DeleteOneOldest:         "one_oldest",
	DeleteOneNewest:         "one_newest",
	DeleteHardLink:          "hard_link",
	DeleteAllExceptBiggest:  "all_except_biggest",
	DeleteAllExceptSmallest: "all_except_smallest",
	DeleteOneBiggest:        "one_biggest",
	DeleteOneSmallest:       "one_smallest",
}

func (m DeleteMethod) String() string {
	if s, ok := deleteMethodNames[m]; ok {
		return s
	}
	return "unknown"
}

func ParseDeleteMethod(s string) (DeleteMethod, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if norm == "" {
		return DeleteNone, nil
	}
	if norm == "hardlink" {
		return DeleteHardLink, nil
	}
	for m, name := range deleteMethodNames {
		if name == norm {
			return m, nil
		}
	}
	return DeleteNone, fmt.Errorf("unknown delete method %q", s)
}

// Select decides which files of one group the method acts on. keep holds
// the retained files; act holds the files to delete, or to replace with a
// hard link to keep[0] for DeleteHardLink. Groups of fewer than two files
// are never touched.
func Select(method DeleteMethod, files []walker.Entry) (keep, act []walker.Entry) {
	if method == DeleteNone || len(files) < 2 {
		return files, nil
	}

	sorted := slices.Clone(files)
	switch method {
	case DeleteAllExceptNewest, DeleteAllExceptOldest, DeleteOneOldest, DeleteOneNewest, DeleteHardLink:
		slices.SortStableFunc(sorted, func(a, b walker.Entry) int { return cmp.Compare(a.Modified, b.Modified) })
	case DeleteAllExceptBiggest, DeleteAllExceptSmallest, DeleteOneBiggest, DeleteOneSmallest:
		slices.SortStableFunc(sorted, func(a, b walker.Entry) int { return cmp.Compare(a.Size, b.Size) })
	}

	last := len(sorted) - 1
	switch method {
	case DeleteAll:
		return nil, sorted
	case DeleteAllExceptNewest, DeleteAllExceptBiggest:
		return sorted[last:], sorted[:last]
	case DeleteAllExceptOldest, DeleteAllExceptSmallest, DeleteHardLink:
		return sorted[:1], sorted[1:]
	case DeleteOneOldest, DeleteOneSmallest:
		return sorted[1:], sorted[:1]
	case DeleteOneNewest, DeleteOneBiggest:
		return sorted[:last], sorted[last:]
	default:
		return files, nil
	}
}

// selectReferenced returns the normal files of a referenced group to
// delete. The master keeps the content, so DeleteAll removes every normal
// file even when there is only one.
func selectReferenced(method DeleteMethod, files []walker.Entry) []walker.Entry {
	if method == DeleteAll {
		return files
	}
	_, act := Select(method, files)
	return act
}

// RemoveStats summarises one Remover pass.
type RemoveStats struct {
	Removed    int      `json:"removed"`
	Linked     int      `json:"linked"`
	FreedBytes uint64   `json:"freed_bytes"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Remover applies a delete method to finder results. With DryRun it only
// reports what would happen.
type Remover struct {
	Method DeleteMethod
	DryRun bool
	Logger zerolog.Logger
}

// ErrHardLinkUnverified is returned when hard linking is requested for
// groups whose contents were never compared.
var ErrHardLinkUnverified = errors.New("hard linking requires the hash checking method")

// Apply runs the method over every group of res. In referenced mode the
// method only sees the non-reference files; the master is never touched
// and serves as the hard link source.
func (rm *Remover) Apply(ctx context.Context, res *Result) (RemoveStats, error) {
	var stats RemoveStats
	if rm.Method == DeleteNone {
		return stats, nil
	}
	if rm.Method == DeleteHardLink && res.Method != MethodHash {
		return stats, fmt.Errorf("%w, got %s", ErrHardLinkUnverified, res.Method)
	}

	for _, g := range res.Groups {
		if ctx.Err() != nil {
			return stats, ErrStopped
		}
		keep, act := Select(rm.Method, g.Files)
		if rm.Method == DeleteHardLink {
			rm.link(keep[0], act, &stats)
		} else {
			rm.remove(act, &stats)
		}
	}

	for _, g := range res.RefGroups {
		if ctx.Err() != nil {
			return stats, ErrStopped
		}
		if rm.Method == DeleteHardLink {
			rm.link(g.Master, g.Files, &stats)
			continue
		}
		rm.remove(selectReferenced(rm.Method, g.Files), &stats)
	}

	rm.Logger.Info().
		Str("method", rm.Method.String()).
		Bool("dry_run", rm.DryRun).
		Int("removed", stats.Removed).
		Int("linked", stats.Linked).
		Uint64("freed", stats.FreedBytes).
		Msg("delete pass finished")
	return stats, nil
}

func (rm *Remover) remove(files []walker.Entry, stats *RemoveStats) {
	for _, f := range files {
		if rm.DryRun {
			rm.Logger.Info().Str("path", f.Path).Msg("would remove")
		} else if err := os.Remove(f.Path); err != nil {
			stats.Warnings = append(stats.Warnings, fmt.Sprintf("cannot remove %s: %v", f.Path, err))
			continue
		}
		stats.Removed++
		stats.FreedBytes += f.Size
	}
}

func (rm *Remover) link(src walker.Entry, files []walker.Entry, stats *RemoveStats) {
	for _, f := range files {
		if f.Path == src.Path {
			continue
		}
		if rm.DryRun {
			rm.Logger.Info().Str("path", f.Path).Str("source", src.Path).Msg("would hard link")
		} else if err := MakeHardLink(src.Path, f.Path); err != nil {
			stats.Warnings = append(stats.Warnings, err.Error())
			continue
		}
		stats.Linked++
		stats.FreedBytes += f.Size
	}
}

// MakeHardLink replaces dst with a hard link to src. dst is first moved
// aside to a temporary name in its own directory; if linking fails it is
// moved back so the original file survives.
func MakeHardLink(src, dst string) error {
	tmp, err := tempSibling(dst)
	if err != nil {
		return fmt.Errorf("cannot prepare hard link for %s: %w", dst, err)
	}
	if err := os.Rename(dst, tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("cannot move %s aside: %w", dst, err)
	}
	if err := os.Link(src, dst); err != nil {
		if rerr := os.Rename(tmp, dst); rerr != nil {
			return fmt.Errorf("cannot link %s to %s: %v; restoring original failed: %w", dst, src, err, rerr)
		}
		return fmt.Errorf("cannot link %s to %s: %w", dst, src, err)
	}
	if err := os.Remove(tmp); err != nil {
		return fmt.Errorf("linked %s but cannot remove %s: %w", dst, tmp, err)
	}
	return nil
}

func tempSibling(path string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".link-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	// Only the unique name is needed; rename replaces the placeholder.
	return name, nil
}

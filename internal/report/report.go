// Package report renders tool results as text and saves them as JSON.
package report

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"dupescan/internal/duplicate"
	"dupescan/internal/similar"
	"dupescan/internal/symlinks"
	"dupescan/internal/walker"
)

func modified(e walker.Entry) string {
	return time.Unix(int64(e.Modified), 0).Format("2006-01-02")
}

func groupHeader(g duplicate.Group) string {
	switch {
	case g.Hash != "":
		return fmt.Sprintf("hash %s, %s each", g.Hash, humanize.IBytes(g.Size))
	case g.Name != "" && g.Size > 0:
		return fmt.Sprintf("%q, %s each", g.Name, humanize.IBytes(g.Size))
	case g.Name != "":
		return fmt.Sprintf("%q", g.Name)
	default:
		return fmt.Sprintf("%s each", humanize.IBytes(g.Size))
	}
}

// FormatDuplicates renders a duplicate finder result.
func FormatDuplicates(res *duplicate.Result) string {
	stats := res.Stats()
	if stats.Groups == 0 {
		return "No duplicates found.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Duplicates by %s:\n\n", res.Method)

	for i, g := range res.Groups {
		fmt.Fprintf(&b, "Group %d (%d files, %s):\n", i+1, len(g.Files), groupHeader(g))
		for _, f := range g.Files {
			fmt.Fprintf(&b, "  %s (size: %s, modified: %s)\n", f.Path, humanize.IBytes(f.Size), modified(f))
		}
		b.WriteString("\n")
	}

	for i, g := range res.RefGroups {
		header := groupHeader(duplicate.Group{Name: g.Name, Size: g.Size, Hash: g.Hash})
		fmt.Fprintf(&b, "Group %d (%d files, %s):\n", i+1, len(g.Files), header)
		fmt.Fprintf(&b, "  = %s (reference)\n", g.Master.Path)
		for _, f := range g.Files {
			fmt.Fprintf(&b, "  - %s (size: %s, modified: %s)\n", f.Path, humanize.IBytes(f.Size), modified(f))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Summary: %s groups, %s duplicate files", humanize.Comma(int64(stats.Groups)), humanize.Comma(int64(stats.Duplicates)))
	if res.Method != duplicate.MethodName {
		fmt.Fprintf(&b, ", %s wasted", humanize.IBytes(stats.LostSpace))
	}
	b.WriteString("\n")
	return b.String()
}

// FormatRemoval renders what a delete pass did.
func FormatRemoval(stats duplicate.RemoveStats, dryRun bool) string {
	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}
	s := fmt.Sprintf("%s %d files and hard linked %d, freeing %s\n", verb, stats.Removed, stats.Linked, humanize.IBytes(stats.FreedBytes))
	for _, w := range stats.Warnings {
		s += fmt.Sprintf("  ! %s\n", w)
	}
	return s
}

func formatImage(prefix string, e similar.ImageEntry) string {
	return fmt.Sprintf("  %s%s (%dx%d, %s, distance %d)\n", prefix, e.Path, e.Width, e.Height, humanize.IBytes(e.Size), e.Similarity)
}

// FormatImages renders a similar images result.
func FormatImages(res *similar.Result) string {
	if res.Info.Groups == 0 {
		return "No similar images found.\n"
	}

	var b strings.Builder
	b.WriteString("Similar images:\n\n")

	for i, g := range res.Groups {
		fmt.Fprintf(&b, "Group %d (%d images, hash %s):\n", i+1, len(g), hex.EncodeToString(g[0].Hash))
		for _, e := range g {
			b.WriteString(formatImage("", e))
		}
		b.WriteString("\n")
	}
	for i, g := range res.RefGroups {
		fmt.Fprintf(&b, "Group %d (%d images):\n", i+1, len(g.Files))
		b.WriteString(formatImage("= ", g.Master))
		for _, e := range g.Files {
			b.WriteString(formatImage("- ", e))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Summary: %d groups, %d similar images\n", res.Info.Groups, res.Info.SimilarImages)
	return b.String()
}

// FormatSymlinks renders broken links.
func FormatSymlinks(res *symlinks.Result) string {
	if len(res.Links) == 0 {
		return "No invalid symlinks found.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INVALID SYMLINKS (%d):\n", len(res.Links))
	for _, l := range res.Links {
		fmt.Fprintf(&b, "  %s -> %s (%s)\n", l.Path, l.Destination, l.Kind)
	}
	return b.String()
}

// FormatWarnings lists warnings, at most limit of them when limit > 0.
func FormatWarnings(warnings []string, limit int) string {
	if len(warnings) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Warnings (%d):\n", len(warnings))
	for i, w := range warnings {
		if limit > 0 && i == limit {
			fmt.Fprintf(&b, "  ... and %d more (see log)\n", len(warnings)-limit)
			break
		}
		fmt.Fprintf(&b, "  ! %s\n", w)
	}
	return b.String()
}

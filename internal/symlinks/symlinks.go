// Package symlinks reports symbolic links whose target cannot be resolved.
package symlinks

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"dupescan/internal/config"
	"dupescan/internal/directories"
	"dupescan/internal/filter"
	"dupescan/internal/progress"
	"dupescan/internal/walker"
)

var ErrStopped = walker.ErrStopped

// Link is one broken symlink.
type Link struct {
	Path        string             `json:"path"`
	Destination string             `json:"destination"`
	Kind        walker.SymlinkKind `json:"kind"`
	Modified    uint64             `json:"modified"`
}

type Result struct {
	Links    []Link   `json:"links"`
	Warnings []string `json:"warnings,omitempty"`
}

type Finder struct {
	cfg    *config.Config
	logger zerolog.Logger
	sink   chan<- progress.Data
}

func NewFinder(cfg *config.Config, logger zerolog.Logger, sink chan<- progress.Data) (*Finder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Finder{cfg: cfg, logger: logger.With().Str("tool", "invalid_symlinks").Logger(), sink: sink}, nil
}

// Run walks the configured directories and returns every broken link
// sorted by path. Size filters do not apply to links.
func (f *Finder) Run(ctx context.Context) (*Result, error) {
	dirs := directories.New(f.cfg.Directories.Included, f.cfg.Directories.Excluded, f.cfg.Directories.Reference)
	warnings, err := dirs.Optimize()
	if err != nil {
		return nil, err
	}

	p := walker.Params{
		Directories:    dirs,
		Extensions:     filter.NewExtensions(f.cfg.Filters.AllowedExtensions, f.cfg.Filters.ExcludedExtensions),
		ExcludedItems:  filter.NewExcludedItems(f.cfg.Filters.ExcludedItems),
		Recursive:      f.cfg.Filters.Recursive,
		SameFilesystem: f.cfg.Filters.SameFilesystem,
		Mode:           walker.ModeInvalidSymlinks,
		Threads:        f.cfg.ThreadCount(),
		Progress:       progress.Start(f.sink, progress.StageSymlinks, 0, 0),
		Logger:         f.logger,
	}
	entries, walkWarnings, err := walker.Collect(ctx, p)
	p.Progress.Stop()
	if err != nil {
		return nil, err
	}

	res := &Result{Warnings: append(warnings, walkWarnings...)}
	for _, e := range entries {
		res.Links = append(res.Links, Link{
			Path:        e.Path,
			Destination: e.Symlink.Destination,
			Kind:        e.Symlink.Kind,
			Modified:    e.Modified,
		})
	}

	f.logger.Info().Int("links", len(res.Links)).Int("warnings", len(res.Warnings)).Msg("invalid symlink search finished")
	return res, nil
}

// Remove deletes the links themselves, never their targets.
func Remove(ctx context.Context, links []Link, dryRun bool, logger zerolog.Logger) (int, []string, error) {
	var removed int
	var warnings []string
	for _, l := range links {
		if ctx.Err() != nil {
			return removed, warnings, ErrStopped
		}
		if dryRun {
			logger.Info().Str("path", l.Path).Msg("would remove link")
			removed++
			continue
		}
		if err := os.Remove(l.Path); err != nil {
			warnings = append(warnings, fmt.Sprintf("cannot remove %s: %v", l.Path, err))
			continue
		}
		removed++
	}
	return removed, warnings, nil
}

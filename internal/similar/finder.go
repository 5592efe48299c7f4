// Package similar finds visually similar images by comparing perceptual
// hashes within a Hamming distance tolerance.
package similar

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"dupescan/internal/cache"
	"dupescan/internal/config"
	"dupescan/internal/directories"
	"dupescan/internal/filter"
	"dupescan/internal/progress"
	"dupescan/internal/walker"
)

// ErrStopped is returned when the run was cancelled.
var ErrStopped = walker.ErrStopped

type Options struct {
	HashSize        int
	Alg             HashAlg
	Filter          ResizeFilter
	Tolerance       uint32
	ExcludeSameSize bool
	IgnoreHardLinks bool
	DeleteOutdated  bool
	SaveJSON        bool
}

// OptionsFromConfig parses the images section of cfg.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	alg, err := ParseHashAlg(cfg.Images.HashAlg)
	if err != nil {
		return Options{}, &config.ValidationError{Field: "images.hash_alg", Message: err.Error()}
	}
	flt, err := ParseResizeFilter(cfg.Images.ResizeFilter)
	if err != nil {
		return Options{}, &config.ValidationError{Field: "images.resize_filter", Message: err.Error()}
	}
	return Options{
		HashSize:        cfg.Images.HashSize,
		Alg:             alg,
		Filter:          flt,
		Tolerance:       uint32(cfg.Images.Tolerance),
		ExcludeSameSize: cfg.Images.ExcludeSameSize,
		IgnoreHardLinks: cfg.Images.IgnoreHardLinks,
		DeleteOutdated:  cfg.Cache.DeleteOutdated,
		SaveJSON:        cfg.Cache.SaveJSON,
	}, nil
}

type Finder struct {
	cfg    *config.Config
	opts   Options
	store  *cache.Store
	logger zerolog.Logger
	sink   chan<- progress.Data
}

// NewFinder validates cfg. store may be nil to disable caching and sink
// may be nil to disable progress reporting.
func NewFinder(cfg *config.Config, store *cache.Store, logger zerolog.Logger, sink chan<- progress.Data) (*Finder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !cfg.Cache.Enabled {
		store = nil
	}
	return &Finder{
		cfg:    cfg,
		opts:   opts,
		store:  store,
		logger: logger.With().Str("tool", "similar_images").Logger(),
		sink:   sink,
	}, nil
}

// Run discovers, hashes and clusters images. On cancellation it returns
// ErrStopped and no result.
func (f *Finder) Run(ctx context.Context) (*Result, error) {
	dirs := directories.New(f.cfg.Directories.Included, f.cfg.Directories.Excluded, f.cfg.Directories.Reference)
	warnings, err := dirs.Optimize()
	if err != nil {
		return nil, err
	}

	f.logger.Info().
		Int("hash_size", f.opts.HashSize).
		Str("alg", f.opts.Alg.String()).
		Uint32("tolerance", f.opts.Tolerance).
		Strs("included", dirs.Included).
		Msg("starting similar image search")

	entries, walkWarnings, err := f.discover(ctx, dirs)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, walkWarnings...)

	hashed, hashWarnings, err := f.hashImages(ctx, entries)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, hashWarnings...)

	var usable []ImageEntry
	for _, e := range hashed {
		if e.Error != "" {
			warnings = append(warnings, fmt.Sprintf("%s: %s", e.Path, e.Error))
			continue
		}
		if isBroken(e.Hash) {
			f.logger.Debug().Str("path", e.Path).Msg("skipping image with degenerate hash")
			continue
		}
		usable = append(usable, e)
	}

	hashes := groupByHash(usable)
	in := plainInput(hashes)
	if dirs.HasReference() {
		in = referencedInput(hashes, dirs.IsInReference)
	}

	tracker := progress.Start(f.sink, progress.StageImageComparing, int64(len(in.seeds)), 0)
	groups, err := cluster(ctx, in, f.opts.Tolerance, f.cfg.ThreadCount(), tracker)
	tracker.Stop()
	if err != nil || ctx.Err() != nil {
		return nil, ErrStopped
	}

	if f.opts.ExcludeSameSize {
		groups = excludeSameSize(groups)
	}
	if err := checkClusters(groups); err != nil {
		return nil, err
	}

	res := &Result{Referenced: dirs.HasReference(), Warnings: warnings}
	if res.Referenced {
		res.RefGroups = toRefGroups(groups, dirs)
		for _, g := range res.RefGroups {
			res.Info.Groups++
			res.Info.SimilarImages += len(g.Files)
		}
	} else {
		res.Groups = groups
		for _, g := range groups {
			res.Info.Groups++
			res.Info.SimilarImages += len(g) - 1
		}
	}

	f.logger.Info().
		Int("groups", res.Info.Groups).
		Int("similar", res.Info.SimilarImages).
		Int("warnings", len(res.Warnings)).
		Msg("similar image search finished")
	return res, nil
}

// discover walks the directories for image files, optionally keeping one
// path per inode.
func (f *Finder) discover(ctx context.Context, dirs *directories.Directories) ([]ImageEntry, []string, error) {
	p := walker.Params{
		Directories:    dirs,
		Extensions:     filter.NewExtensions(f.cfg.Filters.AllowedExtensions, f.cfg.Filters.ExcludedExtensions).Extend(Extensions),
		ExcludedItems:  filter.NewExcludedItems(f.cfg.Filters.ExcludedItems),
		MinSize:        f.cfg.Filters.MinimalFileSize,
		MaxSize:        f.cfg.Filters.MaximalFileSize,
		Recursive:      f.cfg.Filters.Recursive,
		SameFilesystem: f.cfg.Filters.SameFilesystem,
		Mode:           walker.ModeFiles,
		Threads:        f.cfg.ThreadCount(),
		Progress:       progress.Start(f.sink, progress.StageCollectingFiles, 0, 0),
		Logger:         f.logger,
	}
	res, err := walker.Walk(ctx, p, walker.ByInode)
	p.Progress.Stop()
	if err != nil {
		return nil, nil, err
	}

	var files []walker.Entry
	if f.opts.IgnoreHardLinks {
		files = walker.TakeOnePerInode(res.Groups)
	} else {
		for _, k := range res.Groups.Keys() {
			files = append(files, res.Groups.Get(k)...)
		}
	}

	out := make([]ImageEntry, len(files))
	for i, e := range files {
		out[i] = ImageEntry{Path: e.Path, Size: e.Size, Modified: e.Modified}
	}
	return out, res.Warnings, nil
}

func (f *Finder) cacheName() string {
	return cache.ImagesName(f.opts.HashSize, f.opts.Alg.String(), f.opts.Filter.String())
}

// hashImages reuses cached hashes and computes the rest on a worker pool.
// The cache is saved back with every result, failures included.
func (f *Finder) hashImages(ctx context.Context, entries []ImageEntry) ([]ImageEntry, []string, error) {
	var warnings []string
	var loaded map[string]ImageEntry
	if f.store != nil {
		loaded, warnings = cache.Load[ImageEntry](f.store, f.cacheName(), f.opts.DeleteOutdated)
	}

	var pending []int
	var pendingBytes uint64
	for i := range entries {
		if rec, ok := loaded[entries[i].Path]; ok && cache.Valid(rec, entries[i].Size, entries[i].Modified) {
			entries[i] = rec
			continue
		}
		pending = append(pending, i)
		pendingBytes += entries[i].Size
	}
	f.logger.Debug().Int("cached", len(entries)-len(pending)).Int("to_hash", len(pending)).Msg("image hashing")

	tracker := progress.Start(f.sink, progress.StageImageHashing, int64(len(pending)), pendingBytes)
	err := f.runPool(ctx, entries, pending, tracker)
	tracker.Stop()
	if err != nil {
		return nil, nil, err
	}
	if ctx.Err() != nil {
		return nil, nil, ErrStopped
	}

	if f.store != nil {
		merged := loaded
		if merged == nil {
			merged = make(map[string]ImageEntry, len(entries))
		}
		for _, e := range entries {
			merged[e.Path] = e
		}
		warnings = append(warnings, cache.Save(f.store, f.cacheName(), merged, 0, f.opts.SaveJSON)...)
	}
	return entries, warnings, nil
}

func (f *Finder) runPool(ctx context.Context, entries []ImageEntry, pending []int, tracker *progress.Tracker) error {
	if len(pending) == 0 {
		return nil
	}
	pool, err := ants.NewPool(f.cfg.ThreadCount())
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	h := imageHasher{size: f.opts.HashSize, alg: f.opts.Alg, filter: f.opts.Filter}
	var wg sync.WaitGroup
	for _, i := range pending {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			h.hashFile(&entries[i])
			tracker.Add(1, entries[i].Size)
		})
		if submitErr != nil {
			wg.Done()
			return fmt.Errorf("failed to submit image task: %w", submitErr)
		}
	}
	wg.Wait()
	return nil
}

func toRefGroups(groups [][]ImageEntry, dirs *directories.Directories) []RefGroup {
	out := make([]RefGroup, 0, len(groups))
	for _, g := range groups {
		var refs, normal []ImageEntry
		for _, e := range g {
			if dirs.IsInReference(e.Path) {
				refs = append(refs, e)
			} else {
				normal = append(normal, e)
			}
		}
		if len(refs) == 0 || len(normal) == 0 {
			continue
		}
		out = append(out, RefGroup{Master: refs[len(refs)-1], Files: normal})
	}
	return out
}

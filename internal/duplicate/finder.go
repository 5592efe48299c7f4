package duplicate

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"dupescan/internal/cache"
	"dupescan/internal/config"
	"dupescan/internal/directories"
	"dupescan/internal/filter"
	"dupescan/internal/hash"
	"dupescan/internal/progress"
	"dupescan/internal/walker"
)

// ErrStopped is returned when the run was cancelled.
var ErrStopped = walker.ErrStopped

type Options struct {
	Method             CheckingMethod
	HashType           hash.Type
	CaseSensitiveNames bool
	IgnoreHardLinks    bool
	UsePrehashCache    bool
	DeleteOutdated     bool
	SaveJSON           bool
	MinimalCacheSize   uint64
	DeleteMethod       DeleteMethod
	DryRun             bool
}

// OptionsFromConfig parses the duplicate finder section of cfg.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	method, err := ParseCheckingMethod(cfg.Duplicates.Method)
	if err != nil {
		return Options{}, &config.ValidationError{Field: "duplicates.method", Message: err.Error()}
	}
	ht, err := hash.ParseType(cfg.Duplicates.HashType)
	if err != nil {
		return Options{}, &config.ValidationError{Field: "duplicates.hash_type", Message: err.Error()}
	}
	del, err := ParseDeleteMethod(cfg.Duplicates.DeleteMethod)
	if err != nil {
		return Options{}, &config.ValidationError{Field: "duplicates.delete_method", Message: err.Error()}
	}
	if del == DeleteHardLink && method != MethodHash {
		return Options{}, &config.ValidationError{
			Field:   "duplicates.delete_method",
			Message: fmt.Sprintf("hard_link needs method hash, got %s", method),
		}
	}
	return Options{
		Method:             method,
		HashType:           ht,
		CaseSensitiveNames: cfg.Duplicates.CaseSensitiveNames,
		IgnoreHardLinks:    cfg.Duplicates.IgnoreHardLinks,
		UsePrehashCache:    cfg.Cache.UsePrehash,
		DeleteOutdated:     cfg.Cache.DeleteOutdated,
		SaveJSON:           cfg.Cache.SaveJSON,
		MinimalCacheSize:   cfg.Cache.MinimalFileSize,
		DeleteMethod:       del,
		DryRun:             cfg.Duplicates.DryRun,
	}, nil
}

// Finder searches for duplicate files. It holds only immutable settings;
// every Run builds its own state.
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
		logger: logger.With().Str("tool", "duplicates").Logger(),
		sink:   sink,
	}, nil
}

// Remover returns a Remover for the configured delete method.
func (f *Finder) Remover() *Remover {
	return &Remover{Method: f.opts.DeleteMethod, DryRun: f.opts.DryRun, Logger: f.logger}
}

// run carries the mutable state of one search.
type run struct {
	*Finder
	dirs     *directories.Directories
	params   walker.Params
	warnings []string
	info     Info
}

func (f *Finder) newRun(dirs *directories.Directories, warnings []string) *run {
	return &run{
		Finder:   f,
		dirs:     dirs,
		warnings: warnings,
		params: walker.Params{
			Directories:    dirs,
			Extensions:     filter.NewExtensions(f.cfg.Filters.AllowedExtensions, f.cfg.Filters.ExcludedExtensions),
			ExcludedItems:  filter.NewExcludedItems(f.cfg.Filters.ExcludedItems),
			MinSize:        f.cfg.Filters.MinimalFileSize,
			MaxSize:        f.cfg.Filters.MaximalFileSize,
			Recursive:      f.cfg.Filters.Recursive,
			SameFilesystem: f.cfg.Filters.SameFilesystem,
			Mode:           walker.ModeFiles,
			Threads:        f.cfg.ThreadCount(),
			Logger:         f.logger,
		},
	}
}

// Run executes the configured checking method. On cancellation it returns
// ErrStopped and no result. directories.ErrNoValidDirectories is returned
// when nothing can be scanned.
func (f *Finder) Run(ctx context.Context) (*Result, error) {
	dirs := directories.New(f.cfg.Directories.Included, f.cfg.Directories.Excluded, f.cfg.Directories.Reference)
	warnings, err := dirs.Optimize()
	if err != nil {
		return nil, err
	}

	r := f.newRun(dirs, warnings)

	f.logger.Info().Str("method", f.opts.Method.String()).Strs("included", dirs.Included).Msg("starting duplicate search")

	res := &Result{Method: f.opts.Method, Referenced: dirs.HasReference()}

	switch f.opts.Method {
	case MethodName:
		groups, err := r.checkFilesName(ctx)
		if err != nil {
			return nil, err
		}
		r.finish(res, groups, &r.info.ByName, false)
	case MethodSizeName:
		groups, err := r.checkFilesSizeName(ctx)
		if err != nil {
			return nil, err
		}
		r.finish(res, groups, &r.info.BySizeName, true)
	case MethodSize:
		buckets, err := r.checkFilesSize(ctx)
		if err != nil {
			return nil, err
		}
		r.finish(res, bucketsToGroups(buckets), &r.info.BySize, true)
	case MethodHash:
		buckets, err := r.checkFilesSize(ctx)
		if err != nil {
			return nil, err
		}
		r.recordSizeStats(buckets)
		groups, err := r.checkFilesHash(ctx, buckets)
		if err != nil {
			return nil, err
		}
		r.finish(res, groups, &r.info.ByHash, true)
	default:
		return nil, fmt.Errorf("unsupported checking method %d", f.opts.Method)
	}

	res.Info = r.info
	res.Warnings = r.warnings

	stats := res.Stats()
	f.logger.Info().
		Int("groups", stats.Groups).
		Int("duplicates", stats.Duplicates).
		Uint64("lost_space", stats.LostSpace).
		Int("warnings", len(res.Warnings)).
		Msg("duplicate search finished")

	return res, nil
}

// finish applies the reference split and records statistics.
func (r *run) finish(res *Result, groups []Group, stats *Stats, countSpace bool) {
	if r.dirs.HasReference() {
		res.RefGroups = toRefGroups(groups, r.dirs)
		*stats = refGroupStats(res.RefGroups, countSpace)
		return
	}
	res.Groups = groups
	*stats = groupStats(groups, countSpace)
}

func (r *run) recordSizeStats(buckets []sizeBucket) {
	groups := bucketsToGroups(buckets)
	if r.dirs.HasReference() {
		r.info.BySize = refGroupStats(toRefGroups(groups, r.dirs), true)
		return
	}
	r.info.BySize = groupStats(groups, true)
}

func (r *run) startTracker(stage progress.Stage, total int64, bytes uint64) *progress.Tracker {
	return progress.Start(r.sink, stage, total, bytes)
}

func (r *run) collect(ctx context.Context) ([]walker.Entry, error) {
	p := r.params
	p.Progress = r.startTracker(progress.StageCollectingFiles, 0, 0)
	entries, warnings, err := walker.Collect(ctx, p)
	p.Progress.Stop()
	if err != nil {
		return nil, stopped(err)
	}
	r.warnings = append(r.warnings, warnings...)
	return entries, nil
}

func stopped(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrStopped
	}
	return err
}

func (r *run) checkFilesName(ctx context.Context) ([]Group, error) {
	entries, err := r.collect(ctx)
	if err != nil {
		return nil, err
	}

	key := walker.ByNameFold
	if r.opts.CaseSensitiveNames {
		key = walker.ByName
	}
	groups := walker.NewGroups[string]()
	for i := range entries {
		groups.Add(key(&entries[i]), entries[i])
	}

	keys := slices.Clone(groups.Keys())
	slices.Sort(keys)

	var out []Group
	for _, k := range keys {
		files := groups.Get(k)
		if len(files) < 2 {
			continue
		}
		out = append(out, Group{Name: k, Files: files})
	}
	return out, nil
}

func (r *run) checkFilesSizeName(ctx context.Context) ([]Group, error) {
	entries, err := r.collect(ctx)
	if err != nil {
		return nil, err
	}

	key := walker.BySizeNameFold
	if r.opts.CaseSensitiveNames {
		key = walker.BySizeName
	}
	groups := walker.NewGroups[walker.SizeName]()
	for i := range entries {
		groups.Add(key(&entries[i]), entries[i])
	}

	keys := slices.Clone(groups.Keys())
	slices.SortFunc(keys, func(a, b walker.SizeName) int {
		if c := cmp.Compare(a.Size, b.Size); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	var out []Group
	for _, k := range keys {
		files := groups.Get(k)
		if len(files) < 2 {
			continue
		}
		out = append(out, Group{Name: k.Name, Size: k.Size, Files: files})
	}
	return out, nil
}

// sizeBucket holds files sharing one size, in path order.
type sizeBucket struct {
	size  uint64
	files []walker.Entry
}

func bucketsToGroups(buckets []sizeBucket) []Group {
	out := make([]Group, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, Group{Size: b.size, Files: b.files})
	}
	return out
}

// checkFilesSize returns size buckets with more than one member, sorted by
// size. Hard links are collapsed first when configured. With reference
// directories, buckets lacking either side are dropped but keep all members.
func (r *run) checkFilesSize(ctx context.Context) ([]sizeBucket, error) {
	p := r.params
	p.Progress = r.startTracker(progress.StageCollectingFiles, 0, 0)
	res, err := walker.Walk(ctx, p, walker.BySize)
	p.Progress.Stop()
	if err != nil {
		return nil, stopped(err)
	}
	r.warnings = append(r.warnings, res.Warnings...)

	sizes := slices.Clone(res.Groups.Keys())
	slices.Sort(sizes)

	var out []sizeBucket
	for _, size := range sizes {
		if ctx.Err() != nil {
			return nil, ErrStopped
		}
		files := res.Groups.Get(size)
		if len(files) < 2 {
			continue
		}
		if r.opts.IgnoreHardLinks {
			files = walker.CollapseHardLinks(files)
			if len(files) < 2 {
				continue
			}
		}
		if r.dirs.HasReference() && !hasBothSides(files, r.dirs) {
			continue
		}
		out = append(out, sizeBucket{size: size, files: files})
	}
	return out, nil
}

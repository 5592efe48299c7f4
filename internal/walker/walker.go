package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"dupescan/internal/directories"
	"dupescan/internal/filter"
	"dupescan/internal/progress"
)

// ErrStopped is returned by every stage when the caller cancels the run.
var ErrStopped = errors.New("search stopped by user")

type Mode int

const (
	// ModeFiles collects regular files.
	ModeFiles Mode = iota
	// ModeInvalidSymlinks collects only symlinks whose target does not resolve.
	ModeInvalidSymlinks
)

// waveBatchSize caps how many directories of one wave are scheduled at once.
const waveBatchSize = 4096

type Params struct {
	Directories    *directories.Directories
	Extensions     filter.Extensions
	ExcludedItems  filter.ExcludedItems
	MinSize        uint64
	MaxSize        uint64
	Recursive      bool
	SameFilesystem bool
	Mode           Mode
	Threads        int
	Progress       *progress.Tracker
	Logger         zerolog.Logger
}

// Groups is an insertion-ordered multimap from key to entries.
type Groups[K comparable] struct {
	keys    []K
	buckets map[K][]Entry
}

func NewGroups[K comparable]() *Groups[K] {
	return &Groups[K]{buckets: make(map[K][]Entry)}
}

func (g *Groups[K]) Add(key K, e Entry) {
	bucket, ok := g.buckets[key]
	if !ok {
		g.keys = append(g.keys, key)
	}
	g.buckets[key] = append(bucket, e)
}

// Keys returns keys in first-insertion order.
func (g *Groups[K]) Keys() []K { return g.keys }

func (g *Groups[K]) Get(key K) []Entry { return g.buckets[key] }

func (g *Groups[K]) Len() int { return len(g.keys) }

type Result[K comparable] struct {
	Groups   *Groups[K]
	Warnings []string
}

// Walk collects entries under the configured roots and groups them by key.
// Entries are sorted by path before grouping so that bucket order is
// reproducible regardless of scheduling.
func Walk[K comparable](ctx context.Context, p Params, key func(*Entry) K) (*Result[K], error) {
	entries, warnings, err := Collect(ctx, p)
	if err != nil {
		return nil, err
	}

	groups := NewGroups[K]()
	for i := range entries {
		groups.Add(key(&entries[i]), entries[i])
	}

	return &Result[K]{Groups: groups, Warnings: warnings}, nil
}

type dirJob struct {
	path string
	dev  uint64
}

type dirResult struct {
	subdirs  []dirJob
	entries  []Entry
	warnings []string
}

// Collect returns every accepted entry sorted by path, plus warnings for
// entries that could not be read.
func Collect(ctx context.Context, p Params) ([]Entry, []string, error) {
	if p.Directories == nil {
		return nil, nil, fmt.Errorf("walker: no directories configured")
	}
	if p.MaxSize == 0 {
		p.MaxSize = math.MaxUint64
	}
	threads := p.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	var entries []Entry
	var warnings []string

	// Root files go first, sequentially.
	for _, path := range p.Directories.Files {
		if ctx.Err() != nil {
			return nil, nil, ErrStopped
		}
		info, err := os.Lstat(path)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("cannot read metadata of %s: %v", path, err))
			continue
		}
		p.Progress.Add(1, 0)
		if e, ok, warn := p.classify(path, fs.FileInfoToDirEntry(info)); ok {
			entries = append(entries, e)
		} else if warn != "" {
			warnings = append(warnings, warn)
		}
	}

	frontier := make([]dirJob, 0, len(p.Directories.Included))
	for _, root := range p.Directories.Included {
		dev, err := deviceID(root)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("cannot read metadata of %s: %v", root, err))
			continue
		}
		frontier = append(frontier, dirJob{path: root, dev: dev})
	}

	for len(frontier) > 0 {
		if ctx.Err() != nil {
			return nil, nil, ErrStopped
		}

		var next []dirJob
		for start := 0; start < len(frontier); start += waveBatchSize {
			end := min(start+waveBatchSize, len(frontier))
			batch := frontier[start:end]
			results := make([]dirResult, len(batch))

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(threads)
			for i, job := range batch {
				g.Go(func() error {
					res, err := p.readDir(gctx, job)
					results[i] = res
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return nil, nil, ErrStopped
			}

			for _, res := range results {
				next = append(next, res.subdirs...)
				entries = append(entries, res.entries...)
				warnings = append(warnings, res.warnings...)
			}
		}
		frontier = next
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	for _, w := range warnings {
		p.Logger.Debug().Msg(w)
	}
	p.Logger.Debug().Int("entries", len(entries)).Int("warnings", len(warnings)).Msg("traversal finished")

	return entries, warnings, nil
}

func (p *Params) readDir(ctx context.Context, job dirJob) (dirResult, error) {
	var res dirResult

	dirEntries, err := os.ReadDir(job.path)
	if err != nil {
		res.warnings = append(res.warnings, fmt.Sprintf("cannot open dir %s: %v", job.path, err))
		if len(dirEntries) == 0 {
			return res, nil
		}
	}

	for _, d := range dirEntries {
		if ctx.Err() != nil {
			return res, ErrStopped
		}
		fullPath := filepath.Join(job.path, d.Name())

		if d.IsDir() {
			if !p.Recursive {
				continue
			}
			if p.Directories.IsExcluded(fullPath) || p.ExcludedItems.MatchesDir(fullPath) {
				continue
			}
			if p.SameFilesystem {
				info, err := d.Info()
				if err != nil {
					res.warnings = append(res.warnings, fmt.Sprintf("cannot read metadata of dir %s: %v", fullPath, err))
					continue
				}
				if dev, _ := fileIdentity(info); dev != job.dev {
					continue
				}
			}
			res.subdirs = append(res.subdirs, dirJob{path: fullPath, dev: job.dev})
			continue
		}

		p.Progress.Add(1, 0)
		if e, ok, warn := p.classify(fullPath, d); ok {
			res.entries = append(res.entries, e)
		} else if warn != "" {
			res.warnings = append(res.warnings, warn)
		}
	}

	return res, nil
}

// classify applies the mode and filters to one non-directory entry.
// It returns the entry, whether it was accepted, and a warning if
// metadata could not be read.
func (p *Params) classify(path string, d fs.DirEntry) (Entry, bool, string) {
	isSymlink := d.Type()&fs.ModeSymlink != 0

	switch p.Mode {
	case ModeInvalidSymlinks:
		if !isSymlink {
			return Entry{}, false, ""
		}
	default:
		if !d.Type().IsRegular() {
			return Entry{}, false, ""
		}
	}

	if !p.Extensions.Allows(d.Name()) || p.ExcludedItems.Matches(path) {
		return Entry{}, false, ""
	}

	info, err := d.Info()
	if err != nil {
		return Entry{}, false, fmt.Sprintf("cannot read metadata of file %s: %v", path, err)
	}

	if p.Mode == ModeInvalidSymlinks {
		return p.classifySymlink(path, info)
	}

	size := uint64(info.Size())
	if size < p.MinSize || size > p.MaxSize {
		return Entry{}, false, ""
	}
	return newEntry(path, info), true, ""
}

func (p *Params) classifySymlink(path string, info os.FileInfo) (Entry, bool, string) {
	_, err := os.Stat(path)
	if err == nil {
		return Entry{}, false, ""
	}

	destination, rlErr := os.Readlink(path)
	if rlErr != nil {
		return Entry{}, false, fmt.Sprintf("cannot read link %s: %v", path, rlErr)
	}

	kind := NonExistentFile
	if errors.Is(err, syscall.ELOOP) {
		kind = InfiniteRecursion
	}

	e := newEntry(path, info)
	e.Symlink = &SymlinkInfo{Destination: destination, Kind: kind}
	return e, true, ""
}

// GroupByInode buckets entries by the file they point at.
func GroupByInode(entries []Entry) *Groups[InodeKey] {
	groups := NewGroups[InodeKey]()
	for i := range entries {
		groups.Add(ByInode(&entries[i]), entries[i])
	}
	return groups
}

// TakeOnePerInode keeps the first entry of every inode bucket.
func TakeOnePerInode(groups *Groups[InodeKey]) []Entry {
	out := make([]Entry, 0, groups.Len())
	for _, k := range groups.Keys() {
		out = append(out, groups.Get(k)[0])
	}
	return out
}

// CollapseHardLinks keeps one path per inode, preserving input order.
func CollapseHardLinks(entries []Entry) []Entry {
	return TakeOnePerInode(GroupByInode(entries))
}

package duplicate

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"dupescan/internal/cache"
	"dupescan/internal/hash"
	"dupescan/internal/progress"
	"dupescan/internal/walker"
)

// hashPass describes one hashing sweep over the size buckets.
type hashPass struct {
	stage     progress.Stage
	limit     int64
	cacheName string
	useCache  bool
}

// checkFilesHash narrows size buckets by a prehash of the leading bytes and
// then by a full content hash.
func (r *run) checkFilesHash(ctx context.Context, buckets []sizeBucket) ([]Group, error) {
	prehashed, err := r.hashBuckets(ctx, buckets, hashPass{
		stage:     progress.StageDuplicatePrehash,
		limit:     hash.PrehashBufferSize,
		cacheName: cache.DuplicatesName(r.opts.HashType.String(), true),
		useCache:  r.opts.UsePrehashCache,
	})
	if err != nil {
		return nil, err
	}

	var candidates []sizeBucket
	for _, b := range prehashed {
		for _, g := range r.splitByHash(b) {
			candidates = append(candidates, sizeBucket{size: b.size, files: g.Files})
		}
	}
	r.logger.Debug().Int("buckets", len(buckets)).Int("after_prehash", len(candidates)).Msg("prehash finished")

	full, err := r.hashBuckets(ctx, candidates, hashPass{
		stage:     progress.StageDuplicateFullHash,
		cacheName: cache.DuplicatesName(r.opts.HashType.String(), false),
		useCache:  true,
	})
	if err != nil {
		return nil, err
	}

	var groups []Group
	for _, b := range full {
		groups = append(groups, r.splitByHash(b)...)
	}
	return groups, nil
}

// splitByHash groups the bucket by Hash and keeps groups of two or more.
// With reference directories a group must also mix both sides.
func (r *run) splitByHash(b sizeBucket) []Group {
	byHash := walker.NewGroups[string]()
	for _, e := range b.files {
		byHash.Add(e.Hash, e)
	}
	keys := slices.Clone(byHash.Keys())
	slices.Sort(keys)

	var out []Group
	for _, h := range keys {
		files := byHash.Get(h)
		if len(files) < 2 {
			continue
		}
		if r.dirs.HasReference() && !hasBothSides(files, r.dirs) {
			continue
		}
		out = append(out, Group{Size: b.size, Hash: h, Files: files})
	}
	return out
}

// hashBuckets fills Hash on every entry of every bucket. Entries that
// cannot be read are dropped with a warning. Cached hashes are reused when
// size and modification time still match, and the cache is saved back
// merged with everything computed here.
func (r *run) hashBuckets(ctx context.Context, buckets []sizeBucket, pass hashPass) ([]sizeBucket, error) {
	store := r.store
	if !pass.useCache {
		store = nil
	}

	var loaded map[string]walker.Entry
	if store != nil {
		var warnings []string
		loaded, warnings = cache.Load[walker.Entry](store, pass.cacheName, r.opts.DeleteOutdated)
		r.warnings = append(r.warnings, warnings...)
	}

	out := make([]sizeBucket, len(buckets))
	pending := make([][]int, len(buckets))
	var total int64
	var totalBytes uint64
	for bi, b := range buckets {
		files := slices.Clone(b.files)
		for fi := range files {
			e := &files[fi]
			if rec, ok := loaded[e.Path]; ok && cache.Valid(rec, e.Size, e.Modified) {
				e.Hash = rec.Hash
				continue
			}
			if pass.limit == 0 && e.Hash != "" && e.Size <= hash.PrehashBufferSize {
				// The prehash already covered the whole file.
				continue
			}
			e.Hash = ""
			pending[bi] = append(pending[bi], fi)
			total++
			totalBytes += pass.bytesFor(e.Size)
		}
		out[bi] = sizeBucket{size: b.size, files: files}
	}

	tracker := progress.Start(r.sink, pass.stage, total, totalBytes)
	defer tracker.Stop()

	failures := make([][]string, len(buckets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.ThreadCount())
	for bi := range out {
		if len(pending[bi]) == 0 {
			continue
		}
		g.Go(func() error {
			buf := make([]byte, hash.ChunkSize)
			files := out[bi].files
			for _, fi := range pending[bi] {
				e := &files[fi]
				sum, err := hash.HashFile(gctx, e.Path, r.opts.HashType, buf, pass.limit)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					failures[bi] = append(failures[bi], fmt.Sprintf("cannot hash %s: %v", e.Path, err))
				} else {
					e.Hash = sum
				}
				tracker.Add(1, pass.bytesFor(e.Size))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stopped(err)
	}
	if ctx.Err() != nil {
		return nil, ErrStopped
	}

	computed := make(map[string]walker.Entry)
	for bi := range out {
		r.warnings = append(r.warnings, failures[bi]...)
		kept := out[bi].files[:0]
		for _, e := range out[bi].files {
			if e.Hash == "" {
				continue
			}
			kept = append(kept, e)
			computed[e.Path] = e
		}
		out[bi].files = kept
	}

	if store != nil {
		merged := loaded
		if merged == nil {
			merged = make(map[string]walker.Entry, len(computed))
		}
		for p, e := range computed {
			merged[p] = e
		}
		r.warnings = append(r.warnings, cache.Save(store, pass.cacheName, merged, r.opts.MinimalCacheSize, r.opts.SaveJSON)...)
	}

	return out, nil
}

func (p hashPass) bytesFor(size uint64) uint64 {
	if p.limit > 0 && size > uint64(p.limit) {
		return uint64(p.limit)
	}
	return size
}

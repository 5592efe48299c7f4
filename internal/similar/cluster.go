package similar

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"dupescan/internal/bktree"
	"dupescan/internal/progress"
)

// ErrInconsistentClusters is returned when the built clusters overlap or
// contain fewer than two images.
var ErrInconsistentClusters = errors.New("inconsistent image clusters")

// seedChunkSize is how many seeds one comparison task queries.
const seedChunkSize = 1000

// hashFiles is one distinct hash and every image carrying it, in path order.
type hashFiles struct {
	hash  []byte
	files []ImageEntry
}

// clusterInput describes which hashes query the tree and which live in it.
// Indices refer to hashes, which are sorted by hash bytes.
type clusterInput struct {
	hashes []hashFiles
	seeds  []int
	inTree []int
	// resolved marks hashes that form a cluster on their own and may
	// therefore never become a child.
	resolved []bool
}

type edge struct {
	distance  uint32
	seed      int
	candidate int
}

type link struct {
	parent   int
	distance uint32
}

// cluster groups hashes within tolerance of a parent hash. Every hash ends
// up either as a parent, as the child of exactly one parent, or alone.
func cluster(ctx context.Context, in clusterInput, tolerance uint32, threads int, tracker *progress.Tracker) ([][]ImageEntry, error) {
	var edges []edge
	if tolerance > 0 && len(in.inTree) > 0 {
		var err error
		edges, err = collectEdges(ctx, in, tolerance, threads, tracker)
		if err != nil {
			return nil, err
		}
	}

	slices.SortFunc(edges, func(a, b edge) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		if c := cmp.Compare(a.seed, b.seed); c != 0 {
			return c
		}
		return cmp.Compare(a.candidate, b.candidate)
	})

	parentOf := make(map[int]link)
	children := make(map[int]int)
	isParent := func(i int) bool { return in.resolved[i] || children[i] > 0 }

	// Edges are sorted by distance, so the first link a hash receives is
	// already its closest parent. Children never take children of their own.
	for _, e := range edges {
		if isParent(e.candidate) {
			continue
		}
		if _, ok := parentOf[e.seed]; ok {
			continue
		}
		if _, ok := parentOf[e.candidate]; ok {
			continue
		}
		parentOf[e.candidate] = link{parent: e.seed, distance: e.distance}
		children[e.seed]++
	}

	members := make(map[int][]int)
	for child, l := range parentOf {
		members[l.parent] = append(members[l.parent], child)
	}

	var out [][]ImageEntry
	for _, p := range in.seeds {
		if _, ok := parentOf[p]; ok {
			continue
		}
		kids := members[p]
		if len(kids) == 0 && !in.resolved[p] {
			continue
		}
		slices.SortFunc(kids, func(a, b int) int {
			if c := cmp.Compare(parentOf[a].distance, parentOf[b].distance); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})

		group := slices.Clone(in.hashes[p].files)
		for i := range group {
			group[i].Similarity = 0
		}
		for _, k := range kids {
			for _, f := range in.hashes[k].files {
				f.Similarity = parentOf[k].distance
				group = append(group, f)
			}
		}
		out = append(out, group)
	}
	return out, nil
}

// collectEdges queries the tree for every seed in chunks and flattens the
// matches into one edge list.
func collectEdges(ctx context.Context, in clusterInput, tolerance uint32, threads int, tracker *progress.Tracker) ([]edge, error) {
	tree := bktree.New()
	index := make(map[string]int, len(in.inTree))
	for _, i := range in.inTree {
		tree.Add(in.hashes[i].hash)
		index[string(in.hashes[i].hash)] = i
	}

	chunks := (len(in.seeds) + seedChunkSize - 1) / seedChunkSize
	slots := make([][]edge, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for c := 0; c < chunks; c++ {
		seeds := in.seeds[c*seedChunkSize : min((c+1)*seedChunkSize, len(in.seeds))]
		g.Go(func() error {
			var local []edge
			for _, s := range seeds {
				if err := gctx.Err(); err != nil {
					return err
				}
				for _, m := range tree.Find(in.hashes[s].hash, tolerance) {
					cand, ok := index[string(m.Hash)]
					if !ok || cand == s {
						continue
					}
					local = append(local, edge{distance: m.Distance, seed: s, candidate: cand})
				}
				tracker.Add(1, 0)
			}
			slots[c] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var edges []edge
	for _, s := range slots {
		edges = append(edges, s...)
	}
	return edges, nil
}

// groupByHash buckets comparable images by identical hash, sorted by hash.
func groupByHash(entries []ImageEntry) []hashFiles {
	byHash := make(map[string]int)
	var out []hashFiles
	for _, e := range entries {
		i, ok := byHash[string(e.Hash)]
		if !ok {
			i = len(out)
			byHash[string(e.Hash)] = i
			out = append(out, hashFiles{hash: e.Hash})
		}
		out[i].files = append(out[i].files, e)
	}
	slices.SortFunc(out, func(a, b hashFiles) int { return bytes.Compare(a.hash, b.hash) })
	for i := range out {
		slices.SortFunc(out[i].files, func(a, b ImageEntry) int { return cmp.Compare(a.Path, b.Path) })
	}
	return out
}

// plainInput seeds every hash; hashes shared by several images are parents
// already and stay out of the tree.
func plainInput(hashes []hashFiles) clusterInput {
	in := clusterInput{hashes: hashes, resolved: make([]bool, len(hashes))}
	for i, h := range hashes {
		in.seeds = append(in.seeds, i)
		if len(h.files) > 1 {
			in.resolved[i] = true
		} else {
			in.inTree = append(in.inTree, i)
		}
	}
	return in
}

// referencedInput seeds hashes carrying reference images and fills the tree
// with hashes carrying only normal images. A hash with both sides is a
// finished cluster.
func referencedInput(hashes []hashFiles, isRef func(string) bool) clusterInput {
	in := clusterInput{hashes: hashes, resolved: make([]bool, len(hashes))}
	for i, h := range hashes {
		var ref, normal bool
		for _, f := range h.files {
			if isRef(f.Path) {
				ref = true
			} else {
				normal = true
			}
		}
		switch {
		case ref && normal:
			in.resolved[i] = true
			in.seeds = append(in.seeds, i)
		case ref:
			in.seeds = append(in.seeds, i)
		default:
			in.inTree = append(in.inTree, i)
		}
	}
	return in
}

// excludeSameSize keeps the first image of every file size in each cluster.
func excludeSameSize(groups [][]ImageEntry) [][]ImageEntry {
	out := groups[:0]
	for _, g := range groups {
		seen := make(map[uint64]struct{}, len(g))
		kept := g[:0]
		for _, f := range g {
			if _, ok := seen[f.Size]; ok {
				continue
			}
			seen[f.Size] = struct{}{}
			kept = append(kept, f)
		}
		if len(kept) > 1 {
			out = append(out, kept)
		}
	}
	return out
}

// checkClusters verifies that no path is in two clusters and that every
// cluster has at least two images.
func checkClusters(groups [][]ImageEntry) error {
	seen := make(map[string]int)
	for gi, g := range groups {
		if len(g) < 2 {
			return fmt.Errorf("%w: cluster %d has %d image(s)", ErrInconsistentClusters, gi, len(g))
		}
		for _, f := range g {
			if prev, ok := seen[f.Path]; ok {
				return fmt.Errorf("%w: %s is in clusters %d and %d", ErrInconsistentClusters, f.Path, prev, gi)
			}
			seen[f.Path] = gi
		}
	}
	return nil
}

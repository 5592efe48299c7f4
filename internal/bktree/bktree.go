// Package bktree is a Burkhard-Keller tree over fixed length binary hashes
// using Hamming distance. A built tree is safe for concurrent Find calls.
package bktree

import "math/bits"

// Match is one hash found within the query tolerance.
type Match struct {
	Distance uint32
	Hash     []byte
}

type node struct {
	hash     []byte
	children map[uint32]*node
}

type Tree struct {
	root *node
	size int
}

func New() *Tree {
	return &Tree{}
}

func (t *Tree) Len() int { return t.size }

// Add inserts hash. It returns false when an identical hash is already
// stored.
func (t *Tree) Add(hash []byte) bool {
	if t.root == nil {
		t.root = &node{hash: hash}
		t.size++
		return true
	}

	cur := t.root
	for {
		d := Hamming(cur.hash, hash)
		if d == 0 {
			return false
		}
		next, ok := cur.children[d]
		if !ok {
			if cur.children == nil {
				cur.children = make(map[uint32]*node)
			}
			cur.children[d] = &node{hash: hash}
			t.size++
			return true
		}
		cur = next
	}
}

// Find returns every stored hash within tolerance of hash, the query itself
// included when present. Order is unspecified.
func (t *Tree) Find(hash []byte, tolerance uint32) []Match {
	if t.root == nil {
		return nil
	}

	var out []Match
	stack := []*node{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		d := Hamming(n.hash, hash)
		if d <= tolerance {
			out = append(out, Match{Distance: d, Hash: n.hash})
		}

		lo := uint32(0)
		if d > tolerance {
			lo = d - tolerance
		}
		hi := d + tolerance
		for cd, child := range n.children {
			if cd >= lo && cd <= hi {
				stack = append(stack, child)
			}
		}
	}
	return out
}

// Hamming counts differing bits. Hashes of unequal length count every
// missing byte as fully different.
func Hamming(a, b []byte) uint32 {
	n := min(len(a), len(b))
	var d int
	for i := 0; i < n; i++ {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	d += 8 * (max(len(a), len(b)) - n)
	return uint32(d)
}

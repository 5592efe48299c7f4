package bktree

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHamming(t *testing.T) {
	assert.Equal(t, uint32(0), Hamming([]byte{0xAB}, []byte{0xAB}))
	assert.Equal(t, uint32(3), Hamming([]byte{0b00000001}, []byte{0b00001111}))
	assert.Equal(t, uint32(16), Hamming([]byte{0x00, 0x00}, []byte{0xFF, 0xFF}))
	assert.Equal(t, uint32(8), Hamming([]byte{0x01}, []byte{0x01, 0x00}))
}

func TestTree_AddDeduplicates(t *testing.T) {
	tree := New()
	assert.True(t, tree.Add([]byte{1}))
	assert.True(t, tree.Add([]byte{2}))
	assert.False(t, tree.Add([]byte{1}))
	assert.Equal(t, 2, tree.Len())
}

func TestTree_FindEmpty(t *testing.T) {
	assert.Empty(t, New().Find([]byte{1}, 8))
}

func TestTree_Find(t *testing.T) {
	tree := New()
	for _, h := range [][]byte{{0b00000001}, {0b00001111}, {0b01111111}} {
		tree.Add(h)
	}

	matches := tree.Find([]byte{0b00000001}, 4)
	require.Len(t, matches, 2)
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	assert.Equal(t, uint32(0), matches[0].Distance)
	assert.Equal(t, uint32(3), matches[1].Distance)
	assert.Equal(t, []byte{0b00001111}, matches[1].Hash)

	assert.Len(t, tree.Find([]byte{0b00001111}, 4), 3)
	assert.Len(t, tree.Find([]byte{0b00001111}, 0), 1)
}

func TestTree_FindMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tree := New()
	var all [][]byte
	for i := 0; i < 500; i++ {
		h := make([]byte, 4)
		rng.Read(h)
		if tree.Add(h) {
			all = append(all, h)
		}
	}

	for q := 0; q < 50; q++ {
		query := all[rng.Intn(len(all))]
		for _, tol := range []uint32{0, 3, 8} {
			want := 0
			for _, h := range all {
				if Hamming(h, query) <= tol {
					want++
				}
			}
			assert.Len(t, tree.Find(query, tol), want)
		}
	}
}

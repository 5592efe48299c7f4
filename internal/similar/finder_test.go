package similar

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dupescan/internal/cache"
	"dupescan/internal/config"
)

func writeNoisePNG(t *testing.T, path string, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	m := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			m.SetGray(x, y, color.Gray{Y: uint8(rng.Intn(256))})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, m))
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dst, data, 0644))
}

func imagesConfig(dirs ...string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Directories.Included = dirs
	cfg.Filters.MinimalFileSize = 0
	cfg.Cache.Enabled = false
	cfg.Images.HashSize = 8
	cfg.Images.Tolerance = 0
	cfg.Threads = 2
	return cfg
}

func scenario(t *testing.T) string {
	dir := t.TempDir()
	writeNoisePNG(t, filepath.Join(dir, "a.png"), 1)
	copyFile(t, filepath.Join(dir, "a.png"), filepath.Join(dir, "a_copy.png"))
	writeNoisePNG(t, filepath.Join(dir, "b.png"), 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fake.png"), []byte("not an image at all"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("text"), 0644))
	return dir
}

func TestFinder_IdenticalImages(t *testing.T) {
	dir := scenario(t)
	f, err := NewFinder(imagesConfig(dir), nil, zerolog.Nop(), nil)
	require.NoError(t, err)

	res, err := f.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Groups, 1)
	assert.Equal(t, [][]string{{filepath.Join(dir, "a.png"), filepath.Join(dir, "a_copy.png")}}, groupPaths(res.Groups))
	assert.Equal(t, Info{Groups: 1, SimilarImages: 1}, res.Info)
	assert.Equal(t, 64, res.Groups[0][0].Width)

	var fakeWarned bool
	for _, w := range res.Warnings {
		if strings.HasPrefix(w, filepath.Join(dir, "fake.png")) {
			fakeWarned = true
		}
	}
	assert.True(t, fakeWarned, "undecodable image is reported: %v", res.Warnings)
}

func TestFinder_ExcludeSameSize(t *testing.T) {
	dir := scenario(t)
	cfg := imagesConfig(dir)
	cfg.Images.ExcludeSameSize = true
	f, err := NewFinder(cfg, nil, zerolog.Nop(), nil)
	require.NoError(t, err)

	res, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Groups)
}

func TestFinder_Referenced(t *testing.T) {
	root := t.TempDir()
	ref := filepath.Join(root, "ref")
	normal := filepath.Join(root, "normal")
	require.NoError(t, os.MkdirAll(ref, 0755))
	require.NoError(t, os.MkdirAll(normal, 0755))
	writeNoisePNG(t, filepath.Join(ref, "orig.png"), 5)
	copyFile(t, filepath.Join(ref, "orig.png"), filepath.Join(normal, "copy.png"))
	writeNoisePNG(t, filepath.Join(normal, "x.png"), 6)
	copyFile(t, filepath.Join(normal, "x.png"), filepath.Join(normal, "y.png"))

	cfg := imagesConfig(root)
	cfg.Directories.Reference = []string{ref}
	f, err := NewFinder(cfg, nil, zerolog.Nop(), nil)
	require.NoError(t, err)

	res, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Referenced)
	require.Len(t, res.RefGroups, 1)
	assert.Equal(t, filepath.Join(ref, "orig.png"), res.RefGroups[0].Master.Path)
	require.Len(t, res.RefGroups[0].Files, 1)
	assert.Equal(t, filepath.Join(normal, "copy.png"), res.RefGroups[0].Files[0].Path)
}

func TestFinder_Cache(t *testing.T) {
	dir := scenario(t)
	store := cache.NewStore(afero.NewOsFs(), t.TempDir(), zerolog.Nop())
	cfg := imagesConfig(dir)
	cfg.Cache.Enabled = true

	f, err := NewFinder(cfg, store, zerolog.Nop(), nil)
	require.NoError(t, err)
	first, err := f.Run(context.Background())
	require.NoError(t, err)

	records, warnings := cache.Load[ImageEntry](store, f.cacheName(), false)
	require.Empty(t, warnings)
	assert.Len(t, records, 4, "failed images are cached too")
	assert.NotEmpty(t, records[filepath.Join(dir, "fake.png")].Error)

	second, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, groupPaths(first.Groups), groupPaths(second.Groups))
}

func TestFinder_Cancelled(t *testing.T) {
	dir := scenario(t)
	f, err := NewFinder(imagesConfig(dir), nil, zerolog.Nop(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := f.Run(ctx)
	assert.ErrorIs(t, err, ErrStopped)
	assert.Nil(t, res)
}

func TestNewFinder_InvalidOptions(t *testing.T) {
	cfg := imagesConfig(t.TempDir())
	cfg.Images.HashAlg = "blockhash"
	_, err := NewFinder(cfg, nil, zerolog.Nop(), nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg = imagesConfig(t.TempDir())
	cfg.Images.Tolerance = 65
	_, err = NewFinder(cfg, nil, zerolog.Nop(), nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestImageHasher_Sizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "n.png")
	writeNoisePNG(t, path, 3)

	for _, size := range []int{8, 16, 32, 64} {
		for _, alg := range []HashAlg{AlgMean, AlgDifference, AlgPerception} {
			e := ImageEntry{Path: path}
			imageHasher{size: size, alg: alg, filter: FilterLanczos3}.hashFile(&e)
			require.Empty(t, e.Error, "%s/%d", alg, size)
			assert.Len(t, e.Hash, size*size/8, "%s/%d", alg, size)
		}
	}
}

package cache

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dupescan/internal/walker"
)

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return NewStore(fs, "/cache", zerolog.Nop()), fs
}

func touch(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte("x"), 0644))
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	store, fs := newTestStore(t)
	touch(t, fs, "/data/a.bin")
	touch(t, fs, "/data/b.bin")

	records := map[string]walker.Entry{
		"/data/a.bin": {Path: "/data/a.bin", Size: 1000, Modified: 42, Hash: "aaaa"},
		"/data/b.bin": {Path: "/data/b.bin", Size: 2000, Modified: 43, Hash: "bbbb"},
	}

	warnings := Save(store, "test.bin", records, 0, false)
	require.Empty(t, warnings)

	loaded, warnings := Load[walker.Entry](store, "test.bin", false)
	require.Empty(t, warnings)
	require.Len(t, loaded, 2)
	assert.Equal(t, "aaaa", loaded["/data/a.bin"].Hash)
	assert.Equal(t, uint64(2000), loaded["/data/b.bin"].Size)

	// No temp file left behind.
	exists, err := afero.Exists(fs, "/cache/test.bin.tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSave_MinSize(t *testing.T) {
	store, _ := newTestStore(t)
	records := map[string]walker.Entry{
		"/small": {Path: "/small", Size: 10, Hash: "s"},
		"/big":   {Path: "/big", Size: 10_000, Hash: "b"},
	}

	require.Empty(t, Save(store, "min.bin", records, 1024, false))

	loaded, _ := Load[walker.Entry](store, "min.bin", false)
	assert.Len(t, loaded, 1)
	assert.Contains(t, loaded, "/big")
}

func TestLoad_DeleteOutdated(t *testing.T) {
	store, fs := newTestStore(t)
	touch(t, fs, "/data/present")

	records := map[string]walker.Entry{
		"/data/present": {Path: "/data/present", Size: 1},
		"/data/gone":    {Path: "/data/gone", Size: 1},
	}
	require.Empty(t, Save(store, "outdated.bin", records, 0, false))

	kept, _ := Load[walker.Entry](store, "outdated.bin", false)
	assert.Len(t, kept, 2)

	pruned, _ := Load[walker.Entry](store, "outdated.bin", true)
	assert.Len(t, pruned, 1)
	assert.Contains(t, pruned, "/data/present")
}

func TestLoad_MissingFile(t *testing.T) {
	store, _ := newTestStore(t)
	loaded, warnings := Load[walker.Entry](store, "nothing.bin", true)
	assert.Empty(t, loaded)
	assert.Empty(t, warnings)
}

func TestLoad_CorruptFile(t *testing.T) {
	store, fs := newTestStore(t)
	require.Empty(t, Save(store, "corrupt.bin", map[string]walker.Entry{"/x": {Path: "/x", Size: 1}}, 0, false))

	data, err := afero.ReadFile(fs, "/cache/corrupt.bin")
	require.NoError(t, err)
	data[0] ^= 0xFF
	require.NoError(t, afero.WriteFile(fs, "/cache/corrupt.bin", data, 0644))

	loaded, warnings := Load[walker.Entry](store, "corrupt.bin", false)
	assert.Empty(t, loaded)
	assert.Len(t, warnings, 1)

	require.NoError(t, afero.WriteFile(fs, "/cache/short.bin", []byte{1, 2}, 0644))
	loaded, warnings = Load[walker.Entry](store, "short.bin", false)
	assert.Empty(t, loaded)
	assert.Len(t, warnings, 1)
}

func TestSave_JSONCopy(t *testing.T) {
	store, fs := newTestStore(t)
	records := map[string]walker.Entry{"/x": {Path: "/x", Size: 5, Hash: "h"}}

	require.Empty(t, Save(store, "cache_duplicates_BLAKE3_v1.bin", records, 0, true))

	js, err := afero.ReadFile(fs, "/cache/cache_duplicates_BLAKE3_v1.json")
	require.NoError(t, err)
	assert.Contains(t, string(js), `"hash": "h"`)
}

func TestValid(t *testing.T) {
	rec := walker.Entry{Path: "/x", Size: 10, Modified: 100}
	assert.True(t, Valid(rec, 10, 100))
	assert.False(t, Valid(rec, 11, 100))
	assert.False(t, Valid(rec, 10, 101))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "cache_duplicates_BLAKE3_prehash_v1.bin", DuplicatesName("blake3", true))
	assert.Equal(t, "cache_duplicates_XXH3_v1.bin", DuplicatesName("xxh3", false))
	assert.Equal(t, "cache_similar_images_16_DIFFERENCE_LANCZOS3_v1.bin", ImagesName(16, "difference", "lanczos3"))
}

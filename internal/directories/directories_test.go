package directories

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0755))
	}
}

func TestOptimize_RemovesNestedAndExcluded(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a/b/c", "a/x", "d", "e/f")

	d := New(
		[]string{
			filepath.Join(root, "a"),
			filepath.Join(root, "a", "b"), // nested in a
			filepath.Join(root, "d"),
			filepath.Join(root, "d"), // duplicate
			filepath.Join(root, "e", "f"),
			filepath.Join(root, "missing"),
		},
		[]string{
			filepath.Join(root, "a", "b"),
			filepath.Join(root, "a", "b", "c"), // nested in excluded a/b
			filepath.Join(root, "e"),           // swallows included e/f
			filepath.Join(root, "zzz"),         // missing
		},
		nil,
	)

	warnings, err := d.Optimize()
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "a"), filepath.Join(root, "d")}, d.Included)
	assert.Equal(t, []string{filepath.Join(root, "a", "b")}, d.Excluded)
	assert.NotEmpty(t, warnings)

	assert.True(t, d.IsExcluded(filepath.Join(root, "a", "b", "c", "file")))
	assert.False(t, d.IsExcluded(filepath.Join(root, "a", "bb")))
}

func TestOptimize_IncludedFiles(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "dir")
	file := filepath.Join(root, "single.txt")
	nested := filepath.Join(root, "dir", "nested.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(nested, []byte("x"), 0644))

	d := New([]string{file, nested, filepath.Join(root, "dir")}, nil, nil)
	_, err := d.Optimize()
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "dir")}, d.Included)
	assert.Equal(t, []string{file}, d.Files)
}

func TestOptimize_NoValidDirectories(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a")

	d := New([]string{filepath.Join(root, "a")}, []string{root}, nil)
	_, err := d.Optimize()
	assert.ErrorIs(t, err, ErrNoValidDirectories)

	d = New([]string{"/definitely/not/here"}, nil, nil)
	_, err = d.Optimize()
	assert.ErrorIs(t, err, ErrNoValidDirectories)
}

func TestOptimize_Reference(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "work", "work/masters", "elsewhere")

	d := New(
		[]string{filepath.Join(root, "work")},
		nil,
		[]string{filepath.Join(root, "work", "masters"), filepath.Join(root, "elsewhere")},
	)
	warnings, err := d.Optimize()
	require.NoError(t, err)

	assert.True(t, d.HasReference())
	assert.Equal(t, []string{filepath.Join(root, "work", "masters")}, d.Reference)
	assert.Len(t, warnings, 1)
	assert.True(t, d.IsInReference(filepath.Join(root, "work", "masters", "m.jpg")))
	assert.False(t, d.IsInReference(filepath.Join(root, "work", "other.jpg")))
}

func TestIsSubPath(t *testing.T) {
	sep := string(filepath.Separator)
	assert.True(t, IsSubPath(sep+"a", sep+"a"))
	assert.True(t, IsSubPath(sep+"a", sep+"a"+sep+"b"))
	assert.False(t, IsSubPath(sep+"a", sep+"ab"))
	assert.True(t, IsSubPath(sep, sep+"anything"))
}

package dirtree_test

import (
	"testing"

	"github.com/akawashiro/ros3fs/internal/dirtree"
	"github.com/akawashiro/ros3fs/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s1Entries() []metadata.ObjectEntry {
	return []metadata.ObjectEntry{
		{Path: "/a/b.txt", Size: 5, MtimeMS: 1000},
		{Path: "/a/c/d.txt", Size: 7, MtimeMS: 2000},
		{Path: "/e.txt", Size: 3, MtimeMS: 3000},
	}
}

func TestS1TreeConsistency(t *testing.T) {
	tree := dirtree.Build(s1Entries())

	root, ok := tree.Lookup("/")
	require.True(t, ok)
	assert.Equal(t, metadata.Directory, root.Kind)
	assert.Equal(t, uint64(0), root.Size)

	a, ok := tree.Lookup("/a")
	require.True(t, ok)
	assert.Equal(t, metadata.Directory, a.Kind)
	assert.Equal(t, uint64(0), a.Size)

	b, ok := tree.Lookup("/a/b.txt")
	require.True(t, ok)
	assert.Equal(t, metadata.File, b.Kind)
	assert.Equal(t, uint64(5), b.Size)
	assert.Equal(t, int64(1000), b.MtimeMS)

	_, ok = tree.Lookup("/missing")
	assert.False(t, ok)
}

func TestS1ReadDirectory(t *testing.T) {
	tree := dirtree.Build(s1Entries())

	children := tree.List("/a")
	names := make([]string, len(children))
	for i, c := range children {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"b.txt", "c"}, names)

	assert.Empty(t, tree.List("/missing"))
}

func TestEnumerationHasNoDuplicatesAcrossEntries(t *testing.T) {
	entries := []metadata.ObjectEntry{
		{Path: "/dir/1.txt", Size: 1},
		{Path: "/dir/2.txt", Size: 2},
		{Path: "/dir/sub/3.txt", Size: 3},
	}
	tree := dirtree.Build(entries)

	children := tree.List("/dir")
	seen := map[string]bool{}
	for _, c := range children {
		assert.False(t, seen[c.Name], "duplicate child %q", c.Name)
		seen[c.Name] = true
	}
	assert.Equal(t, map[string]bool{"1.txt": true, "2.txt": true, "sub": true}, seen)
}

func TestFileHasNoChildren(t *testing.T) {
	tree := dirtree.Build(s1Entries())
	assert.Empty(t, tree.List("/e.txt"))
}

func TestDuplicateNameIsSkippedNotFatal(t *testing.T) {
	entries := []metadata.ObjectEntry{
		{Path: "/a/b.txt", Size: 1},
		{Path: "/a/b.txt", Size: 2},
	}

	tree := dirtree.Build(entries)

	b, ok := tree.Lookup("/a/b.txt")
	require.True(t, ok)
	assert.Equal(t, uint64(1), b.Size, "first entry wins, second is skipped with a warning")
}

func TestImplicitDirMtimeIsMaxDescendant(t *testing.T) {
	entries := []metadata.ObjectEntry{
		{Path: "/a/old.txt", Size: 1, MtimeMS: 100},
		{Path: "/a/new.txt", Size: 1, MtimeMS: 900},
	}
	tree := dirtree.Build(entries)

	a, ok := tree.Lookup("/a")
	require.True(t, ok)
	assert.Equal(t, int64(900), a.MtimeMS)
}

func TestConcurrentLookupsAreSafe(t *testing.T) {
	tree := dirtree.Build(s1Entries())

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 1000; j++ {
				tree.Lookup("/a/b.txt")
				tree.List("/a")
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}

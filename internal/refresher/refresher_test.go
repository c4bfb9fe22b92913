package refresher_test

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/akawashiro/ros3fs/internal/cachestore"
	"github.com/akawashiro/ros3fs/internal/dirtree"
	"github.com/akawashiro/ros3fs/internal/objectstore"
	"github.com/akawashiro/ros3fs/internal/refresher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHolder struct{ tree *dirtree.Tree }

func (h *fakeHolder) SwapTree(t *dirtree.Tree) { h.tree = t }

// S5: refresher tick with a mock client returning a new entry
// ("f.txt", 4, 4000): before tick GetAttr("/f.txt") = absent; after tick,
// present; and previously cached bodies (except snapshot) are gone.
func TestTickAddsNewEntryAndClearsStaleBodies(t *testing.T) {
	dir := t.TempDir()
	store, err := cachestore.Open(dir, "https://ep", "bucket", false)
	require.NoError(t, err)
	defer store.Close()

	fake := objectstore.NewFake()
	fake.Put("e.txt", []byte("abc"), 3000)

	holder := &fakeHolder{tree: dirtree.Build(nil)}

	_, err = store.GetContents(context.Background(), "/e.txt", func(ctx context.Context) (io.ReadCloser, error) {
		return fake.Fetch(ctx, "e.txt")
	})
	require.NoError(t, err)

	r := refresher.New(store, fake, holder, time.Hour)

	_, ok := holder.tree.Lookup("/f.txt")
	assert.False(t, ok)

	r.Tick()

	_, ok = holder.tree.Lookup("/f.txt")
	assert.False(t, ok, "f.txt not added to the fake store yet")

	fake.Put("f.txt", []byte("wxyz"), 4000)
	r.Tick()

	meta, ok := holder.tree.Lookup("/f.txt")
	require.True(t, ok)
	assert.Equal(t, uint64(4), meta.Size)

	_, err = os.Stat(store.ContentPath("/e.txt"))
	assert.Error(t, err, "cached bodies must be purged after a successful refresh")
}

func TestTickKeepsOldTreeOnListFailure(t *testing.T) {
	dir := t.TempDir()
	store, err := cachestore.Open(dir, "https://ep", "bucket", false)
	require.NoError(t, err)
	defer store.Close()

	fake := objectstore.NewFake()
	fake.Put("a.txt", []byte("a"), 1)
	holder := &fakeHolder{tree: dirtree.Build(nil)}
	r := refresher.New(store, fake, holder, time.Hour)
	r.Tick()

	_, ok := holder.tree.Lookup("/a.txt")
	require.True(t, ok)

	fake.ListErr = assertErr{}
	fake.Put("b.txt", []byte("b"), 2)
	r.Tick()

	_, ok = holder.tree.Lookup("/a.txt")
	assert.True(t, ok, "a list failure must leave the existing tree untouched")
	_, ok = holder.tree.Lookup("/b.txt")
	assert.False(t, ok)
}

func TestStartStop(t *testing.T) {
	dir := t.TempDir()
	store, err := cachestore.Open(dir, "https://ep", "bucket", false)
	require.NoError(t, err)
	defer store.Close()

	fake := objectstore.NewFake()
	holder := &fakeHolder{tree: dirtree.Build(nil)}
	r := refresher.New(store, fake, holder, time.Hour)

	r.Start()
	r.Stop()
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

package cachestore_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/akawashiro/ros3fs/internal/cachestore"
	"github.com/akawashiro/ros3fs/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAcquiresLockAndCloseReleasesIt(t *testing.T) {
	dir := t.TempDir()

	store, err := cachestore.Open(dir, "https://ep", "bucket", false)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "lock"))
	assert.NoError(t, err)

	require.NoError(t, store.Close())
	_, err = os.Stat(filepath.Join(dir, "lock"))
	assert.True(t, os.IsNotExist(err))
}

func TestSecondOpenFailsWithMountLocked(t *testing.T) {
	dir := t.TempDir()

	store, err := cachestore.Open(dir, "https://ep", "bucket", false)
	require.NoError(t, err)
	defer store.Close()

	_, err = cachestore.Open(dir, "https://ep", "bucket", false)
	require.Error(t, err)

	var locked *cachestore.MountLocked
	assert.ErrorAs(t, err, &locked)
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := cachestore.Open(dir, "https://ep", "bucket", false)
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.LoadSnapshot()
	require.NoError(t, err)
	assert.False(t, ok)

	xs := []metadata.ObjectEntry{{Path: "/a", Size: 1, MtimeMS: 10}}
	require.NoError(t, store.SaveSnapshot(xs))

	loaded, ok, err := store.LoadSnapshot()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, xs, loaded)
}

func TestGetContentsFetchesOnceAndCaches(t *testing.T) {
	dir := t.TempDir()
	store, err := cachestore.Open(dir, "https://ep", "bucket", false)
	require.NoError(t, err)
	defer store.Close()

	var calls atomic.Int64
	fetch := func(ctx context.Context) (io.ReadCloser, error) {
		calls.Add(1)
		return io.NopCloser(strings.NewReader("hello")), nil
	}

	data, err := store.GetContents(context.Background(), "/a/b.txt", fetch)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	data2, err := store.GetContents(context.Background(), "/a/b.txt", fetch)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data2))

	assert.Equal(t, int64(1), calls.Load(), "content file should make the second call a cache hit")
}

// S3: cold cache, K concurrent GetContents for the same path invoke fetch
// exactly once and every caller gets identical bytes (spec §8.5).
func TestGetContentsAtMostOnceConcurrent(t *testing.T) {
	dir := t.TempDir()
	store, err := cachestore.Open(dir, "https://ep", "bucket", false)
	require.NoError(t, err)
	defer store.Close()

	var calls atomic.Int64
	fetch := func(ctx context.Context) (io.ReadCloser, error) {
		calls.Add(1)
		return io.NopCloser(strings.NewReader("hello")), nil
	}

	const k = 32
	var wg sync.WaitGroup
	results := make([]string, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := store.GetContents(context.Background(), "/a/b.txt", fetch)
			require.NoError(t, err)
			results[i] = string(data)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "hello", r)
	}
}

func TestClearPreservesLockAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := cachestore.Open(dir, "https://ep", "bucket", false)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SaveSnapshot([]metadata.ObjectEntry{{Path: "/a", Size: 1}}))
	_, err = store.GetContents(context.Background(), "/a", func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("x")), nil
	})
	require.NoError(t, err)

	require.NoError(t, store.Clear(map[string]bool{store.SnapshotPath(): true}))

	_, ok, err := store.LoadSnapshot()
	require.NoError(t, err)
	assert.True(t, ok, "snapshot must survive a clear that preserves it")

	_, err = os.Stat(filepath.Join(dir, "lock"))
	assert.NoError(t, err, "lock dir must survive a clear")

	_, err = os.Stat(store.ContentPath("/a"))
	assert.True(t, os.IsNotExist(err), "content files must be gone after clear")
}

func TestClearCacheOnOpenWipesPriorContentFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := cachestore.Open(dir, "https://ep", "bucket", false)
	require.NoError(t, err)
	require.NoError(t, store.SaveSnapshot([]metadata.ObjectEntry{{Path: "/a", Size: 1}}))
	_, err = store.GetContents(context.Background(), "/a", func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("x")), nil
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store2, err := cachestore.Open(dir, "https://ep", "bucket", true)
	require.NoError(t, err)
	defer store2.Close()

	_, ok, err := store2.LoadSnapshot()
	require.NoError(t, err)
	assert.False(t, ok, "--clear_cache forces a fresh snapshot too")

	_, err = os.Stat(store2.ContentPath("/a"))
	assert.True(t, os.IsNotExist(err), "prior content files must be gone after --clear_cache")

	_, err = os.Stat(filepath.Join(dir, "lock"))
	assert.NoError(t, err)
}


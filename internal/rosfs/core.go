// Package rosfs implements the process-wide lifecycle root (spec §4.6
// Context, C7): it owns the metadata codec, directory tree, cache store,
// and background refresher, and exposes the three operations the kernel
// adapter calls (GetAttr, ReadDirectory, GetFileContents).
package rosfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/akawashiro/ros3fs/internal/cachestore"
	"github.com/akawashiro/ros3fs/internal/dirtree"
	"github.com/akawashiro/ros3fs/internal/logger"
	"github.com/akawashiro/ros3fs/internal/metadata"
	"github.com/akawashiro/ros3fs/internal/objectstore"
	"github.com/akawashiro/ros3fs/internal/refresher"
)

// Config mirrors the CLI surface of spec §6: required endpoint, bucket
// name, and cache directory, plus --clear_cache and --update_seconds.
type Config struct {
	Endpoint      string
	BucketName    string
	CacheDir      string
	ClearCache    bool
	UpdateSeconds int
	// RequestsPerSecond throttles the underlying object-store client; 0
	// means unlimited.
	RequestsPerSecond float64
}

// Context is the handle main() owns and hands to the kernel adapter by
// reference (spec §9: "model this as an explicit init(config) ->
// ContextHandle ... avoid hidden global state"). One live Context may exist
// per process at a time (enforced by the package-level `initialized` flag,
// spec §4.6/§8.6) — not because the type itself is a singleton, but because
// the spec requires the *invariant* to hold process-wide.
type Context struct {
	cfg    Config
	store  *cachestore.Store
	client objectstore.Client
	ref    *refresher.Refresher

	tree atomic.Pointer[dirtree.Tree]
}

var initialized atomic.Bool

// New constructs a real objectstore.Client for cfg and delegates to
// NewWithClient. This is what cmd/mount.go calls for a real mount.
func New(cfg Config) (*Context, error) {
	client, err := objectstore.New(objectstore.Config{
		Endpoint:          cfg.Endpoint,
		Bucket:            cfg.BucketName,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return nil, &StartupError{Reason: "constructing object store client", Cause: err}
	}
	return NewWithClient(cfg, client)
}

// NewWithClient is New with the object-store client supplied by the caller,
// the same split gcsfuse's cmd/mount.go makes between mountWithArgs (which
// builds a real storage.StorageHandle) and mountWithStorageHandle (which
// takes one as a parameter) — it lets tests exercise the full lifecycle
// against objectstore.Fake. It canonicalizes cache_dir, acquires the mount
// lock, performs a sanity listing, loads or builds the initial metadata, and
// spawns the refresher (spec §4.6 steps 1-6). A failed sanity listing is
// fatal only when no snapshot exists; otherwise it is logged and the
// snapshot is used. A second call before the first Context's Close returns
// *AlreadyInitialized.
func NewWithClient(cfg Config, client objectstore.Client) (*Context, error) {
	if !initialized.CompareAndSwap(false, true) {
		return nil, &AlreadyInitialized{}
	}
	ok := false
	defer func() {
		if !ok {
			initialized.Store(false)
		}
	}()

	cacheDir, err := filepath.Abs(cfg.CacheDir)
	if err != nil {
		return nil, &StartupError{Reason: "canonicalizing cache_dir", Cause: err}
	}
	if info, err := os.Stat(cacheDir); err != nil || !info.IsDir() {
		return nil, &StartupError{Reason: fmt.Sprintf("cache_dir %q does not exist", cacheDir)}
	}
	cfg.CacheDir = cacheDir

	store, err := cachestore.Open(cacheDir, cfg.Endpoint, cfg.BucketName, cfg.ClearCache)
	if err != nil {
		// MountLocked propagates as-is; it is its own fatal error kind
		// (spec §7), not wrapped in StartupError.
		return nil, err
	}

	entries, err := initialMetadata(store, client)
	if err != nil {
		store.Close()
		return nil, err
	}

	c := &Context{cfg: cfg, store: store, client: client}
	c.tree.Store(dirtree.Build(entries))

	updatePeriod := time.Duration(cfg.UpdateSeconds) * time.Second
	if updatePeriod <= 0 {
		updatePeriod = time.Hour
	}
	c.ref = refresher.New(store, client, c, updatePeriod)
	c.ref.Start()

	ok = true
	logger.Infof("rosfs: initialized context for bucket=%q cache_dir=%q with %d objects", cfg.BucketName, cacheDir, len(entries))
	return c, nil
}

// initialMetadata performs the sanity listing required at startup (spec
// §4.6 step 4) and, reusing its result, either loads the on-disk snapshot
// or builds and persists a fresh one if none exists (spec §4.6 step 5).
func initialMetadata(store *cachestore.Store, client objectstore.Client) ([]metadata.ObjectEntry, error) {
	ctx := context.Background()

	listed, listErr := client.ListAll(ctx)

	loaded, ok, err := store.LoadSnapshot()
	if err != nil {
		return nil, &StartupError{Reason: "loading snapshot", Cause: err}
	}
	if ok {
		if listErr != nil {
			logger.Warnf("rosfs: startup sanity listing failed (continuing with existing snapshot): %v", listErr)
		}
		return loaded, nil
	}

	// No snapshot: the listing is load-bearing, not just a sanity check.
	// A list failure with nothing on disk is fatal (spec §7 ListFailure:
	// "on initial boot with no snapshot, fatal").
	if listErr != nil {
		return nil, &StartupError{Reason: "initial bucket listing", Cause: listErr}
	}

	entries := make([]metadata.ObjectEntry, len(listed))
	for i, o := range listed {
		entries[i] = metadata.ObjectEntry{Path: "/" + o.Key, Size: o.Size, MtimeMS: o.MtimeMS}
	}
	if err := store.SaveSnapshot(entries); err != nil {
		return nil, &StartupError{Reason: "saving initial snapshot", Cause: err}
	}
	return entries, nil
}

// SwapTree implements refresher.TreeHolder: the refresher calls this after
// rebuilding the tree from a fresh listing (spec §5 atomic root swap).
func (c *Context) SwapTree(t *dirtree.Tree) { c.tree.Store(t) }

// GetAttr delegates to the current DirectoryTree's Lookup (spec §4.6).
func (c *Context) GetAttr(path string) (metadata.NodeMetadata, bool) {
	return c.tree.Load().Lookup(path)
}

// ReadDirectory delegates to the current DirectoryTree's List (spec §4.6).
func (c *Context) ReadDirectory(path string) []metadata.NodeMetadata {
	return c.tree.Load().List(path)
}

// GetFileContents returns path's bytes, populating the content cache on a
// miss by issuing ObjectStoreClient.Fetch for path with its leading "/"
// stripped (spec §4.6).
func (c *Context) GetFileContents(ctx context.Context, path string) ([]byte, error) {
	key := strings.TrimPrefix(path, "/")
	return c.store.GetContents(ctx, path, func(ctx context.Context) (io.ReadCloser, error) {
		return c.client.Fetch(ctx, key)
	})
}

// DebugCopyObject fetches key straight from the store to destPath on local
// disk, bypassing the directory tree and the content cache entirely. It is
// a debug-only escape hatch carried over from original_source/context.cc's
// CopyFile (see SPEC_FULL.md "Supplemented features"); nothing in the
// kernel adapter path calls it.
func (c *Context) DebugCopyObject(ctx context.Context, key, destPath string) (err error) {
	body, err := c.client.Fetch(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(f, body)
	return err
}

// Close signals the refresher, joins it, and releases the mount lock (spec
// §4.6 "On destroy"). It permits a subsequent New call to succeed.
func (c *Context) Close() error {
	defer initialized.Store(false)
	c.ref.Stop()
	return c.store.Close()
}

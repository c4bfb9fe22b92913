// Package refresher implements the background task that periodically
// re-lists the bucket, rebuilds the directory tree, rewrites the snapshot,
// and purges stale content files (spec §4.5 MetadataRefresher).
package refresher

import (
	"context"
	"time"

	"github.com/akawashiro/ros3fs/internal/cachestore"
	"github.com/akawashiro/ros3fs/internal/dirtree"
	"github.com/akawashiro/ros3fs/internal/logger"
	"github.com/akawashiro/ros3fs/internal/metadata"
	"github.com/akawashiro/ros3fs/internal/metrics"
	"github.com/akawashiro/ros3fs/internal/objectstore"
)

// TreeHolder is the atomic-swap slot the refresher writes into and readers
// read from (spec §5 "atomic root swap"). It is satisfied by
// internal/rosfs.Context but kept as a narrow interface so this package
// does not import rosfs (rosfs already imports refresher).
type TreeHolder interface {
	SwapTree(*dirtree.Tree)
}

// Refresher owns the single background goroutine that keeps the tree and
// snapshot fresh. There is exactly one per process (spec §5).
type Refresher struct {
	store         *cachestore.Store
	client        objectstore.Client
	holder        TreeHolder
	updatePeriod  time.Duration
	stop          chan struct{}
	done          chan struct{}
}

// New constructs a Refresher. Call Start to begin the background loop.
func New(store *cachestore.Store, client objectstore.Client, holder TreeHolder, updatePeriod time.Duration) *Refresher {
	return &Refresher{
		store:        store,
		client:       client,
		holder:       holder,
		updatePeriod: updatePeriod,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the background loop. It returns immediately.
func (r *Refresher) Start() {
	go r.loop()
}

// Stop signals the loop to exit and joins it. Safe to call once; the
// kernel-adapter-facing Context calls this exactly once during its own
// Close (spec §4.6 "On destroy: signal the refresher, join it").
func (r *Refresher) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Refresher) loop() {
	defer close(r.done)

	timer := time.NewTimer(r.updatePeriod)
	defer timer.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-timer.C:
			r.Tick()
			timer.Reset(r.updatePeriod)
		}
	}
}

// Tick runs one refresh cycle synchronously: list, save snapshot, rebuild
// and swap the tree, then purge stale content files. The background loop
// calls this on every timer pop; callers needing a deterministic refresh
// (tests, an on-demand "refresh now" CLI hook) call it directly. List
// failures are logged and treated as "no update this cycle" (spec §4.5
// step 2); the current tree is left alone.
func (r *Refresher) Tick() {
	ctx := context.Background()

	objs, err := r.client.ListAll(ctx)
	if err != nil {
		logger.Warnf("refresher: list failed, keeping existing tree: %v", err)
		metrics.RefreshFailures.Inc()
		return
	}

	entries := toEntries(objs)

	// Snapshot-first, then tree swap (spec §9 open question a): a crash
	// mid-refresh leaves a resumable, fresh snapshot for the next boot.
	if err := r.store.SaveSnapshot(entries); err != nil {
		logger.Errorf("refresher: saving snapshot failed: %v", err)
		metrics.RefreshFailures.Inc()
		return
	}

	tree := dirtree.Build(entries)
	r.holder.SwapTree(tree)

	// This is the staleness bound: after a successful refresh, every
	// cached body is re-fetched on next access (spec §4.5 step 4, §8.7).
	// The snapshot just written above is preserved — only content bodies
	// are stale here, not the metadata we just saved.
	if err := r.store.Clear(map[string]bool{r.store.SnapshotPath(): true}); err != nil {
		logger.Warnf("refresher: post-refresh clear failed: %v", err)
	}

	metrics.RefreshSuccesses.Inc()
	logger.Infof("refresher: refreshed tree with %d objects", len(entries))
}

func toEntries(objs []objectstore.ListedObject) []metadata.ObjectEntry {
	entries := make([]metadata.ObjectEntry, len(objs))
	for i, o := range objs {
		entries[i] = metadata.ObjectEntry{
			Path:    "/" + o.Key,
			Size:    o.Size,
			MtimeMS: o.MtimeMS,
		}
	}
	return entries
}

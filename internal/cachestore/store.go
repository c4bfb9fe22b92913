// Package cachestore owns the on-disk cache directory layout: the mount
// lock, the metadata snapshot file, and per-object content files (spec
// §3 CacheLayout, §4.4 CacheStore).
package cachestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/akawashiro/ros3fs/internal/fingerprint"
	"github.com/akawashiro/ros3fs/internal/logger"
	"github.com/akawashiro/ros3fs/internal/metadata"
	"github.com/akawashiro/ros3fs/internal/metrics"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	lockDirName    = "lock"
	metaFilePrefix = "ros3fs_meta_data_"
	metaFileSuffix = ".json"
	contentPrefix  = "ros3fs_cache_file_"
)

// MountLocked is returned when another mount already holds cache_dir/lock.
type MountLocked struct{ CacheDir string }

func (e *MountLocked) Error() string {
	return fmt.Sprintf(
		"cache directory %q is locked by another mount; remove %s if no other process holds it",
		e.CacheDir, filepath.Join(e.CacheDir, lockDirName))
}

// LockReleaseFailed is reported (not panicked) when removing the lock
// directory fails during shutdown (spec §4.4).
type LockReleaseFailed struct{ Cause error }

func (e *LockReleaseFailed) Error() string { return fmt.Sprintf("releasing mount lock: %v", e.Cause) }
func (e *LockReleaseFailed) Unwrap() error { return e.Cause }

// IOFailure wraps any disk error reading or writing a content or snapshot
// file (spec CacheIOFailure).
type IOFailure struct {
	Path  string
	Cause error
}

func (e *IOFailure) Error() string { return fmt.Sprintf("cache I/O failure at %q: %v", e.Path, e.Cause) }
func (e *IOFailure) Unwrap() error { return e.Cause }

// Store owns cache_dir's layout and enforces the single-mount lock.
type Store struct {
	cacheDir     string
	snapshotPath string

	fetchGroup singleflight.Group
}

// Open acquires the mount lock under cacheDir and computes the snapshot
// path from fingerprint(endpoint||bucket). If clearCache is set, the whole
// cache directory (preserving only the freshly acquired lock) is wiped
// immediately afterward, forcing a fresh listing on init (spec §4.4
// "Initial clear").
func Open(cacheDir, endpoint, bucket string, clearCache bool) (*Store, error) {
	lockDir := filepath.Join(cacheDir, lockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			return nil, &MountLocked{CacheDir: cacheDir}
		}
		return nil, &IOFailure{Path: lockDir, Cause: err}
	}

	ownerPath := filepath.Join(lockDir, "owner")
	_ = os.WriteFile(ownerPath, []byte(uuid.NewString()+"\n"), 0o644)

	s := &Store{
		cacheDir:     cacheDir,
		snapshotPath: filepath.Join(cacheDir, metaFilePrefix+fingerprint.Of(endpoint+bucket)+metaFileSuffix),
	}

	if clearCache {
		if err := s.Clear(map[string]bool{lockDir: true}); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Close releases the mount lock. Failure to remove it is logged and
// reported, not fatal (spec §4.4).
func (s *Store) Close() error {
	lockDir := filepath.Join(s.cacheDir, lockDirName)
	if err := os.RemoveAll(lockDir); err != nil {
		rerr := &LockReleaseFailed{Cause: err}
		logger.Warnf("cachestore: %v", rerr)
		return rerr
	}
	return nil
}

// SnapshotPath returns cache_dir/ros3fs_meta_data_<fingerprint>.json.
func (s *Store) SnapshotPath() string { return s.snapshotPath }

// ContentPath returns cache_dir/ros3fs_cache_file_<fingerprint(path)> for a
// logical path.
func (s *Store) ContentPath(logicalPath string) string {
	return filepath.Join(s.cacheDir, contentPrefix+fingerprint.Of(logicalPath))
}

// LoadSnapshot reads and decodes the persisted object list. ok is false if
// no snapshot exists yet (spec "load() -> ...| NotFound").
func (s *Store) LoadSnapshot() (entries []metadata.ObjectEntry, ok bool, err error) {
	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, &IOFailure{Path: s.snapshotPath, Cause: err}
	}

	entries, err = metadata.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

// SaveSnapshot atomically writes the encoded entries via a temp-file plus
// rename (github.com/google/renameio/v2), so a concurrent reader sees
// either the old complete document or the new one, never a truncated file
// (spec §4.4, §9 "Atomic snapshot writes").
func (s *Store) SaveSnapshot(entries []metadata.ObjectEntry) error {
	data, err := metadata.Encode(entries)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(s.snapshotPath, data, 0o644); err != nil {
		return &IOFailure{Path: s.snapshotPath, Cause: err}
	}
	return nil
}

// FetchFunc performs the network GET for a content-cache miss. It is
// supplied by the caller (the core, via ObjectStoreClient.Fetch) so this
// package has no network dependency of its own.
type FetchFunc func(ctx context.Context) (io.ReadCloser, error)

// GetContents returns logicalPath's cached bytes, populating the content
// file on first read. Concurrent GetContents calls for the *same*
// logicalPath are coalesced into a single fetch (golang.org/x/sync/
// singleflight) — spec §8.5's at-most-once guarantee; calls for distinct
// paths proceed independently and in parallel (spec §9's single-flight
// recommendation over one coarse mutex).
func (s *Store) GetContents(ctx context.Context, logicalPath string, fetch FetchFunc) ([]byte, error) {
	contentPath := s.ContentPath(logicalPath)

	if data, err := os.ReadFile(contentPath); err == nil {
		metrics.ContentCacheHits.Inc()
		return data, nil
	} else if !os.IsNotExist(err) {
		return nil, &IOFailure{Path: contentPath, Cause: err}
	}

	v, err, _ := s.fetchGroup.Do(contentPath, func() (any, error) {
		// A flight for this path may have finished between the miss above
		// and this call; its content file then already exists.
		if data, err := os.ReadFile(contentPath); err == nil {
			metrics.ContentCacheHits.Inc()
			return data, nil
		}
		metrics.ContentFetches.Inc()
		body, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		defer body.Close()

		data, err := io.ReadAll(body)
		if err != nil {
			return nil, &IOFailure{Path: contentPath, Cause: err}
		}

		if err := renameio.WriteFile(contentPath, data, 0o444); err != nil {
			return nil, &IOFailure{Path: contentPath, Cause: err}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Clear deletes every entry directly under cache_dir whose path is not in
// preserve. Only the lock directory is always preserved; the snapshot is
// not, so an initial clear-cache (Open, above) genuinely forces a fresh
// listing (spec §4.4 "Initial clear"). A refresh-time clear (spec §4.5 step
// 4, purging stale content bodies) passes the snapshot path in preserve
// since it was just rewritten with the fresh listing.
func (s *Store) Clear(preserve map[string]bool) error {
	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		return &IOFailure{Path: s.cacheDir, Cause: err}
	}

	always := map[string]bool{
		filepath.Join(s.cacheDir, lockDirName): true,
	}

	for _, entry := range entries {
		full := filepath.Join(s.cacheDir, entry.Name())
		if always[full] || preserve[full] {
			continue
		}
		if err := os.RemoveAll(full); err != nil {
			logger.Warnf("cachestore: failed to clear %q: %v", full, err)
		}
	}
	return nil
}

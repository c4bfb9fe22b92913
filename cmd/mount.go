package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/akawashiro/ros3fs/cfg"
	"github.com/akawashiro/ros3fs/internal/kernelfs"
	"github.com/akawashiro/ros3fs/internal/logger"
	"github.com/akawashiro/ros3fs/internal/metrics"
	"github.com/akawashiro/ros3fs/internal/rosfs"
	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
)

// inBackgroundEnv is set in the daemon child's environment so it knows not
// to re-daemonize itself, mirroring gcsfuse's logger.GCSFuseInBackgroundMode
// check in cmd/legacy_main.go.
const inBackgroundEnv = "ROS3FS_IN_BACKGROUND_MODE"

// runMount builds the rosfs.Context and kernelfs.FileSystem and mounts them
// at mountPoint. When a log file is configured and this process is not
// already the daemon child, it daemonizes first instead; with no log file
// it mounts in the foreground (spec §4.6 "Construction sequence").
func runMount(mountPoint string, newConfig cfg.Config) error {
	if err := logger.Init(logger.Config{
		Format:     newConfig.Logging.Format,
		FilePath:   newConfig.Logging.FilePath,
		MaxSizeMB:  newConfig.Logging.MaxSizeMB,
		MaxBackups: newConfig.Logging.MaxBackups,
		MaxAgeDays: newConfig.Logging.MaxAgeDays,
		Level:      parseSeverity(newConfig.Logging.Severity),
	}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Close()

	if os.Getenv(inBackgroundEnv) != "true" && newConfig.Logging.FilePath != "" {
		return daemonizeAndWait(mountPoint)
	}

	ctx, err := rosfs.New(rosfs.Config{
		Endpoint:          newConfig.S3.Endpoint,
		BucketName:        newConfig.S3.BucketName,
		CacheDir:          newConfig.Cache.Dir,
		ClearCache:        newConfig.Cache.ClearOnMount,
		UpdateSeconds:     newConfig.Cache.UpdateSeconds,
		RequestsPerSecond: newConfig.S3.RequestsPerSecond,
	})
	if err != nil {
		_ = daemonize.SignalOutcome(err)
		return fmt.Errorf("initializing context: %w", err)
	}
	defer ctx.Close()

	if newConfig.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(context.Background(), newConfig.Metrics.Addr); err != nil {
				logger.Errorf("metrics: server on %s exited: %v", newConfig.Metrics.Addr, err)
			}
		}()
		logger.Infof("ros3fs: serving Prometheus metrics at %s/metrics", newConfig.Metrics.Addr)
	}

	server := fuseutil.NewFileSystemServer(kernelfs.New(ctx))

	mfs, err := fuse.Mount(mountPoint, server, &fuse.MountConfig{
		FSName:      newConfig.S3.BucketName,
		Subtype:     "ros3fs",
		VolumeName:  "ros3fs",
		ErrorLogger: slog.NewLogLogger(slog.NewTextHandler(os.Stderr, nil), slog.LevelError),
	})
	if err != nil {
		_ = daemonize.SignalOutcome(err)
		return fmt.Errorf("mount: %w", err)
	}

	registerSIGINTHandler(mountPoint)

	if err := daemonize.SignalOutcome(nil); err != nil {
		logger.Errorf("signaling successful mount to parent: %v", err)
	}
	logger.Infof("ros3fs: mounted %s at %s", newConfig.S3.BucketName, mountPoint)

	return mfs.Join(context.Background())
}

// registerSIGINTHandler unmounts mountPoint on SIGINT, the same pattern as
// gcsfuse's cmd/legacy_main.go registerSIGINTHandler.
func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	go func() {
		for range signalChan {
			logger.Infof("received SIGINT, attempting to unmount")
			if err := fuse.Unmount(mountPoint); err != nil {
				logger.Errorf("failed to unmount in response to SIGINT: %v", err)
				continue
			}
			logger.Infof("successfully unmounted in response to SIGINT")
			return
		}
	}()
}

// daemonizeAndWait re-execs this binary with the in-background env var set,
// waiting for the child to either signal a successful mount or exit with an
// error (spec §6: the mount call itself is expected to be long-lived, so a
// --cache_dir user invoking it from a shell needs a backgrounded process).
func daemonizeAndWait(mountPoint string) error {
	path, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable path: %w", err)
	}

	args := append([]string{}, os.Args[1:]...)
	env := append(os.Environ(), inBackgroundEnv+"=true")

	if err := daemonize.Run(path, args, env, os.Stdout); err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}
	logger.Infof("ros3fs: successfully mounted %s in the background", mountPoint)
	return nil
}

// runDebugCopyObject fetches one object directly to local disk and exits,
// bypassing the mount entirely (SPEC_FULL.md "Supplemented features").
func runDebugCopyObject(newConfig cfg.Config) error {
	ctx, err := rosfs.New(rosfs.Config{
		Endpoint:          newConfig.S3.Endpoint,
		BucketName:        newConfig.S3.BucketName,
		CacheDir:          newConfig.Cache.Dir,
		RequestsPerSecond: newConfig.S3.RequestsPerSecond,
	})
	if err != nil {
		return fmt.Errorf("initializing context: %w", err)
	}
	defer ctx.Close()

	if err := ctx.DebugCopyObject(context.Background(), newConfig.Debug.CopyObjectKey, newConfig.Debug.CopyObjectDest); err != nil {
		return fmt.Errorf("copying %s to %s: %w", newConfig.Debug.CopyObjectKey, newConfig.Debug.CopyObjectDest, err)
	}
	fmt.Printf("copied %s to %s\n", newConfig.Debug.CopyObjectKey, newConfig.Debug.CopyObjectDest)
	return nil
}

package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/akawashiro/ros3fs/cfg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	MountConfig   cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "ros3fs [flags] mount_point",
	Short: "Mount an S3-compatible bucket as a read-only local file system",
	Long: `ros3fs is a read-only FUSE adapter that lists an S3-compatible
bucket once, caches its directory tree and object bodies on local disk, and
periodically refreshes both in the background.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if err := validateConfig(); err != nil {
			return err
		}

		if MountConfig.Debug.CopyObjectKey != "" {
			return runDebugCopyObject(MountConfig)
		}

		if len(args) != 1 {
			return fmt.Errorf("mount_point is required")
		}
		mountPoint, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("canonicalizing mount point: %w", err)
		}
		return runMount(mountPoint, MountConfig)
	},
}

func validateConfig() error {
	if MountConfig.S3.Endpoint == "" {
		return fmt.Errorf("--endpoint is required")
	}
	if MountConfig.S3.BucketName == "" {
		return fmt.Errorf("--bucket_name is required")
	}
	if MountConfig.Cache.Dir == "" {
		return fmt.Errorf("--cache_dir is required")
	}
	return nil
}

// Execute runs the root command, matching gcsfuse's cmd.Execute entry point.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&MountConfig)
		return
	}
	abs, err := filepath.Abs(cfgFile)
	if err != nil {
		configFileErr = fmt.Errorf("resolving config file path: %w", err)
		return
	}
	viper.SetConfigFile(abs)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&MountConfig)
}

// parseSeverity maps the --log_severity flag to a slog.Level, falling back
// to Info for an unrecognized value rather than failing the mount.
func parseSeverity(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return slog.LevelDebug - 4
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

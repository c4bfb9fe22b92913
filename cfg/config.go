// Package cfg binds the ros3fs CLI flags to a viper-backed Config struct,
// the same split gcsfuse's cfg/config.go makes between the flag surface
// (BindFlags) and the struct cmd/root.go unmarshals into.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved mount configuration (spec §6 CLI surface).
type Config struct {
	S3      S3Config      `yaml:"s3"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Debug   DebugConfig   `yaml:"debug"`
}

// S3Config names the bucket and endpoint this mount serves (spec §6
// --endpoint, --bucket_name).
type S3Config struct {
	Endpoint          string  `yaml:"endpoint"`
	BucketName        string  `yaml:"bucket-name"`
	Region            string  `yaml:"region"`
	RequestsPerSecond float64 `yaml:"requests-per-second"`
}

// CacheConfig controls the on-disk cache directory (spec §6 --cache_dir,
// --clear_cache, --update_seconds).
type CacheConfig struct {
	Dir           string `yaml:"dir"`
	ClearOnMount  bool   `yaml:"clear-on-mount"`
	UpdateSeconds int    `yaml:"update-seconds"`
}

// LoggingConfig mirrors gcsfuse's Logging section.
type LoggingConfig struct {
	Format     string `yaml:"format"`
	FilePath   string `yaml:"file-path"`
	Severity   string `yaml:"severity"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// MetricsConfig controls the Prometheus scrape endpoint (SPEC_FULL.md
// "DOMAIN STACK" — prometheus/client_golang). Addr is empty by default,
// meaning no HTTP server is started.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DebugConfig exposes the supplemented DebugCopyObject escape hatch
// (SPEC_FULL.md "Supplemented features") as a one-shot CLI action rather
// than a long-lived mount.
type DebugConfig struct {
	CopyObjectKey  string `yaml:"copy-object-key"`
	CopyObjectDest string `yaml:"copy-object-dest"`
}

// BindFlags registers every flag on flagSet and binds it to the matching
// viper key, the same one-flag-at-a-time style as gcsfuse's cfg.BindFlags.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("endpoint", "", "", "S3-compatible endpoint URL to mount (required).")
	if err = viper.BindPFlag("s3.endpoint", flagSet.Lookup("endpoint")); err != nil {
		return err
	}

	flagSet.StringP("bucket_name", "", "", "Bucket name to mount (required).")
	if err = viper.BindPFlag("s3.bucket-name", flagSet.Lookup("bucket_name")); err != nil {
		return err
	}

	flagSet.StringP("region", "", "us-east-1", "Region setting; not passed to the object-store client, which signs requests for us-east-1.")
	if err = viper.BindPFlag("s3.region", flagSet.Lookup("region")); err != nil {
		return err
	}

	flagSet.Float64P("requests_per_second", "", 0, "Client-side rate limit for object-store requests; 0 means unlimited.")
	if err = viper.BindPFlag("s3.requests-per-second", flagSet.Lookup("requests_per_second")); err != nil {
		return err
	}

	flagSet.StringP("cache_dir", "", "", "Directory used for the metadata snapshot and cached file bodies (required).")
	if err = viper.BindPFlag("cache.dir", flagSet.Lookup("cache_dir")); err != nil {
		return err
	}

	flagSet.BoolP("clear_cache", "", false, "Wipe the cache directory's content files and snapshot on mount.")
	if err = viper.BindPFlag("cache.clear-on-mount", flagSet.Lookup("clear_cache")); err != nil {
		return err
	}

	flagSet.IntP("update_seconds", "", 3600, "How often to re-list the bucket and refresh the directory tree, in seconds.")
	if err = viper.BindPFlag("cache.update-seconds", flagSet.Lookup("update_seconds")); err != nil {
		return err
	}

	flagSet.StringP("log_format", "", "text", "Log line format: text or json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log_format")); err != nil {
		return err
	}

	flagSet.StringP("log_file", "", "", "Path to the log file; empty means stderr.")
	if err = viper.BindPFlag("logging.file-path", flagSet.Lookup("log_file")); err != nil {
		return err
	}

	flagSet.StringP("log_severity", "", "info", "Minimum severity to log: trace, debug, info, warn, or error.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log_severity")); err != nil {
		return err
	}

	flagSet.IntP("log_rotate_max_size_mb", "", 100, "Max size in MB of a log file before it is rotated.")
	if err = viper.BindPFlag("logging.max-size-mb", flagSet.Lookup("log_rotate_max_size_mb")); err != nil {
		return err
	}

	flagSet.IntP("log_rotate_backups", "", 5, "Max number of rotated log files to keep.")
	if err = viper.BindPFlag("logging.max-backups", flagSet.Lookup("log_rotate_backups")); err != nil {
		return err
	}

	flagSet.IntP("log_rotate_max_age_days", "", 30, "Max age in days of a rotated log file before deletion.")
	if err = viper.BindPFlag("logging.max-age-days", flagSet.Lookup("log_rotate_max_age_days")); err != nil {
		return err
	}

	flagSet.StringP("metrics_addr", "", "", "Address to serve Prometheus metrics on (e.g. :9090); empty disables the endpoint.")
	if err = viper.BindPFlag("metrics.addr", flagSet.Lookup("metrics_addr")); err != nil {
		return err
	}

	flagSet.StringP("debug_copy_object_key", "", "", "If set, copy this one object to --debug_copy_object_dest and exit instead of mounting.")
	if err = viper.BindPFlag("debug.copy-object-key", flagSet.Lookup("debug_copy_object_key")); err != nil {
		return err
	}

	flagSet.StringP("debug_copy_object_dest", "", "", "Destination path for --debug_copy_object_key.")
	if err = viper.BindPFlag("debug.copy-object-dest", flagSet.Lookup("debug_copy_object_dest")); err != nil {
		return err
	}

	return nil
}

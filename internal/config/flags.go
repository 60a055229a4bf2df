package config

import (
	"github.com/spf13/pflag"
)

// Flag names shared by every command.
const (
	FlagConfig  = "config"
	FlagEnvFile = "env-file"
)

// RegisterFlags defines the configuration flags on fs. Defaults are left
// empty: only flags the user sets override the file and environment.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(FlagConfig, "c", "", "JSON or YAML config file")
	fs.String(FlagEnvFile, ".env", "dotenv file with DEPMSG_* and MSG* variables")

	fs.String("db-dialect", "", "database dialect: postgres, mysql or sqlite")
	fs.StringP("database-dsn", "d", "", "database DSN")
	fs.Int("db-max-open-conns", 0, "connection pool size")

	fs.String("storage", "", "message file storage: fs or s3")
	fs.String("storage-root", "", "root directory of the message file tree")
	fs.String("s3-bucket", "", "S3 bucket holding message files")
	fs.String("s3-prefix", "", "key prefix inside the S3 bucket")
	fs.String("s3-region", "", "S3 region")
	fs.String("s3-endpoint", "", "S3 base endpoint (MinIO)")

	fs.String("mode", "", "backend mode: file-only, database-only, dual-write-file-read, dual-write-database-read")
	fs.StringSlice("write-targets", nil, "explicit write targets in order (file,database)")
	fs.String("read-target", "", "read target: file or database")
	fs.String("on-write-failure", "", "dual-write failure policy: fail_fast or best_effort")

	fs.String("journal", "", "divergence journal directory")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("log-format", "", "log format: text or json")
	fs.String("metrics-textfile", "", "write Prometheus metrics to this file when a command finishes")
}

// ApplyFlags copies every flag the user set onto c. Setting --mode drops
// write targets that came from the file or environment.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	if fs.Lookup("mode") != nil && fs.Changed("mode") {
		c.WriteTargets = nil
		c.ReadTarget = ""
	}

	strs := map[string]*string{
		"db-dialect":       &c.DBDialect,
		"database-dsn":     &c.DatabaseDSN,
		"storage":          &c.Storage,
		"storage-root":     &c.StorageRoot,
		"s3-bucket":        &c.S3Bucket,
		"s3-prefix":        &c.S3Prefix,
		"s3-region":        &c.S3Region,
		"s3-endpoint":      &c.S3BaseEndpoint,
		"mode":             &c.BackendMode,
		"read-target":      &c.ReadTarget,
		"on-write-failure": &c.OnWriteFailure,
		"journal":          &c.JournalPath,
		"log-level":        &c.LogLevel,
		"log-format":       &c.LogFormat,
		"metrics-textfile": &c.MetricsTextfile,
	}
	for name, dst := range strs {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Lookup("write-targets") != nil && fs.Changed("write-targets") {
		v, err := fs.GetStringSlice("write-targets")
		if err != nil {
			return err
		}
		c.WriteTargets = v
	}
	if fs.Lookup("db-max-open-conns") != nil && fs.Changed("db-max-open-conns") {
		n, err := fs.GetInt("db-max-open-conns")
		if err != nil {
			return err
		}
		c.DBMaxOpenConns = n
	}
	return nil
}

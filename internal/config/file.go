package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/depmsg/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk form of Config. Durations accept "1s" style
// strings or integer nanoseconds. Zero values leave the current setting
// untouched.
type FileConfig struct {
	Database struct {
		Dialect         string         `json:"dialect" yaml:"dialect"`
		DSN             string         `json:"dsn" yaml:"dsn"`
		MaxOpenConns    int            `json:"max_open_conns" yaml:"max_open_conns"`
		MaxIdleConns    int            `json:"max_idle_conns" yaml:"max_idle_conns"`
		ConnMaxLifetime timex.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	} `json:"database" yaml:"database"`

	Storage struct {
		Kind         string `json:"kind" yaml:"kind"`
		Root         string `json:"root" yaml:"root"`
		Bucket       string `json:"s3_bucket" yaml:"s3_bucket"`
		Prefix       string `json:"s3_prefix" yaml:"s3_prefix"`
		Region       string `json:"s3_region" yaml:"s3_region"`
		BaseEndpoint string `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
		AccessKey    string `json:"s3_access_key" yaml:"s3_access_key"`
		SecretKey    string `json:"s3_secret_key" yaml:"s3_secret_key"`
		UsePathStyle *bool  `json:"s3_use_path_style" yaml:"s3_use_path_style"`
	} `json:"storage" yaml:"storage"`

	Backend struct {
		Mode           string   `json:"mode" yaml:"mode"`
		WriteTargets   []string `json:"write_targets" yaml:"write_targets"`
		ReadTarget     string   `json:"read_target" yaml:"read_target"`
		OnWriteFailure string   `json:"on_write_failure" yaml:"on_write_failure"`
	} `json:"backend" yaml:"backend"`

	JournalPath string `json:"journal_path" yaml:"journal_path"`

	Retry struct {
		MaxRetries *uint64        `json:"max_retries" yaml:"max_retries"`
		BaseDelay  timex.Duration `json:"base_delay" yaml:"base_delay"`
		MaxDelay   timex.Duration `json:"max_delay" yaml:"max_delay"`
	} `json:"retry" yaml:"retry"`

	Migrate struct {
		Workers int     `json:"workers" yaml:"workers"`
		Rate    float64 `json:"rate" yaml:"rate"`
	} `json:"migrate" yaml:"migrate"`

	Log struct {
		Level  string `json:"level" yaml:"level"`
		Format string `json:"format" yaml:"format"`
	} `json:"log" yaml:"log"`

	MetricsTextfile string `json:"metrics_textfile" yaml:"metrics_textfile"`
}

// parseFile overlays the JSON or YAML file at path onto c. The format is
// chosen by extension; anything but .yaml/.yml is read as JSON.
func parseFile(c *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, fc)
	default:
		err = json.Unmarshal(b, fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	fc.apply(c)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.DBDialect, fc.Database.Dialect)
	setString(&c.DatabaseDSN, fc.Database.DSN)
	if fc.Database.MaxOpenConns > 0 {
		c.DBMaxOpenConns = fc.Database.MaxOpenConns
	}
	if fc.Database.MaxIdleConns > 0 {
		c.DBMaxIdleConns = fc.Database.MaxIdleConns
	}
	if d := fc.Database.ConnMaxLifetime.Duration; d > 0 {
		c.DBConnMaxLifetime = d
	}

	setString(&c.Storage, fc.Storage.Kind)
	setString(&c.StorageRoot, fc.Storage.Root)
	setString(&c.S3Bucket, fc.Storage.Bucket)
	setString(&c.S3Prefix, fc.Storage.Prefix)
	setString(&c.S3Region, fc.Storage.Region)
	setString(&c.S3BaseEndpoint, fc.Storage.BaseEndpoint)
	setString(&c.S3AccessKey, fc.Storage.AccessKey)
	setString(&c.S3SecretKey, fc.Storage.SecretKey)
	if fc.Storage.UsePathStyle != nil {
		c.S3UsePathStyle = *fc.Storage.UsePathStyle
	}

	setString(&c.BackendMode, fc.Backend.Mode)
	if len(fc.Backend.WriteTargets) > 0 {
		c.WriteTargets = fc.Backend.WriteTargets
	}
	setString(&c.ReadTarget, fc.Backend.ReadTarget)
	setString(&c.OnWriteFailure, fc.Backend.OnWriteFailure)

	setString(&c.JournalPath, fc.JournalPath)

	if fc.Retry.MaxRetries != nil {
		c.RetryMaxRetries = *fc.Retry.MaxRetries
	}
	if d := fc.Retry.BaseDelay.Duration; d > 0 {
		c.RetryBaseDelay = d
	}
	if d := fc.Retry.MaxDelay.Duration; d > 0 {
		c.RetryMaxDelay = d
	}

	if fc.Migrate.Workers > 0 {
		c.MigrateWorkers = fc.Migrate.Workers
	}
	if fc.Migrate.Rate > 0 {
		c.MigrateRate = fc.Migrate.Rate
	}

	setString(&c.LogLevel, fc.Log.Level)
	setString(&c.LogFormat, fc.Log.Format)
	setString(&c.MetricsTextfile, fc.MetricsTextfile)
}

// Package config handles configuration for the message storage tools:
// defaults, an optional JSON or YAML file, the environment (including a
// .env file and the legacy MSGDB_*/MSGCIF_* switches) and command-line
// flags, applied in that order.
package config

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/depmsg/internal/backend"
	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/dmitrijs2005/depmsg/internal/dbx"
	"github.com/dmitrijs2005/depmsg/internal/docstore/blob"
	"github.com/dmitrijs2005/depmsg/internal/retryx"
)

// Storage kinds for message files.
const (
	StorageFS = "fs"
	StorageS3 = "s3"
)

// Config holds runtime settings.
//
// Backend selection: when WriteTargets is set it is used together with
// ReadTarget; otherwise BackendMode names one of the backend modes.
type Config struct {
	DBDialect         string
	DatabaseDSN       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	Storage        string
	StorageRoot    string
	S3Bucket       string
	S3Prefix       string
	S3Region       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	BackendMode    string
	WriteTargets   []string
	ReadTarget     string
	OnWriteFailure string

	JournalPath string

	RetryMaxRetries uint64
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration

	MigrateWorkers int
	MigrateRate    float64

	LogLevel        string
	LogFormat       string
	MetricsTextfile string
}

// LoadDefaults populates Config with development defaults: a local SQLite
// database next to a local message file tree.
func (c *Config) LoadDefaults() {
	c.DBDialect = string(dbx.SQLite)
	c.DatabaseDSN = "file:depmsg.db"
	c.DBMaxOpenConns = 10
	c.DBMaxIdleConns = 5
	c.DBConnMaxLifetime = 30 * time.Minute

	c.Storage = StorageFS
	c.StorageRoot = "./messages"
	c.S3Region = "us-east-1"
	c.S3UsePathStyle = true

	c.BackendMode = string(backend.ModeFileOnly)
	c.OnWriteFailure = string(backend.FailFast)

	c.JournalPath = ""

	p := retryx.DefaultPolicy()
	c.RetryMaxRetries = p.MaxRetries
	c.RetryBaseDelay = p.BaseDelay
	c.RetryMaxDelay = p.MaxDelay

	c.MigrateWorkers = 4
	c.MigrateRate = 0

	c.LogLevel = "info"
	c.LogFormat = "text"
}

func (c *Config) Dialect() (dbx.Dialect, error) {
	return dbx.ParseDialect(c.DBDialect)
}

func (c *Config) Pool() dbx.PoolConfig {
	return dbx.PoolConfig{
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
	}
}

func (c *Config) Retry() retryx.Policy {
	return retryx.Policy{MaxRetries: c.RetryMaxRetries, BaseDelay: c.RetryBaseDelay, MaxDelay: c.RetryMaxDelay}
}

func (c *Config) S3() blob.S3Config {
	return blob.S3Config{
		Bucket:       c.S3Bucket,
		Prefix:       c.S3Prefix,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		UsePathStyle: c.S3UsePathStyle,
	}
}

// Backend builds the explicit facade configuration.
func (c *Config) Backend() (backend.Config, error) {
	policy, err := backend.ParseFailurePolicy(c.OnWriteFailure)
	if err != nil {
		return backend.Config{}, err
	}
	if len(c.WriteTargets) == 0 {
		return backend.ConfigForMode(backend.Mode(c.BackendMode), policy)
	}

	bc := backend.Config{OnWriteFailure: policy}
	for _, s := range c.WriteTargets {
		t, err := backend.ParseTarget(s)
		if err != nil {
			return backend.Config{}, err
		}
		bc.WriteTargets = append(bc.WriteTargets, t)
	}
	read := c.ReadTarget
	if read == "" {
		read = string(bc.WriteTargets[0])
	}
	if bc.ReadTarget, err = backend.ParseTarget(read); err != nil {
		return backend.Config{}, err
	}
	return bc, bc.Validate()
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if _, err := c.Dialect(); err != nil {
		return err
	}
	switch c.Storage {
	case StorageFS:
		if c.StorageRoot == "" {
			return fmt.Errorf("%w: storage root is required", common.ErrInvalidConfig)
		}
	case StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("%w: s3 bucket is required", common.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage %q", common.ErrInvalidConfig, c.Storage)
	}
	if _, err := c.Backend(); err != nil {
		return err
	}
	if c.MigrateWorkers < 1 {
		return fmt.Errorf("%w: migrate workers must be positive", common.ErrInvalidConfig)
	}
	if c.MigrateRate < 0 {
		return fmt.Errorf("%w: migrate rate must not be negative", common.ErrInvalidConfig)
	}
	return nil
}

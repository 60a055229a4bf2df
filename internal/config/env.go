package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/depmsg/internal/backend"
	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/dmitrijs2005/depmsg/internal/dbx"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

const envPrefix = "DEPMSG_"

type lookupFunc func(key string) (string, bool)

// withDotEnv returns a lookup that falls back to the variables of a .env
// file. The process environment wins. A missing file is only an error when
// required is set.
func withDotEnv(lookup lookupFunc, path string, required bool) (lookupFunc, error) {
	if path == "" {
		return lookup, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return lookup, nil
		}
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	}, nil
}

// parseEnv overlays DEPMSG_* variables, the legacy backend switches and the
// legacy MSGDB_* connection settings onto c.
func parseEnv(c *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("DB_DIALECT", &c.DBDialect)
	str("DATABASE_DSN", &c.DatabaseDSN)
	str("STORAGE", &c.Storage)
	str("STORAGE_ROOT", &c.StorageRoot)
	str("S3_BUCKET", &c.S3Bucket)
	str("S3_PREFIX", &c.S3Prefix)
	str("S3_REGION", &c.S3Region)
	str("S3_BASE_ENDPOINT", &c.S3BaseEndpoint)
	str("S3_ACCESS_KEY", &c.S3AccessKey)
	str("S3_SECRET_KEY", &c.S3SecretKey)
	str("BACKEND_MODE", &c.BackendMode)
	str("READ_TARGET", &c.ReadTarget)
	str("ON_WRITE_FAILURE", &c.OnWriteFailure)
	str("JOURNAL_PATH", &c.JournalPath)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("METRICS_TEXTFILE", &c.MetricsTextfile)

	if v, ok := lookup(envPrefix + "WRITE_TARGETS"); ok && v != "" {
		c.WriteTargets = splitList(v)
	}
	if v, ok := lookup(envPrefix + "S3_USE_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sS3_USE_PATH_STYLE: %v", common.ErrInvalidConfig, envPrefix, err)
		}
		c.S3UsePathStyle = b
	}
	if v, ok := lookup(envPrefix + "MIGRATE_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sMIGRATE_WORKERS: %v", common.ErrInvalidConfig, envPrefix, err)
		}
		c.MigrateWorkers = n
	}

	if err := parseLegacySwitches(c, lookup); err != nil {
		return err
	}
	parseLegacyDatabase(c, lookup)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseLegacySwitches maps MSGDB_WRITES_ENABLED, MSGDB_READS_ENABLED,
// MSGCIF_WRITES_ENABLED and MSGCIF_READS_ENABLED onto explicit targets
// when at least one of them is set.
func parseLegacySwitches(c *Config, lookup lookupFunc) error {
	var f backend.Flags
	var seen bool
	for _, sw := range []struct {
		name string
		dst  *bool
	}{
		{"MSGDB_WRITES_ENABLED", &f.DatabaseWrites},
		{"MSGDB_READS_ENABLED", &f.DatabaseReads},
		{"MSGCIF_WRITES_ENABLED", &f.FileWrites},
		{"MSGCIF_READS_ENABLED", &f.FileReads},
	} {
		v, ok := lookup(sw.name)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", common.ErrInvalidConfig, sw.name, err)
		}
		*sw.dst = b
		seen = true
	}
	if !seen {
		return nil
	}

	bc := backend.ConfigFromFlags(f, backend.FailurePolicy(c.OnWriteFailure))
	c.WriteTargets = nil
	for _, t := range bc.WriteTargets {
		c.WriteTargets = append(c.WriteTargets, string(t))
	}
	c.ReadTarget = string(bc.ReadTarget)
	return nil
}

// parseLegacyDatabase builds a MySQL DSN from MSGDB_HOST, MSGDB_PORT,
// MSGDB_USER, MSGDB_PASS and MSGDB_NAME when MSGDB_HOST is set and no
// explicit DSN was given.
func parseLegacyDatabase(c *Config, lookup lookupFunc) {
	host, ok := lookup("MSGDB_HOST")
	if !ok || host == "" {
		return
	}
	if v, ok := lookup(envPrefix + "DATABASE_DSN"); ok && v != "" {
		return
	}
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}

	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, get("MSGDB_PORT", "3306"))
	mc.User = get("MSGDB_USER", "msgmodule_user")
	mc.Passwd = get("MSGDB_PASS", "")
	mc.DBName = get("MSGDB_NAME", "wwpdb_messaging")

	c.DBDialect = string(dbx.MySQL)
	c.DatabaseDSN = mc.FormatDSN()
}

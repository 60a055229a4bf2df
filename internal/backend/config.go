package backend

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/depmsg/internal/common"
)

type Target string

const (
	TargetFile     Target = "file"
	TargetDatabase Target = "database"
)

func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetFile, TargetDatabase:
		return t, nil
	case "cif":
		return TargetFile, nil
	case "db":
		return TargetDatabase, nil
	}
	return "", fmt.Errorf("%w: unknown backend target %q", common.ErrInvalidConfig, s)
}

type FailurePolicy string

const (
	FailFast   FailurePolicy = "fail_fast"
	BestEffort FailurePolicy = "best_effort"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))); p {
	case FailFast, BestEffort:
		return p, nil
	case "":
		return FailFast, nil
	}
	return "", fmt.Errorf("%w: unknown write failure policy %q", common.ErrInvalidConfig, s)
}

// Config tells the facade which backends take part in writes and which one
// serves reads. Writes go to the targets in the listed order.
type Config struct {
	WriteTargets   []Target
	ReadTarget     Target
	OnWriteFailure FailurePolicy
}

func (c Config) Validate() error {
	if len(c.WriteTargets) == 0 {
		return fmt.Errorf("%w: at least one write target is required", common.ErrInvalidConfig)
	}
	seen := map[Target]bool{}
	for _, t := range c.WriteTargets {
		if t != TargetFile && t != TargetDatabase {
			return fmt.Errorf("%w: unknown write target %q", common.ErrInvalidConfig, t)
		}
		if seen[t] {
			return fmt.Errorf("%w: write target %q listed twice", common.ErrInvalidConfig, t)
		}
		seen[t] = true
	}
	if c.ReadTarget != TargetFile && c.ReadTarget != TargetDatabase {
		return fmt.Errorf("%w: unknown read target %q", common.ErrInvalidConfig, c.ReadTarget)
	}
	switch c.OnWriteFailure {
	case FailFast, BestEffort, "":
	default:
		return fmt.Errorf("%w: unknown write failure policy %q", common.ErrInvalidConfig, c.OnWriteFailure)
	}
	return nil
}

func (c Config) policy() FailurePolicy {
	if c.OnWriteFailure == "" {
		return FailFast
	}
	return c.OnWriteFailure
}

// Writes reports whether t is a write target.
func (c Config) Writes(t Target) bool {
	for _, w := range c.WriteTargets {
		if w == t {
			return true
		}
	}
	return false
}

// Dual reports whether more than one backend is written.
func (c Config) Dual() bool {
	return len(c.WriteTargets) > 1
}

func (c Config) String() string {
	ts := make([]string, len(c.WriteTargets))
	for i, t := range c.WriteTargets {
		ts[i] = string(t)
	}
	return fmt.Sprintf("write=%s read=%s on_failure=%s", strings.Join(ts, ","), c.ReadTarget, c.policy())
}

// Mode names the supported backend combinations.
type Mode string

const (
	ModeFileOnly              Mode = "file-only"
	ModeDatabaseOnly          Mode = "database-only"
	ModeDualWriteFileRead     Mode = "dual-write-file-read"
	ModeDualWriteDatabaseRead Mode = "dual-write-database-read"
)

var Modes = []Mode{ModeFileOnly, ModeDatabaseOnly, ModeDualWriteFileRead, ModeDualWriteDatabaseRead}

// ConfigForMode expands a named mode. Dual-write modes write the file
// backend first.
func ConfigForMode(m Mode, policy FailurePolicy) (Config, error) {
	var c Config
	switch m {
	case ModeFileOnly:
		c = Config{WriteTargets: []Target{TargetFile}, ReadTarget: TargetFile}
	case ModeDatabaseOnly:
		c = Config{WriteTargets: []Target{TargetDatabase}, ReadTarget: TargetDatabase}
	case ModeDualWriteFileRead:
		c = Config{WriteTargets: []Target{TargetFile, TargetDatabase}, ReadTarget: TargetFile}
	case ModeDualWriteDatabaseRead:
		c = Config{WriteTargets: []Target{TargetFile, TargetDatabase}, ReadTarget: TargetDatabase}
	default:
		return Config{}, fmt.Errorf("%w: unknown backend mode %q", common.ErrInvalidConfig, m)
	}
	c.OnWriteFailure = policy
	return c, c.Validate()
}

// Flags are the four independent switches of the legacy deployment
// environment (MSGDB_WRITES_ENABLED, MSGDB_READS_ENABLED,
// MSGCIF_WRITES_ENABLED, MSGCIF_READS_ENABLED).
type Flags struct {
	DatabaseWrites bool
	DatabaseReads  bool
	FileWrites     bool
	FileReads      bool
}

// ConfigFromFlags maps the legacy switches onto a Config. Database reads win
// when both read switches are on; with no write switch on the file backend
// is used alone.
func ConfigFromFlags(f Flags, policy FailurePolicy) Config {
	c := Config{OnWriteFailure: policy, ReadTarget: TargetFile}
	if f.FileWrites {
		c.WriteTargets = append(c.WriteTargets, TargetFile)
	}
	if f.DatabaseWrites {
		c.WriteTargets = append(c.WriteTargets, TargetDatabase)
	}
	if len(c.WriteTargets) == 0 {
		c.WriteTargets = []Target{TargetFile}
	}
	if f.DatabaseReads {
		c.ReadTarget = TargetDatabase
	}
	return c
}

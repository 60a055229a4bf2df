// Package journal keeps a durable record of dual-write divergences: writes
// that reached some backends but not others. Entries are keyed by
// deposition so that reconciliation can replay and resolve them per
// deposition.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

type Op string

const (
	OpCreateMessage Op = "create_message"
	OpUpdateStatus  Op = "update_status"
)

const keyPrefix = "div:"

// Divergence describes one write that did not land on every target.
type Divergence struct {
	DepositionID string    `json:"deposition_id"`
	MessageID    string    `json:"message_id"`
	Op           Op        `json:"op"`
	Succeeded    []string  `json:"succeeded"`
	Failed       []string  `json:"failed"`
	Error        string    `json:"error,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

func (d *Divergence) key() []byte {
	return []byte(keyPrefix + d.DepositionID + ":" + d.MessageID + ":" + string(d.Op))
}

// FailedTarget reports whether target is among the failed targets.
func (d *Divergence) FailedTarget(target string) bool {
	for _, f := range d.Failed {
		if f == target {
			return true
		}
	}
	return false
}

type Journal struct {
	db  *pebble.DB
	now func() time.Time
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	return open(path, &pebble.Options{})
}

// OpenInMemory returns a journal that lives only as long as the process.
func OpenInMemory() (*Journal, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()})
}

func open(path string, opts *pebble.Options) (*Journal, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record stores d, replacing an earlier entry for the same message and op.
func (j *Journal) Record(_ context.Context, d Divergence) error {
	if d.RecordedAt.IsZero() {
		d.RecordedAt = j.now().UTC()
	}
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode divergence: %w", err)
	}
	if err := j.db.Set(d.key(), b, pebble.Sync); err != nil {
		return fmt.Errorf("journal write: %w", err)
	}
	return nil
}

func depositionBounds(depID string) ([]byte, []byte) {
	lower := []byte(keyPrefix + depID + ":")
	upper := make([]byte, len(lower))
	copy(upper, lower)
	upper[len(upper)-1]++
	return lower, upper
}

func prefixBounds() ([]byte, []byte) {
	lower := []byte(keyPrefix)
	upper := make([]byte, len(lower))
	copy(upper, lower)
	upper[len(upper)-1]++
	return lower, upper
}

func (j *Journal) scan(lower, upper []byte) ([]Divergence, error) {
	it, err := j.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("journal iterator: %w", err)
	}
	defer it.Close()

	var out []Divergence
	for ok := it.First(); ok; ok = it.Next() {
		var d Divergence
		if err := json.Unmarshal(it.Value(), &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.Key(), err)
		}
		out = append(out, d)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("journal scan: %w", err)
	}
	return out, nil
}

// List returns entries for depID, or every entry when depID is empty.
func (j *Journal) List(_ context.Context, depID string) ([]Divergence, error) {
	if depID == "" {
		return j.scan(prefixBounds())
	}
	return j.scan(depositionBounds(depID))
}

// Depositions returns the distinct depositions that have open entries.
func (j *Journal) Depositions(ctx context.Context) ([]string, error) {
	all, err := j.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []string
	seen := map[string]bool{}
	for _, d := range all {
		if !seen[d.DepositionID] {
			seen[d.DepositionID] = true
			out = append(out, d.DepositionID)
		}
	}
	return out, nil
}

// ResolveDeposition removes every entry of depID.
func (j *Journal) ResolveDeposition(_ context.Context, depID string) error {
	if strings.TrimSpace(depID) == "" {
		return fmt.Errorf("resolve: empty deposition id")
	}
	lower, upper := depositionBounds(depID)
	if err := j.db.DeleteRange(lower, upper, pebble.Sync); err != nil {
		return fmt.Errorf("journal resolve %s: %w", depID, err)
	}
	return nil
}

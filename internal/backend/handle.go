// Package backend is the single entry point for message storage. Select
// turns an explicit Config into a Handle that routes writes to one or both
// backends and reads to exactly one, without callers knowing which.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/dmitrijs2005/depmsg/internal/journal"
	"github.com/dmitrijs2005/depmsg/internal/logging"
	"github.com/dmitrijs2005/depmsg/internal/metrics"
	"github.com/dmitrijs2005/depmsg/internal/models"
	"github.com/dmitrijs2005/depmsg/internal/retryx"
	"go.uber.org/multierr"
)

// Database is the relational backend as seen by the facade.
type Database interface {
	InsertMessage(ctx context.Context, rec *models.Record) error
	UpsertStatus(ctx context.Context, st *models.MessageStatus) error
	ListByDeposition(ctx context.Context, depID string) ([]models.Message, error)
	FileReferences(ctx context.Context, msgID string) ([]models.FileReference, error)
	Close() error
}

// Files is the flat-file backend as seen by the facade.
type Files interface {
	AppendRecord(ctx context.Context, rec *models.Record) error
	UpdateStatus(ctx context.Context, st *models.MessageStatus) error
	Messages(ctx context.Context, depID string) ([]models.Message, error)
	FileReferences(ctx context.Context, depID, msgID string) ([]models.FileReference, error)
}

// Journal records divergent dual writes.
type Journal interface {
	Record(ctx context.Context, d journal.Divergence) error
}

// Providers opens backends on first use. Only the providers for targets the
// Config uses are required.
type Providers struct {
	OpenDatabase func(ctx context.Context) (Database, error)
	OpenFiles    func(ctx context.Context) (Files, error)

	Journal Journal
	Metrics *metrics.Metrics
	Logger  logging.Logger
	Retry   retryx.Policy
	Now     func() time.Time
}

// WriteResult describes a successful write. Partial is set when a
// best_effort write missed some targets.
type WriteResult struct {
	Succeeded []Target
	Partial   *PartialWriteFailure
}

type Handle struct {
	cfg Config
	p   Providers

	mu     sync.Mutex
	db     Database
	files  Files
	closed bool
}

// Select validates cfg and returns a handle. No backend is contacted until
// the first operation that needs it.
func Select(cfg Config, p Providers) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	need := append([]Target{cfg.ReadTarget}, cfg.WriteTargets...)
	for _, t := range need {
		if t == TargetDatabase && p.OpenDatabase == nil {
			return nil, fmt.Errorf("%w: no database provider", common.ErrInvalidConfig)
		}
		if t == TargetFile && p.OpenFiles == nil {
			return nil, fmt.Errorf("%w: no document store provider", common.ErrInvalidConfig)
		}
	}
	if p.Logger == nil {
		p.Logger = logging.NewDiscard()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Handle{cfg: cfg, p: p}, nil
}

// With selects a handle, runs fn and releases the handle on every exit path.
func With(ctx context.Context, cfg Config, p Providers, fn func(ctx context.Context, h *Handle) error) (err error) {
	h, err := Select(cfg, p)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, h.Close())
	}()
	return fn(ctx, h)
}

func (h *Handle) Config() Config {
	return h.cfg
}

var errClosed = errors.New("backend handle is closed")

func (h *Handle) database(ctx context.Context) (Database, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errClosed
	}
	if h.db != nil {
		return h.db, nil
	}
	db, err := retryx.DoValue(ctx, h.p.Retry, h.p.OpenDatabase)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	h.db = db
	return db, nil
}

func (h *Handle) documents(ctx context.Context) (Files, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errClosed
	}
	if h.files != nil {
		return h.files, nil
	}
	f, err := h.p.OpenFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	h.files = f
	return f, nil
}

// Close releases every backend the handle opened. It is safe to call twice.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

// CreateMessage stores a new message with its attachments and status on
// every write target. Missing id, timestamp, parent and status are filled
// in on rec. A message id that a target already holds counts as written.
func (h *Handle) CreateMessage(ctx context.Context, rec *models.Record) (WriteResult, error) {
	rec.Prepare(h.p.Now())
	if err := rec.Validate(); err != nil {
		return WriteResult{}, fmt.Errorf("%w: %w", common.ErrConstraintViolation, err)
	}

	return h.write(ctx, journal.OpCreateMessage, rec.Message.DepositionID, rec.Message.MessageID,
		func(ctx context.Context, t Target) error {
			switch t {
			case TargetDatabase:
				db, err := h.database(ctx)
				if err != nil {
					return err
				}
				return retryx.Do(ctx, h.p.Retry, func(ctx context.Context) error {
					return db.InsertMessage(ctx, rec)
				})
			default:
				files, err := h.documents(ctx)
				if err != nil {
					return err
				}
				return files.AppendRecord(ctx, rec)
			}
		})
}

// UpdateStatus replaces the status flags of an existing message on every
// write target. DepositionID is required when the file backend is written.
func (h *Handle) UpdateStatus(ctx context.Context, st *models.MessageStatus) (WriteResult, error) {
	if st.MessageID == "" {
		return WriteResult{}, fmt.Errorf("%w: message_id is required", common.ErrInvalidRecord)
	}
	if st.DepositionID == "" && h.cfg.Writes(TargetFile) {
		return WriteResult{}, fmt.Errorf("%w: deposition_id is required", common.ErrInvalidRecord)
	}

	return h.write(ctx, journal.OpUpdateStatus, st.DepositionID, st.MessageID,
		func(ctx context.Context, t Target) error {
			switch t {
			case TargetDatabase:
				db, err := h.database(ctx)
				if err != nil {
					return err
				}
				return retryx.Do(ctx, h.p.Retry, func(ctx context.Context) error {
					return db.UpsertStatus(ctx, st)
				})
			default:
				files, err := h.documents(ctx)
				if err != nil {
					return err
				}
				return files.UpdateStatus(ctx, st)
			}
		})
}

// write runs one logical write against the targets sequentially and applies
// the failure policy.
func (h *Handle) write(ctx context.Context, op journal.Op, depID, msgID string,
	fn func(ctx context.Context, t Target) error) (WriteResult, error) {

	var res WriteResult
	pf := &PartialWriteFailure{Op: string(op), DepositionID: depID, MessageID: msgID}

	for i, t := range h.cfg.WriteTargets {
		err := fn(ctx, t)
		switch {
		case err == nil:
			h.p.Metrics.Write(string(t), string(op), metrics.OutcomeOK)
			res.Succeeded = append(res.Succeeded, t)
			continue
		case errors.Is(err, common.ErrDuplicateKey):
			h.p.Logger.Debug(ctx, "message already stored", "target", t, "message_id", msgID)
			h.p.Metrics.Write(string(t), string(op), metrics.OutcomeDuplicate)
			res.Succeeded = append(res.Succeeded, t)
			continue
		}

		h.p.Metrics.Write(string(t), string(op), metrics.OutcomeFailed)
		h.p.Logger.Warn(ctx, "backend write failed",
			"target", t, "op", op, "deposition_id", depID, "message_id", msgID, "error", err)
		pf.add(t, err)

		if h.cfg.policy() == FailFast {
			pf.Skipped = append(pf.Skipped, h.cfg.WriteTargets[i+1:]...)
			break
		}
	}
	pf.Succeeded = res.Succeeded

	if len(pf.Failed) == 0 {
		return res, nil
	}
	if len(pf.Succeeded) == 0 {
		if !h.cfg.Dual() {
			return WriteResult{}, pf.Errors()[0].Err
		}
		return WriteResult{}, fmt.Errorf("%s %s: %w", op, msgID, multierr.Combine(pf.Unwrap()...))
	}

	h.p.Metrics.PartialWrite()
	h.recordDivergence(ctx, op, pf)

	if h.cfg.policy() == FailFast {
		return WriteResult{}, pf
	}
	h.p.Logger.Warn(ctx, "write reached only some backends", "error", pf)
	res.Partial = pf
	return res, nil
}

func (h *Handle) recordDivergence(ctx context.Context, op journal.Op, pf *PartialWriteFailure) {
	if h.p.Journal == nil {
		return
	}
	err := h.p.Journal.Record(ctx, journal.Divergence{
		DepositionID: pf.DepositionID,
		MessageID:    pf.MessageID,
		Op:           op,
		Succeeded:    targetNames(pf.Succeeded),
		Failed:       targetNames(pf.Failed),
		Error:        multierr.Combine(pf.Unwrap()...).Error(),
		RecordedAt:   h.p.Now().UTC(),
	})
	if err != nil {
		h.p.Logger.Error(ctx, "cannot journal divergent write",
			"deposition_id", pf.DepositionID, "message_id", pf.MessageID, "error", err)
	}
}

// ListMessagesForDeposition reads the messages of a deposition from the
// read target, ordered by timestamp. An unknown deposition gives an empty
// slice on either backend.
func (h *Handle) ListMessagesForDeposition(ctx context.Context, depID string) ([]models.Message, error) {
	if h.cfg.ReadTarget == TargetDatabase {
		db, err := h.database(ctx)
		if err != nil {
			return nil, err
		}
		return retryx.DoValue(ctx, h.p.Retry, func(ctx context.Context) ([]models.Message, error) {
			return db.ListByDeposition(ctx, depID)
		})
	}

	files, err := h.documents(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := files.Messages(ctx, depID)
	if errors.Is(err, common.ErrorNotFound) {
		return []models.Message{}, nil
	}
	return msgs, err
}

// GetFileReferences returns the attachments of one message from the read
// target. Unknown messages yield common.ErrorNotFound.
func (h *Handle) GetFileReferences(ctx context.Context, depID, msgID string) ([]models.FileReference, error) {
	if h.cfg.ReadTarget == TargetDatabase {
		db, err := h.database(ctx)
		if err != nil {
			return nil, err
		}
		return retryx.DoValue(ctx, h.p.Retry, func(ctx context.Context) ([]models.FileReference, error) {
			return db.FileReferences(ctx, msgID)
		})
	}

	files, err := h.documents(ctx)
	if err != nil {
		return nil, err
	}
	return files.FileReferences(ctx, depID, msgID)
}

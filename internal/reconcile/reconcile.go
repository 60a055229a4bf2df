// Package reconcile repairs depositions whose dual writes diverged. The
// journal names the depositions; the repair copies missing messages from
// the files into the database, reapplies statuses the database missed and
// re-exports the database view when a file write was lost.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/depmsg/internal/backend"
	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/dmitrijs2005/depmsg/internal/exporter"
	"github.com/dmitrijs2005/depmsg/internal/journal"
	"github.com/dmitrijs2005/depmsg/internal/logging"
	"github.com/dmitrijs2005/depmsg/internal/migrator"
	"github.com/dmitrijs2005/depmsg/internal/models"
	"go.uber.org/multierr"
)

type Journal interface {
	Depositions(ctx context.Context) ([]string, error)
	List(ctx context.Context, depID string) ([]journal.Divergence, error)
	ResolveDeposition(ctx context.Context, depID string) error
}

// Files is the flat-file side: it is read for statuses and receives
// re-exports.
type Files interface {
	exporter.Sink
	exporter.Reader
}

type StatusWriter interface {
	UpsertStatus(ctx context.Context, st *models.MessageStatus) error
}

type Reconciler struct {
	journal  Journal
	files    Files
	db       StatusWriter
	migrator *migrator.Migrator
	exporter *exporter.Exporter
	logger   logging.Logger
}

func New(j Journal, files Files, db StatusWriter, mg *migrator.Migrator, ex *exporter.Exporter, logger logging.Logger) *Reconciler {
	return &Reconciler{journal: j, files: files, db: db, migrator: mg, exporter: ex, logger: logger}
}

type UnitReport struct {
	DepositionID     string
	Divergences      int
	Migration        *migrator.UnitReport
	StatusesRepaired int
	Exported         []string
	Resolved         bool
	Err              error
}

type Report struct {
	Units []*UnitReport
}

func (r *Report) Failed() bool {
	for _, u := range r.Units {
		if !u.Resolved {
			return true
		}
	}
	return false
}

// Run reconciles every deposition with open journal entries.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	deps, err := r.journal.Depositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	report := &Report{}
	for _, dep := range deps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Units = append(report.Units, r.Deposition(ctx, dep))
	}
	return report, nil
}

// Deposition repairs one deposition and resolves its journal entries when
// every step succeeded.
func (r *Reconciler) Deposition(ctx context.Context, depID string) *UnitReport {
	u := &UnitReport{DepositionID: depID}
	divs, err := r.journal.List(ctx, depID)
	if err != nil {
		u.Err = err
		return u
	}
	u.Divergences = len(divs)

	var dbMessages, fileWrites bool
	var dbStatuses []string
	for _, d := range divs {
		if d.FailedTarget(string(backend.TargetDatabase)) {
			switch d.Op {
			case journal.OpCreateMessage:
				dbMessages = true
			case journal.OpUpdateStatus:
				dbStatuses = append(dbStatuses, d.MessageID)
			}
		}
		if d.FailedTarget(string(backend.TargetFile)) {
			fileWrites = true
		}
	}

	// Files are rewritten from the database, so the database must hold
	// every file message first. A deposition without files has none to keep
	// unless the database itself is missing messages.
	if dbMessages || fileWrites {
		u.Migration = r.migrator.MigrateDeposition(ctx, depID)
		noFiles := u.Migration.Failed == 0 && errors.Is(u.Migration.Err, common.ErrorNotFound)
		if !u.Migration.OK() && (dbMessages || !noFiles) {
			u.Err = multierr.Append(u.Err, fmt.Errorf("migrate %s: %d records failed", depID, u.Migration.Failed))
			if u.Migration.Err != nil {
				u.Err = multierr.Append(u.Err, u.Migration.Err)
			}
		}
	}

	if len(dbStatuses) > 0 {
		n, err := r.repairStatuses(ctx, depID, dbStatuses)
		u.StatusesRepaired = n
		u.Err = multierr.Append(u.Err, err)
	}

	if fileWrites && u.Err == nil {
		docs, err := r.exporter.Export(ctx, depID, r.files, true)
		if err != nil {
			u.Err = fmt.Errorf("export %s: %w", depID, err)
		}
		for _, d := range docs {
			u.Exported = append(u.Exported, d.Key)
		}
	}

	if u.Err != nil {
		r.logger.Warn(ctx, "deposition not reconciled", "deposition_id", depID, "error", u.Err)
		return u
	}
	if err := r.journal.ResolveDeposition(ctx, depID); err != nil {
		u.Err = err
		return u
	}
	u.Resolved = true
	r.logger.Info(ctx, "deposition reconciled", "deposition_id", depID,
		"divergences", u.Divergences, "statuses", u.StatusesRepaired, "exported", len(u.Exported))
	return u
}

var errNoStatus = errors.New("no status row on the file side")

func (r *Reconciler) repairStatuses(ctx context.Context, depID string, ids []string) (int, error) {
	records, err := r.files.ReadDeposition(ctx, depID)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", depID, err)
	}
	byID := make(map[string]*models.Record, len(records))
	for _, rec := range records {
		byID[rec.Message.MessageID] = rec
	}

	var n int
	var errs error
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok || rec.Status == nil {
			errs = multierr.Append(errs, fmt.Errorf("status %s: %w", id, errNoStatus))
			continue
		}
		st := *rec.Status
		if st.DepositionID == "" {
			st.DepositionID = depID
		}
		if err := r.db.UpsertStatus(ctx, &st); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("status %s: %w", id, err))
			continue
		}
		n++
	}
	return n, errs
}

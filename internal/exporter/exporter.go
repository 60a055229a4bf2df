// Package exporter renders relational message rows back into message files.
// It is both the rollback path to the flat-file backend and the check that
// a migration lost nothing.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/dmitrijs2005/depmsg/internal/docstore"
	"github.com/dmitrijs2005/depmsg/internal/docstore/cif"
	"github.com/dmitrijs2005/depmsg/internal/logging"
	"github.com/dmitrijs2005/depmsg/internal/metrics"
	"github.com/dmitrijs2005/depmsg/internal/migrator"
	"github.com/dmitrijs2005/depmsg/internal/models"
	"github.com/dmitrijs2005/depmsg/internal/retryx"
	"golang.org/x/sync/errgroup"
)

// Source is the relational side of an export.
type Source interface {
	LoadDeposition(ctx context.Context, depID string) ([]*models.Record, error)
	Depositions(ctx context.Context) ([]string, error)
}

// Sink receives exported documents.
type Sink interface {
	Exists(ctx context.Context, depID string) (bool, error)
	WriteDocuments(ctx context.Context, depID string, records []*models.Record) ([]*docstore.Document, error)
}

// Reader supplies the documents an export is verified against.
type Reader interface {
	ReadDeposition(ctx context.Context, depID string) ([]*models.Record, error)
}

type Exporter struct {
	src     Source
	logger  logging.Logger
	metrics *metrics.Metrics
	retry   retryx.Policy
}

func New(src Source, logger logging.Logger, m *metrics.Metrics, retry retryx.Policy) *Exporter {
	return &Exporter{src: src, logger: logger, metrics: m, retry: retry}
}

func (e *Exporter) load(ctx context.Context, depID string) ([]*models.Record, error) {
	return retryx.DoValue(ctx, e.retry, func(ctx context.Context) ([]*models.Record, error) {
		return e.src.LoadDeposition(ctx, depID)
	})
}

// ExportDeposition renders the stored rows of a deposition as one document
// per content type. A deposition without rows yields common.ErrorNotFound.
func (e *Exporter) ExportDeposition(ctx context.Context, depID string) ([]*docstore.Document, error) {
	records, err := e.load(ctx, depID)
	if err != nil {
		return nil, err
	}
	return docstore.Render(depID, records), nil
}

// Export writes the deposition into dst. Existing documents are kept: with
// overwrite the export becomes their next version, without it the call
// fails with common.ErrAlreadyExists.
func (e *Exporter) Export(ctx context.Context, depID string, dst Sink, overwrite bool) ([]*docstore.Document, error) {
	records, err := e.load(ctx, depID)
	if err != nil {
		return nil, err
	}
	exists, err := dst.Exists(ctx, depID)
	if err != nil {
		return nil, fmt.Errorf("check target %s: %w", depID, err)
	}
	if exists && !overwrite {
		return nil, fmt.Errorf("deposition %s: %w", depID, common.ErrAlreadyExists)
	}
	docs, err := dst.WriteDocuments(ctx, depID, records)
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", depID, err)
	}
	e.logger.Info(ctx, "deposition exported", "deposition_id", depID,
		"messages", len(records), "documents", len(docs))
	return docs, nil
}

// Verify renders the deposition, parses the rendered files back and
// compares the records with what source holds. It returns an empty string
// when they are equivalent and a readable diff otherwise.
func (e *Exporter) Verify(ctx context.Context, depID string, source Reader) (string, error) {
	docs, err := e.ExportDeposition(ctx, depID)
	if err != nil {
		return "", err
	}

	var exported []*models.Record
	var problems []string
	for _, d := range docs {
		b, err := cif.Marshal(d.CIF)
		if err != nil {
			return "", fmt.Errorf("render %s: %w", d.ContentType, err)
		}
		parsed, err := cif.Unmarshal(b)
		if err != nil {
			return "", fmt.Errorf("reparse %s: %w", d.ContentType, err)
		}
		recs, probs := docstore.Decode(parsed, d.ContentType)
		for _, p := range probs {
			problems = append(problems, fmt.Sprintf("%s %s.%s=%q: %v", p.MessageID, p.Category, p.Column, p.Value, p.Err))
		}
		exported = append(exported, recs...)
	}
	if len(problems) > 0 {
		return "undecodable values after export:\n" + strings.Join(problems, "\n"), nil
	}

	original, err := source.ReadDeposition(ctx, depID)
	if err != nil {
		return "", fmt.Errorf("read source %s: %w", depID, err)
	}
	return Diff(original, exported), nil
}

// Options control a batch export.
type Options struct {
	Overwrite bool
	Workers   int
	// Verify compares each export with the deposition held by Against.
	Verify  bool
	Against Reader
}

type UnitReport struct {
	DepositionID string
	Documents    []string
	Skipped      bool
	Diff         string
	Err          error
	Elapsed      time.Duration
}

// OK reports whether the unit was exported and verified, or skipped
// because its files already existed.
func (u *UnitReport) OK() bool {
	return (u.Err == nil || u.Skipped) && u.Diff == ""
}

type Report struct {
	Scope string
	Units []*UnitReport
}

// Failed reports whether any unit failed or did not verify.
func (r *Report) Failed() bool {
	for _, u := range r.Units {
		if !u.OK() {
			return true
		}
	}
	return false
}

// Run exports every unit of scope into dst. A directory scan enumerates the
// depositions held by the relational store.
func (e *Exporter) Run(ctx context.Context, scope migrator.Scope, dst Sink, opts Options) (*Report, error) {
	units, err := scope.Units(ctx, migrator.ListerFunc(e.src.Depositions))
	if err != nil {
		return nil, err
	}
	if opts.Verify && opts.Against == nil {
		return nil, fmt.Errorf("%w: verify needs a source to compare against", common.ErrInvalidConfig)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	report := &Report{Scope: scope.String(), Units: make([]*UnitReport, len(units))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report.Units[i] = e.runUnit(gctx, id, dst, opts)
			return nil
		})
	}
	err = g.Wait()
	for i, u := range report.Units {
		if u == nil {
			report.Units[i] = &UnitReport{DepositionID: units[i], Err: context.Cause(gctx)}
		}
	}
	if err != nil {
		return report, fmt.Errorf("export interrupted: %w", err)
	}
	return report, nil
}

func (e *Exporter) runUnit(ctx context.Context, depID string, dst Sink, opts Options) *UnitReport {
	started := time.Now()
	u := &UnitReport{DepositionID: depID}
	defer func() { u.Elapsed = time.Since(started) }()

	docs, err := e.Export(ctx, depID, dst, opts.Overwrite)
	switch {
	case errors.Is(err, common.ErrAlreadyExists):
		u.Skipped = true
		u.Err = err
		e.metrics.Export(metrics.OutcomeExists)
		e.logger.Warn(ctx, "export target exists", "deposition_id", depID)
		return u
	case err != nil:
		u.Err = err
		e.metrics.Export(metrics.OutcomeFailed)
		e.logger.Error(ctx, "export failed", "deposition_id", depID, "error", err)
		return u
	}
	for _, d := range docs {
		u.Documents = append(u.Documents, d.Key)
	}

	if opts.Verify {
		u.Diff, u.Err = e.Verify(ctx, depID, opts.Against)
		if u.Diff != "" {
			e.logger.Warn(ctx, "export differs from source", "deposition_id", depID)
		}
	}
	if u.OK() {
		e.metrics.Export(metrics.OutcomeOK)
	} else {
		e.metrics.Export(metrics.OutcomeFailed)
	}
	return u
}

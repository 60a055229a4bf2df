// Package migrator copies message records from the flat-file backend into
// the relational store. Runs are additive and repeatable: records already
// present are skipped and the source is only ever read.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/dmitrijs2005/depmsg/internal/logging"
	"github.com/dmitrijs2005/depmsg/internal/metrics"
	"github.com/dmitrijs2005/depmsg/internal/models"
	"github.com/dmitrijs2005/depmsg/internal/retryx"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Source is the read side of a migration.
type Source interface {
	Lister
	ReadDeposition(ctx context.Context, depID string) ([]*models.Record, error)
}

// Target is the write side of a migration.
type Target interface {
	Exists(ctx context.Context, msgID string) (bool, error)
	InsertMessage(ctx context.Context, rec *models.Record) error
}

type Options struct {
	// Workers bounds how many depositions are migrated at once.
	Workers int
	// Rate limits depositions started per second; zero means unlimited.
	Rate  float64
	Burst int
	// DryRun reads and checks everything but inserts nothing.
	DryRun bool
	Retry  retryx.Policy
}

type Migrator struct {
	src     Source
	dst     Target
	opts    Options
	logger  logging.Logger
	metrics *metrics.Metrics
}

func New(src Source, dst Target, opts Options, logger logging.Logger, m *metrics.Metrics) *Migrator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Migrator{src: src, dst: dst, opts: opts, logger: logger, metrics: m}
}

// Run migrates every unit of scope. Record and unit failures are collected
// in the report; the returned error is reserved for scope enumeration and
// cancellation.
func (m *Migrator) Run(ctx context.Context, scope Scope) (*Report, error) {
	units, err := scope.Units(ctx, m.src)
	if err != nil {
		return nil, err
	}
	report := &Report{Scope: scope.String(), DryRun: m.opts.DryRun, Units: make([]*UnitReport, len(units))}
	m.logger.Info(ctx, "migration started", "scope", report.Scope, "units", len(units),
		"workers", m.opts.Workers, "dry_run", m.opts.DryRun)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if m.opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(m.opts.Rate), m.opts.Burst)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)
	for i, id := range units {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			report.Units[i] = m.MigrateDeposition(gctx, id)
			return nil
		})
	}
	err = g.Wait()

	for i, u := range report.Units {
		if u == nil {
			report.Units[i] = &UnitReport{DepositionID: units[i], Err: context.Cause(gctx)}
		}
	}
	t := report.Totals()
	m.logger.Info(ctx, "migration finished", "scope", report.Scope,
		"migrated", t.Migrated, "skipped", t.Skipped, "failed", t.Failed, "failed_units", t.FailedUnits)
	if err != nil {
		return report, fmt.Errorf("migration interrupted: %w", err)
	}
	return report, nil
}

// MigrateDeposition migrates one deposition in thread order. It never
// returns an error; failures are recorded in the unit report.
func (m *Migrator) MigrateDeposition(ctx context.Context, depID string) *UnitReport {
	started := time.Now()
	u := &UnitReport{DepositionID: depID}
	defer func() {
		u.Elapsed = time.Since(started)
		m.metrics.Migration(metrics.OutcomeMigrated, u.Migrated)
		m.metrics.Migration(metrics.OutcomeSkipped, u.Skipped)
		m.metrics.Migration(metrics.OutcomeFailed, u.Failed)
	}()

	records, err := m.src.ReadDeposition(ctx, depID)
	if err != nil {
		u.Err = fmt.Errorf("read %s: %w", depID, err)
		m.logger.Error(ctx, "cannot read deposition", "deposition_id", depID, "error", err)
		return u
	}

	seen := make(map[string]bool, len(records))
	for _, rec := range models.ThreadOrder(records) {
		if err := ctx.Err(); err != nil {
			u.Err = err
			return u
		}
		m.migrateRecord(ctx, u, depID, rec, seen)
	}

	m.logger.Info(ctx, "deposition migrated", "deposition_id", depID,
		"migrated", u.Migrated, "skipped", u.Skipped, "failed", u.Failed)
	return u
}

func (m *Migrator) migrateRecord(ctx context.Context, u *UnitReport, depID string, rec *models.Record, seen map[string]bool) {
	id := rec.Message.MessageID
	rec.Normalize()

	if err := rec.Validate(); err != nil {
		u.fail(id, fmt.Errorf("%w: %w", common.ErrConstraintViolation, err))
		m.logger.Warn(ctx, "malformed record", "deposition_id", depID, "message_id", id, "error", err)
		return
	}
	if rec.Message.DepositionID != depID {
		u.fail(id, fmt.Errorf("%w: message belongs to %s", common.ErrConstraintViolation, rec.Message.DepositionID))
		return
	}
	if seen[id] {
		u.Skipped++
		m.logger.Warn(ctx, "message id repeated in source", "deposition_id", depID, "message_id", id)
		return
	}
	seen[id] = true

	exists, err := retryx.DoValue(ctx, m.opts.Retry, func(ctx context.Context) (bool, error) {
		return m.dst.Exists(ctx, id)
	})
	if err != nil {
		u.fail(id, err)
		m.logger.Error(ctx, "existence check failed", "message_id", id, "error", err)
		return
	}
	if exists {
		u.Skipped++
		m.logger.Debug(ctx, "already present", "deposition_id", depID, "message_id", id)
		return
	}

	if m.opts.DryRun {
		u.Migrated++
		return
	}

	err = retryx.Do(ctx, m.opts.Retry, func(ctx context.Context) error {
		return m.dst.InsertMessage(ctx, rec)
	})
	switch {
	case err == nil:
		u.Migrated++
	case errors.Is(err, common.ErrDuplicateKey):
		u.Skipped++
		m.logger.Debug(ctx, "already present", "deposition_id", depID, "message_id", id)
	default:
		u.fail(id, err)
		m.logger.Warn(ctx, "insert failed", "deposition_id", depID, "message_id", id, "error", err)
	}
}

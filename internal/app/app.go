// Package app builds the message storage components from configuration.
// Stores are opened on first use and released together by Close.
package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/depmsg/internal/backend"
	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/dmitrijs2005/depmsg/internal/config"
	"github.com/dmitrijs2005/depmsg/internal/docstore"
	"github.com/dmitrijs2005/depmsg/internal/docstore/blob"
	"github.com/dmitrijs2005/depmsg/internal/exporter"
	"github.com/dmitrijs2005/depmsg/internal/journal"
	"github.com/dmitrijs2005/depmsg/internal/logging"
	"github.com/dmitrijs2005/depmsg/internal/metrics"
	"github.com/dmitrijs2005/depmsg/internal/migrator"
	"github.com/dmitrijs2005/depmsg/internal/reconcile"
	"github.com/dmitrijs2005/depmsg/internal/relstore"
	"github.com/dmitrijs2005/depmsg/internal/retryx"
	"go.uber.org/multierr"
)

// Seams for tests.
var (
	openRelstore = relstore.Open
	newS3Store   = func(ctx context.Context, c blob.S3Config) (blob.Store, error) {
		return blob.NewS3Store(ctx, c)
	}
	openJournal = journal.Open
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	metrics *metrics.Metrics
	retry   retryx.Policy

	mu      sync.Mutex
	db      *relstore.Store
	docs    *docstore.Store
	journal *journal.Journal
}

// New builds an App whose logs go to logOut.
func New(c *config.Config, logOut io.Writer) (*App, error) {
	logger, err := logging.New(logOut, c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}
	return &App{config: c, logger: logger, metrics: metrics.New(), retry: c.Retry()}, nil
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) Logger() logging.Logger {
	return a.logger
}

func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Database returns the relational store, connecting on first call.
func (a *App) Database(ctx context.Context) (*relstore.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return a.db, nil
	}

	d, err := a.config.Dialect()
	if err != nil {
		return nil, err
	}
	db, err := retryx.DoValue(ctx, a.retry, func(ctx context.Context) (*relstore.Store, error) {
		return openRelstore(ctx, d, a.config.DatabaseDSN, a.config.Pool(), a.logger)
	})
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	a.logger.Debug(ctx, "database opened", "dialect", d)
	a.db = db
	return db, nil
}

// Documents returns the message file store over the configured storage.
func (a *App) Documents(ctx context.Context) (*docstore.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.docs != nil {
		return a.docs, nil
	}

	var blobs blob.Store
	switch a.config.Storage {
	case config.StorageS3:
		s, err := newS3Store(ctx, a.config.S3())
		if err != nil {
			return nil, fmt.Errorf("storage init error: %w", err)
		}
		blobs = s
	default:
		blobs = blob.NewFSStore(a.config.StorageRoot)
	}
	a.docs = docstore.New(blobs, a.logger)
	return a.docs, nil
}

// Journal returns the divergence journal, or nil when none is configured.
func (a *App) Journal() (*journal.Journal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.journal != nil || a.config.JournalPath == "" {
		return a.journal, nil
	}
	j, err := openJournal(a.config.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("journal init error: %w", err)
	}
	a.journal = j
	return j, nil
}

// sharedDatabase hands the App's store to a backend handle without giving
// the handle ownership of the pool.
type sharedDatabase struct {
	*relstore.Store
}

func (sharedDatabase) Close() error { return nil }

// Backend selects a facade handle for the configured write and read
// targets. Divergent dual writes are journaled when a journal is set.
func (a *App) Backend() (*backend.Handle, error) {
	bc, err := a.config.Backend()
	if err != nil {
		return nil, err
	}
	p := backend.Providers{
		OpenDatabase: func(ctx context.Context) (backend.Database, error) {
			db, err := a.Database(ctx)
			if err != nil {
				return nil, err
			}
			return sharedDatabase{db}, nil
		},
		OpenFiles: func(ctx context.Context) (backend.Files, error) {
			return a.Documents(ctx)
		},
		Metrics: a.metrics,
		Logger:  a.logger,
		Retry:   a.retry,
	}
	j, err := a.Journal()
	if err != nil {
		return nil, err
	}
	if j != nil {
		p.Journal = j
	}
	return backend.Select(bc, p)
}

// MigratorOptions returns the configured migration settings.
func (a *App) MigratorOptions() migrator.Options {
	return migrator.Options{
		Workers: a.config.MigrateWorkers,
		Rate:    a.config.MigrateRate,
		Retry:   a.retry,
	}
}

// Migrator copies message files into the relational store.
func (a *App) Migrator(ctx context.Context, opts migrator.Options) (*migrator.Migrator, error) {
	docs, err := a.Documents(ctx)
	if err != nil {
		return nil, err
	}
	db, err := a.Database(ctx)
	if err != nil {
		return nil, err
	}
	return migrator.New(docs, db, opts, a.logger, a.metrics), nil
}

// Exporter renders relational content back into message files.
func (a *App) Exporter(ctx context.Context) (*exporter.Exporter, error) {
	db, err := a.Database(ctx)
	if err != nil {
		return nil, err
	}
	return exporter.New(db, a.logger, a.metrics, a.retry), nil
}

// Reconciler repairs the depositions named in the divergence journal.
func (a *App) Reconciler(ctx context.Context) (*reconcile.Reconciler, error) {
	j, err := a.Journal()
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, fmt.Errorf("%w: journal path is not set", common.ErrInvalidConfig)
	}
	docs, err := a.Documents(ctx)
	if err != nil {
		return nil, err
	}
	db, err := a.Database(ctx)
	if err != nil {
		return nil, err
	}
	mg, err := a.Migrator(ctx, a.MigratorOptions())
	if err != nil {
		return nil, err
	}
	ex, err := a.Exporter(ctx)
	if err != nil {
		return nil, err
	}
	return reconcile.New(j, docs, db, mg, ex, a.logger), nil
}

// FlushMetrics writes the metrics textfile when one is configured.
func (a *App) FlushMetrics() error {
	if a.config.MetricsTextfile == "" {
		return nil
	}
	return a.metrics.WriteTextfile(a.config.MetricsTextfile)
}

// Close releases every store the App opened.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var err error
	if a.db != nil {
		err = multierr.Append(err, a.db.Close())
		a.db = nil
	}
	if a.journal != nil {
		err = multierr.Append(err, a.journal.Close())
		a.journal = nil
	}
	return err
}

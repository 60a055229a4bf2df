// Package repomanager provides a RepositoryManager for the supported SQL
// dialects, wiring together repository constructors and schema migrations
// (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/dmitrijs2005/depmsg/internal/dbx"
	"github.com/dmitrijs2005/depmsg/internal/migrations"
	"github.com/dmitrijs2005/depmsg/internal/repositories/filerefs"
	"github.com/dmitrijs2005/depmsg/internal/repositories/messages"
	"github.com/dmitrijs2005/depmsg/internal/repositories/statuses"
	"github.com/pressly/goose/v3"
)

// Tables lists the message tables in creation order.
var Tables = []string{
	"pdbx_deposition_message_info",
	"pdbx_deposition_message_file_reference",
	"pdbx_deposition_message_status",
}

const versionTable = "goose_db_version"

// SchemaStatus is the result of a verify-only schema check.
type SchemaStatus struct {
	Version       int64
	Latest        int64
	MissingTables []string
}

// OK reports whether the schema is fully migrated and every table exists.
func (s *SchemaStatus) OK() bool {
	return s.Version == s.Latest && len(s.MissingTables) == 0
}

type migrationProvider interface {
	Up(ctx context.Context) ([]*goose.MigrationResult, error)
	DownTo(ctx context.Context, version int64) ([]*goose.MigrationResult, error)
	GetDBVersion(ctx context.Context) (int64, error)
	ListSources() []*goose.Source
}

// newProvider is a seam for testing the goose provider.
var newProvider = func(d dbx.Dialect, db *sql.DB) (migrationProvider, error) {
	fsys, err := fs.Sub(migrations.FS, string(d))
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(d.Goose(), db, fsys)
}

// SQLRepositoryManager vends SQL-backed repository implementations for one
// dialect and owns schema operations.
type SQLRepositoryManager struct {
	dialect dbx.Dialect
}

func NewSQLRepositoryManager(d dbx.Dialect) *SQLRepositoryManager {
	return &SQLRepositoryManager{dialect: d}
}

func (m *SQLRepositoryManager) Dialect() dbx.Dialect {
	return m.dialect
}

// Messages returns a messages.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Messages(db dbx.DBTX) messages.Repository {
	return messages.NewSQLRepository(db, m.dialect)
}

// FileRefs returns a filerefs.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) FileRefs(db dbx.DBTX) filerefs.Repository {
	return filerefs.NewSQLRepository(db, m.dialect)
}

// Statuses returns a statuses.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Statuses(db dbx.DBTX) statuses.Repository {
	return statuses.NewSQLRepository(db, m.dialect)
}

// RunMigrations applies all pending embedded migrations.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	p, err := newProvider(m.dialect, db)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// ResetSchema drops every table by migrating down to zero and then recreates
// the schema. All data is lost.
func (m *SQLRepositoryManager) ResetSchema(ctx context.Context, db *sql.DB) error {
	p, err := newProvider(m.dialect, db)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	if _, err := p.DownTo(ctx, 0); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// VerifySchema inspects the schema without changing it.
func (m *SQLRepositoryManager) VerifySchema(ctx context.Context, db *sql.DB) (*SchemaStatus, error) {
	p, err := newProvider(m.dialect, db)
	if err != nil {
		return nil, fmt.Errorf("migration provider: %w", err)
	}

	st := &SchemaStatus{}
	for _, src := range p.ListSources() {
		if src.Version > st.Latest {
			st.Latest = src.Version
		}
	}

	for _, t := range Tables {
		ok, err := tableExists(ctx, db, t)
		if err != nil {
			return nil, err
		}
		if !ok {
			st.MissingTables = append(st.MissingTables, t)
		}
	}

	// GetDBVersion creates the version table when it is missing, so only
	// ask goose once the table is known to exist.
	ok, err := tableExists(ctx, db, versionTable)
	if err != nil {
		return nil, err
	}
	if ok {
		if st.Version, err = p.GetDBVersion(ctx); err != nil {
			return nil, fmt.Errorf("schema version: %w", err)
		}
	}
	return st, nil
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table+" WHERE 1 = 0")
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if dbx.IsRetryable(dbx.Classify(err)) {
			return false, fmt.Errorf("check table %s: %w", table, dbx.Classify(err))
		}
		return false, nil
	}
	_ = rows.Close()
	return true, nil
}

package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/depmsg/internal/dbx"
	"github.com/dmitrijs2005/depmsg/internal/repositories/filerefs"
	"github.com/dmitrijs2005/depmsg/internal/repositories/messages"
	"github.com/dmitrijs2005/depmsg/internal/repositories/statuses"
)

type RepositoryManager interface {
	Dialect() dbx.Dialect
	RunMigrations(ctx context.Context, db *sql.DB) error
	VerifySchema(ctx context.Context, db *sql.DB) (*SchemaStatus, error)
	ResetSchema(ctx context.Context, db *sql.DB) error
	Messages(db dbx.DBTX) messages.Repository
	FileRefs(db dbx.DBTX) filerefs.Repository
	Statuses(db dbx.DBTX) statuses.Repository
}

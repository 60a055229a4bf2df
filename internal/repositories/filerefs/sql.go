package filerefs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/depmsg/internal/dbx"
	"github.com/dmitrijs2005/depmsg/internal/models"
	"github.com/dmitrijs2005/depmsg/internal/repositories"
)

type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

func NewSQLRepository(db dbx.DBTX, dialect dbx.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

const selectColumns = `SELECT ordinal_id, message_id, deposition_data_set_id, content_type, content_format,
		        partition_number, version_id, storage_type, upload_file_name
		 FROM pdbx_deposition_message_file_reference`

func (r *SQLRepository) Insert(ctx context.Context, f *models.FileReference) (bool, error) {
	query :=
		`INSERT INTO pdbx_deposition_message_file_reference
		 (message_id, deposition_data_set_id, content_type, content_format,
		  partition_number, version_id, storage_type, upload_file_name)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ` + r.dialect.IgnoreConflict("message_id")

	storageType := f.StorageType
	if storageType == "" {
		storageType = models.DefaultStorageType
	}

	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		f.MessageID,
		f.DepositionID,
		f.ContentType,
		f.ContentFormat,
		f.PartitionNumber,
		f.VersionID,
		storageType,
		repositories.NullString(f.OriginalFilename),
	)
	if err != nil {
		return false, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *SQLRepository) ListByMessage(ctx context.Context, messageID string) ([]models.FileReference, error) {
	query := selectColumns + `
		 WHERE message_id = $1
		 ORDER BY ordinal_id`
	return r.list(ctx, query, messageID)
}

func (r *SQLRepository) ListByDeposition(ctx context.Context, depositionID string) ([]models.FileReference, error) {
	query := selectColumns + `
		 WHERE deposition_data_set_id = $1
		 ORDER BY ordinal_id`
	return r.list(ctx, query, depositionID)
}

func (r *SQLRepository) list(ctx context.Context, query string, arg string) ([]models.FileReference, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), arg)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	defer rows.Close()

	result := []models.FileReference{}
	for rows.Next() {
		var (
			f    models.FileReference
			name sql.NullString
		)
		err := rows.Scan(&f.OrdinalID, &f.MessageID, &f.DepositionID, &f.ContentType, &f.ContentFormat,
			&f.PartitionNumber, &f.VersionID, &f.StorageType, &name)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
		}
		f.OriginalFilename = name.String
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return result, nil
}

func (r *SQLRepository) Count(ctx context.Context, depositionID string) (int, error) {
	query :=
		`SELECT COUNT(*) FROM pdbx_deposition_message_file_reference
		 WHERE deposition_data_set_id = $1`

	var n int
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), depositionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return n, nil
}

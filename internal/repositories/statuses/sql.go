package statuses

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/dmitrijs2005/depmsg/internal/dbx"
	"github.com/dmitrijs2005/depmsg/internal/models"
)

type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

func NewSQLRepository(db dbx.DBTX, dialect dbx.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

func (r *SQLRepository) Upsert(ctx context.Context, s *models.MessageStatus) error {
	query :=
		`INSERT INTO pdbx_deposition_message_status
		 (message_id, deposition_data_set_id, read_status, action_reqd, for_release)
		 VALUES ($1, $2, $3, $4, $5) ` +
			r.dialect.Upsert("message_id", "read_status", "action_reqd", "for_release")

	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		s.MessageID,
		s.DepositionID,
		models.FormatFlag(s.ReadStatus),
		models.FormatFlag(s.ActionRequired),
		models.FormatFlag(s.ForRelease),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStatus(row scanner) (*models.MessageStatus, error) {
	var (
		s                 models.MessageStatus
		read, action, rel string
	)
	if err := row.Scan(&s.MessageID, &s.DepositionID, &read, &action, &rel); err != nil {
		return nil, err
	}
	var err error
	if s.ReadStatus, err = models.ParseFlag(read); err != nil {
		return nil, err
	}
	if s.ActionRequired, err = models.ParseFlag(action); err != nil {
		return nil, err
	}
	if s.ForRelease, err = models.ParseFlag(rel); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SQLRepository) Get(ctx context.Context, messageID string) (*models.MessageStatus, error) {
	query :=
		`SELECT message_id, deposition_data_set_id, read_status, action_reqd, for_release
		 FROM pdbx_deposition_message_status
		 WHERE message_id = $1`

	s, err := scanStatus(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return s, nil
}

func (r *SQLRepository) ListByDeposition(ctx context.Context, depositionID string) ([]models.MessageStatus, error) {
	query :=
		`SELECT message_id, deposition_data_set_id, read_status, action_reqd, for_release
		 FROM pdbx_deposition_message_status
		 WHERE deposition_data_set_id = $1
		 ORDER BY message_id`

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), depositionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	defer rows.Close()

	result := []models.MessageStatus{}
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return result, nil
}

func (r *SQLRepository) Count(ctx context.Context, depositionID string) (int, error) {
	query :=
		`SELECT COUNT(*) FROM pdbx_deposition_message_status
		 WHERE deposition_data_set_id = $1`

	var n int
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), depositionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return n, nil
}

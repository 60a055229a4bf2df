package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/depmsg/internal/common"
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

// Insert adds a message row. An existing message_id yields an error matching
// common.ErrDuplicateKey.
func (r *SQLRepository) Insert(ctx context.Context, m *models.Message) error {
	query :=
		`INSERT INTO pdbx_deposition_message_info
		 (message_id, deposition_data_set_id, timestamp, sender, context_type, context_value,
		  parent_message_id, message_subject, message_text, message_type, send_status, content_type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	messageType := m.MessageType
	if messageType == "" {
		messageType = models.DefaultMessageType
	}

	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		m.MessageID,
		m.DepositionID,
		m.Timestamp.UTC(),
		m.Sender,
		repositories.NullString(m.ContextType),
		repositories.NullString(m.ContextValue),
		repositories.NullString(m.ParentMessageID),
		repositories.NullString(m.Subject),
		repositories.NullString(m.Body),
		messageType,
		models.FormatFlag(m.SendStatus),
		string(m.ContentType),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return nil
}

func (r *SQLRepository) Exists(ctx context.Context, messageID string) (bool, error) {
	query :=
		`SELECT 1 FROM pdbx_deposition_message_info
		 WHERE message_id = $1`

	var one int
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), messageID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return true, nil
}

func (r *SQLRepository) DepositionOf(ctx context.Context, messageID string) (string, error) {
	query :=
		`SELECT deposition_data_set_id FROM pdbx_deposition_message_info
		 WHERE message_id = $1`

	var dep string
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), messageID).Scan(&dep)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return dep, nil
}

// ListByDeposition returns messages by timestamp, ties broken by insertion order.
func (r *SQLRepository) ListByDeposition(ctx context.Context, depositionID string) ([]models.Message, error) {
	query :=
		`SELECT ordinal_id, message_id, deposition_data_set_id, timestamp, sender,
		        context_type, context_value, parent_message_id, message_subject, message_text,
		        message_type, send_status, content_type
		 FROM pdbx_deposition_message_info
		 WHERE deposition_data_set_id = $1
		 ORDER BY timestamp ASC, ordinal_id ASC`

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), depositionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	defer rows.Close()

	result := []models.Message{}
	for rows.Next() {
		var (
			m                                     models.Message
			ctxType, ctxValue, parent, subj, body sql.NullString
			sendStatus, contentType               string
		)
		err := rows.Scan(&m.OrdinalID, &m.MessageID, &m.DepositionID, &m.Timestamp, &m.Sender,
			&ctxType, &ctxValue, &parent, &subj, &body, &m.MessageType, &sendStatus, &contentType)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
		}
		m.Timestamp = m.Timestamp.UTC()
		m.ContextType = ctxType.String
		m.ContextValue = ctxValue.String
		m.ParentMessageID = parent.String
		m.Subject = subj.String
		m.Body = body.String
		m.ContentType = models.ContentType(contentType)
		if m.SendStatus, err = models.ParseFlag(sendStatus); err != nil {
			return nil, fmt.Errorf("message %s: %w", m.MessageID, err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return result, nil
}

func (r *SQLRepository) Depositions(ctx context.Context) ([]string, error) {
	query :=
		`SELECT DISTINCT deposition_data_set_id FROM pdbx_deposition_message_info
		 ORDER BY deposition_data_set_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
		}
		result = append(result, dep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return result, nil
}

func (r *SQLRepository) Count(ctx context.Context, depositionID string) (int, error) {
	query :=
		`SELECT COUNT(*) FROM pdbx_deposition_message_info
		 WHERE deposition_data_set_id = $1`

	var n int
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), depositionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return n, nil
}

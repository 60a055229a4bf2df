// Package relstore is the relational backend. It groups the per-table
// repositories into whole-record operations, each running in its own
// transaction on a pooled connection.
package relstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/dmitrijs2005/depmsg/internal/dbx"
	"github.com/dmitrijs2005/depmsg/internal/logging"
	"github.com/dmitrijs2005/depmsg/internal/models"
	"github.com/dmitrijs2005/depmsg/internal/repositories/repomanager"
)

type Store struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func New(db *sql.DB, repomanager repomanager.RepositoryManager, logger logging.Logger) *Store {
	return &Store{db: db, repomanager: repomanager, logger: logger}
}

// Open connects to the database and returns a store for its dialect.
func Open(ctx context.Context, d dbx.Dialect, dsn string, pool dbx.PoolConfig, logger logging.Logger) (*Store, error) {
	db, err := dbx.Open(ctx, d, dsn, pool)
	if err != nil {
		return nil, err
	}
	return New(db, repomanager.NewSQLRepositoryManager(d), logger), nil
}

// DB exposes the pool for schema operations.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Manager() repomanager.RepositoryManager {
	return s.repomanager
}

// Migrate applies pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	return s.repomanager.RunMigrations(ctx, s.db)
}

// InsertMessage stores a message with its attachments and status atomically.
// An existing message_id yields common.ErrDuplicateKey and nothing is written.
// Attachments whose uniqueness tuple is already stored are skipped.
func (s *Store) InsertMessage(ctx context.Context, rec *models.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrConstraintViolation, err)
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Messages(tx).Insert(ctx, &rec.Message); err != nil {
			return err
		}

		fileRepo := s.repomanager.FileRefs(tx)
		for i := range rec.Files {
			f := rec.Files[i]
			if f.DepositionID == "" {
				f.DepositionID = rec.Message.DepositionID
			}
			inserted, err := fileRepo.Insert(ctx, &f)
			if err != nil {
				return err
			}
			if !inserted {
				s.logger.Debug(ctx, "file reference already stored",
					"message_id", f.MessageID, "content_type", f.ContentType,
					"version_id", f.VersionID, "partition_number", f.PartitionNumber)
			}
		}

		if rec.Status != nil {
			st := *rec.Status
			if st.DepositionID == "" {
				st.DepositionID = rec.Message.DepositionID
			}
			if err := s.repomanager.Statuses(tx).Upsert(ctx, &st); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert message %s: %w", rec.Message.MessageID, err)
	}
	return nil
}

// UpsertStatus creates or replaces the status row of an existing message.
// Unknown messages yield common.ErrorNotFound.
func (s *Store) UpsertStatus(ctx context.Context, st *models.MessageStatus) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		dep, err := s.repomanager.Messages(tx).DepositionOf(ctx, st.MessageID)
		if err != nil {
			return err
		}
		row := *st
		if row.DepositionID == "" {
			row.DepositionID = dep
		}
		if row.DepositionID != dep {
			return fmt.Errorf("%w: message belongs to %s, not %s",
				common.ErrConstraintViolation, dep, row.DepositionID)
		}
		return s.repomanager.Statuses(tx).Upsert(ctx, &row)
	})
	if err != nil {
		return fmt.Errorf("upsert status %s: %w", st.MessageID, err)
	}
	return nil
}

// ListByDeposition returns the messages of a deposition ordered by timestamp,
// ties broken by insertion order. An unknown deposition gives an empty slice.
func (s *Store) ListByDeposition(ctx context.Context, depID string) ([]models.Message, error) {
	return s.repomanager.Messages(s.db).ListByDeposition(ctx, depID)
}

func (s *Store) Exists(ctx context.Context, msgID string) (bool, error) {
	return s.repomanager.Messages(s.db).Exists(ctx, msgID)
}

// FileReferences returns the attachments of a message. Unknown messages
// yield common.ErrorNotFound; a message without attachments gives an empty
// slice.
func (s *Store) FileReferences(ctx context.Context, msgID string) ([]models.FileReference, error) {
	var out []models.FileReference
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ok, err := s.repomanager.Messages(tx).Exists(ctx, msgID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("message %s: %w", msgID, common.ErrorNotFound)
		}
		out, err = s.repomanager.FileRefs(tx).ListByMessage(ctx, msgID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadDeposition reads every message of a deposition together with its
// attachments and status, in listing order. A deposition without messages
// yields common.ErrorNotFound.
func (s *Store) LoadDeposition(ctx context.Context, depID string) ([]*models.Record, error) {
	var (
		msgs  []models.Message
		files []models.FileReference
		sts   []models.MessageStatus
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if msgs, err = s.repomanager.Messages(tx).ListByDeposition(ctx, depID); err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		if files, err = s.repomanager.FileRefs(tx).ListByDeposition(ctx, depID); err != nil {
			return err
		}
		sts, err = s.repomanager.Statuses(tx).ListByDeposition(ctx, depID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load deposition %s: %w", depID, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("deposition %s: %w", depID, common.ErrorNotFound)
	}

	records := make([]*models.Record, len(msgs))
	byID := make(map[string]*models.Record, len(msgs))
	for i := range msgs {
		records[i] = &models.Record{Message: msgs[i]}
		byID[msgs[i].MessageID] = records[i]
	}
	for _, f := range files {
		if r, ok := byID[f.MessageID]; ok {
			r.Files = append(r.Files, f)
		}
	}
	for i := range sts {
		if r, ok := byID[sts[i].MessageID]; ok {
			st := sts[i]
			r.Status = &st
		}
	}
	return records, nil
}

// Depositions lists every deposition that has at least one message.
func (s *Store) Depositions(ctx context.Context) ([]string, error) {
	return s.repomanager.Messages(s.db).Depositions(ctx)
}

// Counts holds per-table row counts of one deposition.
type Counts struct {
	Messages int
	Files    int
	Statuses int
}

func (s *Store) Counts(ctx context.Context, depID string) (Counts, error) {
	var c Counts
	var err error
	if c.Messages, err = s.repomanager.Messages(s.db).Count(ctx, depID); err != nil {
		return c, err
	}
	if c.Files, err = s.repomanager.FileRefs(s.db).Count(ctx, depID); err != nil {
		return c, err
	}
	if c.Statuses, err = s.repomanager.Statuses(s.db).Count(ctx, depID); err != nil {
		return c, err
	}
	return c, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

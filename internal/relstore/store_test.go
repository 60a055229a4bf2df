package relstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/dmitrijs2005/depmsg/internal/dbx"
	"github.com/dmitrijs2005/depmsg/internal/logging"
	"github.com/dmitrijs2005/depmsg/internal/models"
	"github.com/dmitrijs2005/depmsg/internal/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, dbx.SQLite, ":memory:", dbx.PoolConfig{}, logging.NewDiscard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func record(dep, id string, at time.Time) *models.Record {
	return &models.Record{
		Message: models.Message{
			MessageID:       id,
			DepositionID:    dep,
			Timestamp:       at,
			Sender:          "annotator",
			ParentMessageID: id,
			Subject:         "Subject " + id,
			Body:            "Body with ü and é",
			MessageType:     models.DefaultMessageType,
			ContentType:     models.ContentToDepositor,
			SendStatus:      true,
		},
		Files: []models.FileReference{{
			MessageID:        id,
			DepositionID:     dep,
			ContentType:      "model",
			ContentFormat:    "pdbx",
			PartitionNumber:  1,
			VersionID:        1,
			StorageType:      models.DefaultStorageType,
			OriginalFilename: "model.cif",
		}},
		Status: &models.MessageStatus{MessageID: id, DepositionID: dep, ActionRequired: true},
	}
}

func TestInsertMessage_Roundtrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	require.NoError(t, s.InsertMessage(ctx, record("D_1", "M1", ts)))

	ok, err := s.Exists(ctx, "M1")
	require.NoError(t, err)
	assert.True(t, ok)

	recs, err := s.LoadDeposition(ctx, "D_1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	got := recs[0]
	assert.Equal(t, "Body with ü and é", got.Message.Body)
	assert.True(t, got.Message.Timestamp.Equal(ts))
	assert.Empty(t, got.Message.ContextType)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "model.cif", got.Files[0].OriginalFilename)
	require.NotNil(t, got.Status)
	assert.True(t, got.Status.ActionRequired)
	assert.False(t, got.Status.ReadStatus)

	c, err := s.Counts(ctx, "D_1")
	require.NoError(t, err)
	assert.Equal(t, Counts{Messages: 1, Files: 1, Statuses: 1}, c)
}

func TestInsertMessage_DuplicateLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	require.NoError(t, s.InsertMessage(ctx, record("D_1", "M1", ts)))

	dup := record("D_1", "M1", ts.Add(time.Hour))
	dup.Files[0].VersionID = 2
	err := s.InsertMessage(ctx, dup)
	require.ErrorIs(t, err, common.ErrDuplicateKey)

	c, err := s.Counts(ctx, "D_1")
	require.NoError(t, err)
	assert.Equal(t, Counts{Messages: 1, Files: 1, Statuses: 1}, c, "failed insert must roll back")
}

func TestInsertMessage_InvalidRecord(t *testing.T) {
	s := newSQLiteStore(t)
	rec := record("D_1", "M1", ts)
	rec.Message.Sender = ""

	err := s.InsertMessage(context.Background(), rec)
	require.ErrorIs(t, err, common.ErrConstraintViolation)
	require.ErrorIs(t, err, common.ErrInvalidRecord)
}

func TestInsertMessage_DuplicateFileTupleIgnored(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	rec := record("D_1", "M1", ts)
	rec.Files = append(rec.Files, rec.Files[0])
	require.NoError(t, s.InsertMessage(ctx, rec))

	files, err := s.FileReferences(ctx, "M1")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestInsertMessage_OrphanParentAllowed(t *testing.T) {
	s := newSQLiteStore(t)
	rec := record("D_1", "M2", ts)
	rec.Message.ParentMessageID = "not-migrated-yet"
	require.NoError(t, s.InsertMessage(context.Background(), rec))
}

func TestUpsertStatus(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	require.NoError(t, s.InsertMessage(ctx, record("D_1", "M1", ts)))

	require.NoError(t, s.UpsertStatus(ctx, &models.MessageStatus{MessageID: "M1", ReadStatus: true}))
	require.NoError(t, s.UpsertStatus(ctx, &models.MessageStatus{MessageID: "M1", ReadStatus: true, ForRelease: true}))

	recs, err := s.LoadDeposition(ctx, "D_1")
	require.NoError(t, err)
	require.NotNil(t, recs[0].Status)
	assert.Equal(t, models.MessageStatus{MessageID: "M1", DepositionID: "D_1", ReadStatus: true, ForRelease: true}, *recs[0].Status)

	c, err := s.Counts(ctx, "D_1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Statuses)
}

func TestUpsertStatus_UnknownMessage(t *testing.T) {
	s := newSQLiteStore(t)
	err := s.UpsertStatus(context.Background(), &models.MessageStatus{MessageID: "nope"})
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpsertStatus_WrongDeposition(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	require.NoError(t, s.InsertMessage(ctx, record("D_1", "M1", ts)))

	err := s.UpsertStatus(ctx, &models.MessageStatus{MessageID: "M1", DepositionID: "D_2"})
	require.ErrorIs(t, err, common.ErrConstraintViolation)
}

func TestListByDeposition_Order(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	require.NoError(t, s.InsertMessage(ctx, record("D_1", "late", ts.Add(time.Minute))))
	require.NoError(t, s.InsertMessage(ctx, record("D_1", "tie-a", ts)))
	require.NoError(t, s.InsertMessage(ctx, record("D_1", "tie-b", ts)))
	require.NoError(t, s.InsertMessage(ctx, record("D_2", "other", ts)))

	msgs, err := s.ListByDeposition(ctx, "D_1")
	require.NoError(t, err)
	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.MessageID)
	}
	assert.Equal(t, []string{"tie-a", "tie-b", "late"}, ids)

	deps, err := s.Depositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"D_1", "D_2"}, deps)
}

func TestReads_NotFoundVsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	msgs, err := s.ListByDeposition(ctx, "D_missing")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = s.LoadDeposition(ctx, "D_missing")
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = s.FileReferences(ctx, "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)

	rec := record("D_1", "M1", ts)
	rec.Files = nil
	require.NoError(t, s.InsertMessage(ctx, rec))
	files, err := s.FileReferences(ctx, "M1")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestInsertMessage_RollsBackOnFileError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	s := New(db, repomanager.NewSQLRepositoryManager(dbx.Postgres), logging.NewDiscard())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT\s+INTO\s+pdbx_deposition_message_info`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT\s+INTO\s+pdbx_deposition_message_file_reference`).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err = s.InsertMessage(context.Background(), record("D_1", "M1", ts))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMessage_CanceledContext(t *testing.T) {
	s := newSQLiteStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.InsertMessage(ctx, record("D_1", "M1", ts))
	require.Error(t, err)

	ok, err := s.Exists(context.Background(), "M1")
	require.NoError(t, err)
	assert.False(t, ok)
}

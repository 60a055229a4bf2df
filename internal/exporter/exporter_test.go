package exporter

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/dmitrijs2005/depmsg/internal/dbx"
	"github.com/dmitrijs2005/depmsg/internal/docstore"
	"github.com/dmitrijs2005/depmsg/internal/docstore/blob"
	"github.com/dmitrijs2005/depmsg/internal/logging"
	"github.com/dmitrijs2005/depmsg/internal/metrics"
	"github.com/dmitrijs2005/depmsg/internal/migrator"
	"github.com/dmitrijs2005/depmsg/internal/models"
	"github.com/dmitrijs2005/depmsg/internal/relstore"
	"github.com/dmitrijs2005/depmsg/internal/retryx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func record(dep, id, parent string, ct models.ContentType, at time.Time) *models.Record {
	return &models.Record{
		Message: models.Message{
			MessageID:       id,
			DepositionID:    dep,
			Timestamp:       at,
			Sender:          "annotator",
			ContextType:     "validation",
			ParentMessageID: parent,
			Subject:         "Re: Überprüfung " + id,
			Body:            "Line one\nline two; with \"quotes\" and 'ticks'\n;leading semicolon\nÅngström ±0.5 Å",
			MessageType:     models.DefaultMessageType,
			ContentType:     ct,
			SendStatus:      true,
		},
		Files: []models.FileReference{{
			MessageID: id, DepositionID: dep, ContentType: "validation-report", ContentFormat: "pdf",
			PartitionNumber: 1, VersionID: 3, StorageType: models.DefaultStorageType,
			OriginalFilename: "report " + id + ".pdf",
		}},
		Status: &models.MessageStatus{MessageID: id, DepositionID: dep, ActionRequired: true},
	}
}

type env struct {
	src *docstore.Store
	out *docstore.Store
	db  *relstore.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	rs, err := relstore.Open(ctx, dbx.SQLite, ":memory:", dbx.PoolConfig{}, logging.NewDiscard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })
	require.NoError(t, rs.Migrate(ctx))
	return &env{
		src: docstore.New(blob.NewFSStore(t.TempDir()), logging.NewDiscard()),
		out: docstore.New(blob.NewFSStore(t.TempDir()), logging.NewDiscard()),
		db:  rs,
	}
}

// migrate seeds the source files and migrates them into the database.
func (e *env) migrate(t *testing.T, dep string, recs ...*models.Record) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.src.WriteDeposition(ctx, dep, recs))
	rep, err := migrator.New(e.src, e.db, migrator.Options{}, logging.NewDiscard(), nil).
		Run(ctx, migrator.SingleDeposition(dep))
	require.NoError(t, err)
	require.False(t, rep.Failed())
}

func newExporter(e *env, m *metrics.Metrics) *Exporter {
	return New(e.db, logging.NewDiscard(), m, retryx.Policy{})
}

func TestRoundTrip_ThreadScenario(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.migrate(t, "D_1",
		record("D_1", "M1", "M1", models.ContentToDepositor, t0),
		record("D_1", "M2", "M1", models.ContentToDepositor, t0.Add(time.Hour)),
	)

	c, err := e.db.Counts(ctx, "D_1")
	require.NoError(t, err)
	assert.Equal(t, relstore.Counts{Messages: 2, Files: 2, Statuses: 2}, c)

	x := newExporter(e, nil)
	docs, err := x.Export(ctx, "D_1", e.out, false)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "D_1/D_1_messages-to-depositor_P1.cif.V1", docs[0].Key)

	exported, err := e.out.ReadDeposition(ctx, "D_1")
	require.NoError(t, err)
	original, err := e.src.ReadDeposition(ctx, "D_1")
	require.NoError(t, err)
	assert.Empty(t, Diff(original, exported))

	byID := map[string]*models.Record{}
	for _, r := range exported {
		byID[r.Message.MessageID] = r
	}
	require.Contains(t, byID, "M2")
	assert.Equal(t, "M1", byID["M2"].Message.ParentMessageID)
	assert.Equal(t, original[0].Message.Body, byID["M1"].Message.Body)
	assert.Equal(t, "Re: Überprüfung M2", byID["M2"].Message.Subject)

	diff, err := x.Verify(ctx, "D_1", e.src)
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestRoundTrip_AllContentTypes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	note := record("D_1", "N1", "N1", models.ContentNotes, t0)
	note.Files = nil
	note.Status = nil
	note.Message.SendStatus = false
	e.migrate(t, "D_1",
		record("D_1", "M1", "M1", models.ContentToDepositor, t0),
		record("D_1", "F1", "M1", models.ContentFromDepositor, t0.Add(time.Minute)),
		note,
	)

	docs, err := newExporter(e, nil).ExportDeposition(ctx, "D_1")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for i, ct := range models.ContentTypes {
		assert.Equal(t, ct, docs[i].ContentType)
	}

	diff, err := newExporter(e, nil).Verify(ctx, "D_1", e.src)
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestVerify_ReportsDifference(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.migrate(t, "D_1", record("D_1", "M1", "M1", models.ContentToDepositor, t0))

	changed := record("D_1", "M1", "M1", models.ContentToDepositor, t0)
	changed.Message.Body = "edited"
	require.NoError(t, e.src.WriteDeposition(ctx, "D_1", []*models.Record{changed}))

	diff, err := newExporter(e, nil).Verify(ctx, "D_1", e.src)
	require.NoError(t, err)
	assert.Contains(t, diff, "edited")
}

func TestExport_NotFound(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	x := newExporter(e, nil)

	_, err := x.ExportDeposition(ctx, "D_404")
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = x.Export(ctx, "D_404", e.out, true)
	require.ErrorIs(t, err, common.ErrorNotFound)
	ok, err := e.out.Exists(ctx, "D_404")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExport_Overwrite(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.migrate(t, "D_1", record("D_1", "M1", "M1", models.ContentToDepositor, t0))
	x := newExporter(e, nil)

	_, err := x.Export(ctx, "D_1", e.out, false)
	require.NoError(t, err)

	_, err = x.Export(ctx, "D_1", e.out, false)
	require.ErrorIs(t, err, common.ErrAlreadyExists)

	docs, err := x.Export(ctx, "D_1", e.out, true)
	require.NoError(t, err)
	assert.Equal(t, 2, docs[0].Version)
	assert.Equal(t, "D_1/D_1_messages-to-depositor_P1.cif.V2", docs[0].Key)
}

func TestRun_Scopes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.migrate(t, "D_1", record("D_1", "M1", "M1", models.ContentToDepositor, t0))
	e.migrate(t, "D_2", record("D_2", "M2", "M2", models.ContentToDepositor, t0))
	m := metrics.New()
	x := newExporter(e, m)

	rep, err := x.Run(ctx, migrator.DirectoryScan(), e.out, Options{Workers: 2, Verify: true, Against: e.src})
	require.NoError(t, err)
	require.Len(t, rep.Units, 2)
	assert.False(t, rep.Failed())
	assert.Equal(t, "D_1", rep.Units[0].DepositionID)
	assert.Equal(t, []string{"D_1/D_1_messages-to-depositor_P1.cif.V1"}, rep.Units[0].Documents)

	rep, err = x.Run(ctx, migrator.DepositionList("D_1", "D_404"), e.out, Options{})
	require.NoError(t, err)
	assert.True(t, rep.Failed())
	assert.True(t, rep.Units[0].Skipped)
	assert.True(t, rep.Units[0].OK(), "an existing export is skipped, not failed")
	assert.ErrorIs(t, rep.Units[0].Err, common.ErrAlreadyExists)
	assert.ErrorIs(t, rep.Units[1].Err, common.ErrorNotFound)

	n, err := testutil.GatherAndCount(m.Registry(), "depmsg_exports_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "ok, exists and failed")

	_, err = x.Run(ctx, migrator.DirectoryScan(), e.out, Options{Verify: true})
	require.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestDiff_IgnoresOrderAndOrdinals(t *testing.T) {
	a := record("D_1", "M1", "M1", models.ContentToDepositor, t0)
	b := record("D_1", "M2", "M1", models.ContentToDepositor, t0)
	a2 := *a
	a2.Message.OrdinalID = 99
	a2.Files = []models.FileReference{a.Files[0]}
	a2.Files[0].OrdinalID = 7

	assert.Empty(t, Diff([]*models.Record{a, b}, []*models.Record{b, &a2}))
	assert.NotEmpty(t, Diff([]*models.Record{a, b}, []*models.Record{a}))
}

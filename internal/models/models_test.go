package models

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() *Record {
	return &Record{
		Message: Message{
			MessageID:       "M1",
			DepositionID:    "D_1",
			Timestamp:       time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			Sender:          "annotator",
			ParentMessageID: "M1",
			Subject:         "hello",
			Body:            "body",
			ContentType:     ContentToDepositor,
		},
		Files: []FileReference{{
			MessageID:     "M1",
			ContentType:   "model",
			ContentFormat: "pdbx",
		}},
		Status: &MessageStatus{MessageID: "M1"},
	}
}

func TestContentType(t *testing.T) {
	for _, c := range ContentTypes {
		got, err := ParseContentType(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseContentType("messages-to-nobody")
	require.Error(t, err)
}

func TestRecord_Validate_OK(t *testing.T) {
	require.NoError(t, validRecord().Validate())
}

func TestRecord_Validate_ReportsAllProblems(t *testing.T) {
	r := validRecord()
	r.Message.MessageID = ""
	r.Message.Sender = ""
	r.Message.ContentType = "bogus"
	r.Status.MessageID = "other"

	err := r.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInvalidRecord))
	for _, s := range []string{"message_id is required", "sender is required", "content_type", "status belongs"} {
		assert.Contains(t, err.Error(), s)
	}
}

func TestRecord_Validate_FileReferenceFields(t *testing.T) {
	r := validRecord()
	r.Files[0].ContentFormat = ""
	err := r.Validate()
	require.ErrorIs(t, err, common.ErrInvalidRecord)
	assert.Contains(t, err.Error(), "content_format")
}

func TestRecord_Prepare_NewMessage(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 500, time.FixedZone("X", 3600))
	r := &Record{
		Message: Message{DepositionID: "D_9", Sender: "depositor", ContentType: ContentFromDepositor},
		Files:   []FileReference{{ContentType: "model", ContentFormat: "pdbx"}},
	}
	r.Prepare(now)

	_, err := uuid.Parse(r.Message.MessageID)
	require.NoError(t, err)
	assert.True(t, r.Message.IsThreadRoot())
	assert.Equal(t, r.Message.MessageID, r.Message.ParentMessageID)
	assert.Equal(t, time.Date(2024, 5, 6, 6, 8, 9, 0, time.UTC), r.Message.Timestamp)
	assert.Equal(t, DefaultMessageType, r.Message.MessageType)

	require.NotNil(t, r.Status)
	assert.Equal(t, r.Message.MessageID, r.Status.MessageID)
	assert.Equal(t, "D_9", r.Status.DepositionID)
	assert.Equal(t, r.Message.MessageID, r.Files[0].MessageID)
	assert.Equal(t, DefaultStorageType, r.Files[0].StorageType)
	require.NoError(t, r.Validate())
}

func TestRecord_Prepare_KeepsExistingValues(t *testing.T) {
	r := validRecord()
	r.Message.ParentMessageID = "M0"
	r.Prepare(time.Now())
	assert.Equal(t, "M1", r.Message.MessageID)
	assert.Equal(t, "M0", r.Message.ParentMessageID)
	assert.False(t, r.Message.IsThreadRoot())
}

func TestRecord_Prepare_SuppliedTimestampToSeconds(t *testing.T) {
	r := validRecord()
	r.Message.Timestamp = time.Date(2024, 5, 6, 7, 8, 9, 987654321, time.FixedZone("X", -2*3600))
	r.Prepare(time.Now())
	assert.Equal(t, time.Date(2024, 5, 6, 9, 8, 9, 0, time.UTC), r.Message.Timestamp)
	assert.Equal(t, time.UTC, r.Message.Timestamp.Location())
}

func TestRecord_ProblemsFailValidation(t *testing.T) {
	r := validRecord()
	r.Problems = []string{`send_status "maybe": invalid flag value`}
	err := r.Validate()
	require.ErrorIs(t, err, common.ErrInvalidRecord)
	assert.ErrorContains(t, err, "send_status")
}

func TestFlags(t *testing.T) {
	assert.Equal(t, "Y", FormatFlag(true))
	assert.Equal(t, "N", FormatFlag(false))

	for in, want := range map[string]bool{"Y": true, "y": true, "N": false, "": false, "true": true} {
		got, err := ParseFlag(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFlag("maybe")
	require.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, in := range []string{"2023-01-02 03:04:05", "02-Jan-2023 03:04:05", "2023-01-02T03:04:05Z"} {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}
	got, err := ParseTimestamp("02-Jan-2023")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseTimestamp("yesterday")
	require.Error(t, err)

	assert.Equal(t, "2023-01-02 03:04:05", FormatTimestamp(want))
}

func TestFileReference_Key(t *testing.T) {
	f := FileReference{MessageID: "M1", ContentType: "model", VersionID: 2, PartitionNumber: 1, StorageType: "archive"}
	assert.Equal(t, FileKey{MessageID: "M1", ContentType: "model", VersionID: 2, PartitionNumber: 1}, f.Key())
}

func rec(id, parent string, ts int) *Record {
	return &Record{Message: Message{
		MessageID:       id,
		ParentMessageID: parent,
		Timestamp:       time.Unix(int64(ts), 0).UTC(),
	}}
}

func ids(rs []*Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Message.MessageID
	}
	return out
}

func TestThreadOrder(t *testing.T) {
	tests := []struct {
		name string
		in   []*Record
		want []string
	}{
		{
			name: "by timestamp",
			in:   []*Record{rec("M2", "M1", 20), rec("M1", "M1", 10)},
			want: []string{"M1", "M2"},
		},
		{
			name: "parent after child in time",
			in:   []*Record{rec("C", "P", 10), rec("P", "P", 20), rec("X", "X", 15)},
			want: []string{"P", "C", "X"},
		},
		{
			name: "orphan parent kept in place",
			in:   []*Record{rec("C", "missing", 10), rec("R", "R", 5)},
			want: []string{"R", "C"},
		},
		{
			name: "cycle does not loop",
			in:   []*Record{rec("A", "B", 10), rec("B", "A", 20)},
			want: []string{"B", "A"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := ids(tc.in)
			got := ThreadOrder(tc.in)
			assert.Equal(t, tc.want, ids(got))
			assert.Equal(t, before, ids(tc.in), "input must not be reordered")
		})
	}
}

package admin

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	dir     string
	storage string
	dsn     string
	vars    map[string]string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	return &env{
		dir:     dir,
		storage: filepath.Join(dir, "messages"),
		dsn:     "file:" + filepath.Join(dir, "messages.db"),
		vars:    map[string]string{},
	}
}

// run executes msgadmin with args against the test environment.
func (e *env) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	c := &command{
		in:     strings.NewReader(stdin),
		out:    &out,
		errOut: &errOut,
		lookupEnv: func(k string) (string, bool) {
			v, ok := e.vars[k]
			return v, ok
		},
	}
	root := c.root()
	base := []string{"--db-dialect", "sqlite", "--database-dsn", e.dsn, "--storage-root", e.storage, "--log-level", "error"}
	root.SetArgs(append(args, base...))
	err := root.Execute()
	return out.String(), err
}

func (e *env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, "", args...)
	require.NoError(t, err, out)
	return out
}

func (e *env) post(t *testing.T, dep, id, subject string) {
	t.Helper()
	e.mustRun(t, "messages", "post", "--mode", "file-only",
		"--deposition", dep, "--message-id", id, "--sender", "annotator",
		"--subject", subject, "--body", "Please review.",
		"--attach", "validation-report:pdf:1:1:report.pdf")
}

func TestSchema(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "", "schema", "--verify-only")
	require.ErrorIs(t, err, errSchemaOutdated)

	out := e.mustRun(t, "schema")
	assert.Contains(t, out, "Schema is up to date.")

	out = e.mustRun(t, "schema", "--verify-only")
	assert.Contains(t, out, "Schema is up to date.")

	_, err = e.run(t, "", "schema", "--verify-only", "--drop-and-recreate")
	require.Error(t, err)
}

func TestSchema_DropNeedsConfirmation(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "schema")

	orig := isTerminal
	defer func() { isTerminal = orig }()

	isTerminal = func(int) bool { return false }
	_, err := e.run(t, "yes\n", "schema", "--drop-and-recreate")
	require.ErrorIs(t, err, errNotConfirmed)

	isTerminal = func(int) bool { return true }
	_, err = e.run(t, "n\n", "schema", "--drop-and-recreate")
	require.ErrorIs(t, err, errNotConfirmed)

	out, err := e.run(t, "yes\n", "schema", "--drop-and-recreate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema recreated.")

	out = e.mustRun(t, "schema", "--drop-and-recreate", "--yes")
	assert.Contains(t, out, "Schema recreated.")
}

func TestMessages_FileOnly(t *testing.T) {
	e := newEnv(t)
	e.post(t, "D_1000000001", "m-1", "Validation report")
	e.post(t, "D_1000000001", "m-2", "Second look")

	out := e.mustRun(t, "messages", "list", "D_1000000001")
	assert.Contains(t, out, "m-1")
	assert.Contains(t, out, "Second look")
	assert.Contains(t, out, "2 messages (read from file)")

	out = e.mustRun(t, "messages", "files", "D_1000000001", "m-1")
	assert.Contains(t, out, "validation-report  pdf  P1 V1  report.pdf")

	out = e.mustRun(t, "messages", "status", "--deposition", "D_1000000001", "--message-id", "m-1", "--read")
	assert.Contains(t, out, "Updated status of m-1 in file")

	_, err := e.run(t, "", "messages", "post", "--deposition", "D_1000000001", "--content-type", "gossip")
	require.Error(t, err)
}

func TestMigrateAndExport(t *testing.T) {
	e := newEnv(t)
	e.post(t, "D_1000000001", "m-1", "Validation report")
	e.post(t, "D_1000000002", "m-2", "Map fitting")

	out := e.mustRun(t, "migrate", "--scan", "--dry-run")
	assert.Contains(t, out, "(dry run)")

	out = e.mustRun(t, "migrate", "--deposition", "D_1000000001", "--deposition", "D_1000000002", "--workers", "2")
	assert.Contains(t, out, "Migration of 2 depositions")
	assert.Contains(t, out, "messages migrated 2, skipped 0, failed 0")

	out = e.mustRun(t, "migrate", "--scan")
	assert.Contains(t, out, "messages migrated 0, skipped 2, failed 0")

	out = e.mustRun(t, "messages", "list", "D_1000000002", "--mode", "database-only")
	assert.Contains(t, out, "1 messages (read from database)")

	exported := filepath.Join(e.dir, "exported")
	out = e.mustRun(t, "export", "--all", "--output-dir", exported, "--verify")
	assert.Contains(t, out, "Total: 2 depositions")
	assert.FileExists(t, filepath.Join(exported, "D_1000000001", "D_1000000001_messages-to-depositor_P1.cif.V1"))

	out = e.mustRun(t, "export", "--deposition", "D_1000000001", "--output-dir", exported)
	assert.Contains(t, out, "skipped: already exported")

	e.mustRun(t, "export", "--deposition", "D_1000000001", "--output-dir", exported, "--overwrite")
	assert.FileExists(t, filepath.Join(exported, "D_1000000001", "D_1000000001_messages-to-depositor_P1.cif.V2"))
}

func TestMigrate_DryRunLeavesSchemaAlone(t *testing.T) {
	e := newEnv(t)
	e.post(t, "D_1000000001", "m-1", "Validation report")

	out := e.mustRun(t, "migrate", "--deposition", "D_1000000001", "--dry-run")
	assert.Contains(t, out, "a real run migrates it first")
	assert.Contains(t, out, "messages migrated 1, skipped 0, failed 0")

	out, err := e.run(t, "", "schema", "--verify-only")
	require.ErrorIs(t, err, errSchemaOutdated)
	assert.Contains(t, out, "Schema version: 0")
	assert.Contains(t, out, "missing table: pdbx_deposition_message_info")

	e.mustRun(t, "migrate", "--deposition", "D_1000000001")
	out = e.mustRun(t, "migrate", "--deposition", "D_1000000001", "--dry-run")
	assert.NotContains(t, out, "a real run migrates it first")
	assert.Contains(t, out, "messages migrated 0, skipped 1, failed 0")
}

func TestMigrate_Failures(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "", "migrate")
	require.Error(t, err)
	_, err = e.run(t, "", "migrate", "--scan", "--deposition", "D_1")
	require.Error(t, err)

	out, err := e.run(t, "", "migrate", "--deposition", "D_0000000000")
	require.ErrorIs(t, err, ErrBatchFailed)
	assert.Contains(t, out, "error:")

	_, err = e.run(t, "", "export", "--all")
	require.Error(t, err, "output dir is required")
}

func TestReconcile(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "reconcile")
	require.ErrorIs(t, err, common.ErrInvalidConfig)

	e.vars["DEPMSG_JOURNAL_PATH"] = filepath.Join(e.dir, "journal")
	out := e.mustRun(t, "reconcile")
	assert.Contains(t, out, "Reconciled 0 depositions")
}

func TestMetricsTextfile(t *testing.T) {
	e := newEnv(t)
	e.post(t, "D_1000000001", "m-1", "Validation report")

	prom := filepath.Join(e.dir, "depmsg.prom")
	e.mustRun(t, "migrate", "--scan", "--metrics-textfile", prom)
	assert.FileExists(t, prom)
}

func TestParseAttachment(t *testing.T) {
	tests := []struct {
		in        string
		wantPart  int
		wantVer   int
		wantName  string
		expectErr bool
	}{
		{in: "model:pdbx", wantPart: 1, wantVer: 1},
		{in: "model:pdbx:2", wantPart: 2, wantVer: 1},
		{in: "model:pdbx:1:3:model.cif", wantPart: 1, wantVer: 3, wantName: "model.cif"},
		{in: "model", expectErr: true},
		{in: "model:pdbx:x", expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := parseAttachment(tt.in)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "model", f.ContentType)
			assert.Equal(t, tt.wantPart, f.PartitionNumber)
			assert.Equal(t, tt.wantVer, f.VersionID)
			assert.Equal(t, tt.wantName, f.OriginalFilename)
		})
	}
}

// File path: internal/workspace/workspace_test.go
package workspace

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := New(t.TempDir())
	require.NoError(t, err)
	return ws
}

func TestArchiveAndTruncatePreserveTicketData(t *testing.T) {
	ws := newTestWorkspace(t)
	_, err := ws.Ensure(100)
	require.NoError(t, err)
	require.NoError(t, ws.WriteFile(100, FileTicketData, []byte(`{"id":100}`)))
	require.NoError(t, ws.WriteFile(100, FileSummary, []byte("# Summary")))
	ws.LogActivity(100, "phase0", "start", "starting")

	copied := ws.Archive(100, 1)
	assert.ElementsMatch(t, []string{FileTicketData, FileSummary, FileActivityLog}, copied)

	ws.Truncate(100, copied)
	_, err = ws.ReadFile(100, FileSummary)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	data, err := ws.ReadFile(100, FileTicketData)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":100}`, string(data))

	archived, err := os.ReadFile(filepath.Join(ws.Dir(100), "run-1", FileSummary))
	require.NoError(t, err)
	assert.Equal(t, "# Summary", string(archived))
}

func TestTruncateKeepsFilesThatWereNotArchived(t *testing.T) {
	ws := newTestWorkspace(t)
	dir, err := ws.Ensure(7)
	require.NoError(t, err)
	require.NoError(t, ws.WriteFile(7, FilePhase1Findings, []byte("# Findings")))
	// A plain file where the archive directory belongs makes archival fail.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run-1"), []byte("x"), 0o644))

	copied := ws.Archive(7, 1)
	assert.Empty(t, copied)
	ws.Truncate(7, copied)

	data, err := ws.ReadFile(7, FilePhase1Findings)
	require.NoError(t, err)
	assert.Equal(t, "# Findings", string(data))
}

func TestPathRejectsTraversal(t *testing.T) {
	ws := newTestWorkspace(t)
	for _, name := range []string{"../etc/passwd", "a/b.md", "", ".hidden"} {
		_, err := ws.ReadFile(1, name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestActivitySinceFilter(t *testing.T) {
	ws := newTestWorkspace(t)
	ws.LogActivity(5, "phase0", "start", "first")
	cut := time.Now().UTC()
	time.Sleep(2 * time.Millisecond)
	ws.LogActivity(5, "phase0", "complete", "second")

	// A malformed line is skipped.
	f, err := os.OpenFile(filepath.Join(ws.Dir(5), FileActivityLog), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	all, err := ws.Activity(5, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	later, err := ws.Activity(5, &cut)
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, "second", later[0].Message)

	none, err := ws.Activity(6, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMergeMetricsKeepsExistingKeys(t *testing.T) {
	ws := newTestWorkspace(t)
	ws.MergeMetrics(8, map[string]interface{}{"phase0_duration_ms": 120})
	ws.MergeMetrics(8, map[string]interface{}{"phase1_duration_ms": 450})

	var metrics map[string]interface{}
	require.NoError(t, ws.ReadJSON(8, FileMetrics, &metrics))
	assert.EqualValues(t, 120, metrics["phase0_duration_ms"])
	assert.EqualValues(t, 450, metrics["phase1_duration_ms"])
	assert.Contains(t, metrics, "last_updated")
}

func TestAppendCheckpointActionRecoversFromCorruptFile(t *testing.T) {
	ws := newTestWorkspace(t)
	require.NoError(t, ws.WriteFile(9, FileCheckpointActions, []byte("{broken")))
	feedback := "looks right"
	require.NoError(t, ws.AppendCheckpointAction(9, CheckpointAction{Timestamp: time.Now(), Checkpoint: "checkpoint_1_post_classification", Action: "approve", Feedback: &feedback}))
	require.NoError(t, ws.AppendCheckpointAction(9, CheckpointAction{Timestamp: time.Now(), Checkpoint: "checkpoint_2_post_context_gathering", Action: "abort"}))

	actions := ws.CheckpointActions(9)
	require.Len(t, actions, 2)
	assert.Equal(t, "approve", actions[0].Action)
	assert.Nil(t, actions[1].Feedback)
}

func TestFilesViewAndRawJSON(t *testing.T) {
	ws := newTestWorkspace(t)
	require.NoError(t, ws.WriteRawJSON(3, FileTicketData, json.RawMessage(`{"title":"Sync fails","id":3}`)))
	require.NoError(t, ws.WriteFile(3, FileMetrics, []byte("not-json")))

	raw, err := ws.ReadFile(3, FileTicketData)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"title\": \"Sync fails\",\n  \"id\": 3\n}", string(raw))

	files := ws.Files(3)
	assert.JSONEq(t, `{"title":"Sync fails","id":3}`, string(files.TicketData))
	assert.Equal(t, "null", string(files.Metrics))
	assert.Nil(t, files.Summary)
	assert.Empty(t, files.CheckpointActions)
}

func TestInvestigationIDsIgnoresNonNumeric(t *testing.T) {
	ws := newTestWorkspace(t)
	for _, name := range []string{"12", "3", "notes", "0"} {
		require.NoError(t, os.MkdirAll(filepath.Join(ws.Root(), name), 0o755))
	}
	ids, err := ws.InvestigationIDs()
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 12}, ids)
}

func TestRenderHTML(t *testing.T) {
	out, err := RenderHTML([]byte("# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n"))
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Title</h1>")
	assert.Contains(t, out, "<table>")

	file, err := DocumentFile("customer-response")
	require.NoError(t, err)
	assert.Equal(t, FileCustomerResponse, file)
	_, err = DocumentFile("metrics.json")
	assert.ErrorIs(t, err, ErrUnknownDocument)
}

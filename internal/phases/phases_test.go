// File path: internal/phases/phases_test.go
package phases

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobaguon-blip/support-triage/internal/agent"
	"github.com/jacobaguon-blip/support-triage/internal/conversation"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
	"github.com/jacobaguon-blip/support-triage/internal/ticket"
	"github.com/jacobaguon-blip/support-triage/internal/workspace"
)

type fakeAgent struct {
	output  string
	err     error
	prompts []string
	hook    func()
}

func (f *fakeAgent) Run(_ context.Context, req agent.Request) (string, error) {
	f.prompts = append(f.prompts, req.Prompt)
	if f.hook != nil {
		f.hook()
	}
	return f.output, f.err
}

type harness struct {
	store  *sqlite.Store
	ws     *workspace.Workspace
	agent  *fakeAgent
	runner *Runner
}

func newHarness(t *testing.T, id int64, checkpoint model.Checkpoint) *harness {
	t.Helper()
	store, err := sqlite.OpenWithConfig(sqlite.Config{Path: filepath.Join(t.TempDir(), "triage.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Q().InsertInvestigation(ctx, &model.Investigation{
		ID:                id,
		Status:            model.StatusRunning,
		CurrentCheckpoint: model.Ptr(checkpoint),
		AgentMode:         "team",
		CurrentRunNumber:  1,
	}))
	require.NoError(t, store.Q().InsertRun(ctx, &model.Run{
		InvestigationID:   id,
		RunNumber:         1,
		TriggerType:       model.TriggerManual,
		Status:            model.RunRunning,
		CurrentCheckpoint: model.Ptr(checkpoint),
	}))

	fake := &fakeAgent{}
	runner, err := New(Config{Store: store, Workspace: ws, Agent: fake})
	require.NoError(t, err)
	return &harness{store: store, ws: ws, agent: fake, runner: runner}
}

func (h *harness) writeTicket(t *testing.T, id int64, body string) {
	t.Helper()
	require.NoError(t, h.ws.WriteFile(id, workspace.FileTicketData, []byte(body)))
}

func (h *harness) investigation(t *testing.T, id int64) *model.Investigation {
	t.Helper()
	inv, err := h.store.Q().GetInvestigation(context.Background(), id)
	require.NoError(t, err)
	return inv
}

func task(id int64, phase model.Phase) model.Task {
	return model.Task{ID: "task-" + string(phase), InvestigationID: id, RunNumber: 1, Phase: phase}
}

func TestPhase0ClassifiesTicketFromDisk(t *testing.T) {
	h := newHarness(t, 100, model.CheckpointClassification)
	h.writeTicket(t, 100, `{"ticket_id":100,"title":"Okta sync broken","customer_name":"Acme","body":"Okta provisioning error since Monday","pylon_link":"https://example.test/100","extra":"kept"}`)

	require.NoError(t, h.runner.Execute(context.Background(), task(100, model.Phase0)))

	inv := h.investigation(t, 100)
	assert.Equal(t, model.StatusWaiting, inv.Status)
	assert.Equal(t, model.CheckpointClassification, inv.Checkpoint())
	assert.Equal(t, model.ClassConnectorBug, model.Deref(inv.Classification))
	assert.Equal(t, "okta", model.Deref(inv.ConnectorName))
	assert.Equal(t, "Connectors", model.Deref(inv.ProductArea))
	assert.Equal(t, "P2", model.Deref(inv.Priority))
	assert.Equal(t, "Acme", model.Deref(inv.CustomerName))
	assert.Empty(t, h.agent.prompts)

	raw, err := h.ws.ReadFile(100, workspace.FileTicketData)
	require.NoError(t, err)
	data, err := ticket.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "connector_bug", data.Classification)
	assert.Contains(t, string(raw), `"extra": "kept"`)

	items, err := conversation.List(context.Background(), h.store.Q(), 100, nil, nil)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, model.ItemSystemPhase, items[0].Type)
	assert.Equal(t, model.ItemCustomerMessage, items[1].Type)
	assert.Equal(t, "Okta sync broken", items[1].ContentPreview)
	assert.Equal(t, model.ItemSystemResult, items[2].Type)
	assert.Equal(t, "Classified as connector bug, Connectors", items[2].ContentPreview)

	var metrics map[string]interface{}
	require.NoError(t, h.ws.ReadJSON(100, workspace.FileMetrics, &metrics))
	assert.Contains(t, metrics, "phase0_duration_ms")
}

func TestPhaseStartWriteFailureFailsPhase(t *testing.T) {
	h := newHarness(t, 103, model.CheckpointContext)
	h.writeTicket(t, 103, `{"ticket_id":103,"title":"Okta sync broken","customer_name":"Acme"}`)
	h.agent.output = "findings"
	_, err := h.store.DB().Exec(`CREATE TRIGGER reject_phase_items BEFORE INSERT ON conversation_items
		WHEN NEW.type = 'system_phase'
		BEGIN SELECT RAISE(ABORT, 'conversation log unavailable'); END;`)
	require.NoError(t, err)

	err = h.runner.Execute(context.Background(), task(103, model.Phase1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record phase start")
	assert.Empty(t, h.agent.prompts)

	inv := h.investigation(t, 103)
	assert.Equal(t, model.StatusError, inv.Status)
	assert.Contains(t, model.Deref(inv.ErrorMessage), "conversation log unavailable")
	assert.Equal(t, model.CheckpointContext, inv.Checkpoint())
	assert.Nil(t, h.ws.ReadText(103, workspace.FilePhase1Findings))
}

func TestPhase0WithoutTicketDataFails(t *testing.T) {
	h := newHarness(t, 101, model.CheckpointClassification)

	err := h.runner.Execute(context.Background(), task(101, model.Phase0))
	require.Error(t, err)

	inv := h.investigation(t, 101)
	assert.Equal(t, model.StatusError, inv.Status)
	assert.Equal(t, model.ErrorTypeGeneral, model.Deref(inv.ErrorType))
	assert.Contains(t, model.Deref(inv.ErrorMessage), "no ticket data available")
	assert.Equal(t, model.CheckpointClassification, inv.Checkpoint())
}

func TestPhase0FetchesFromSource(t *testing.T) {
	h := newHarness(t, 102, model.CheckpointClassification)
	h.runner.cfg.Source = ticket.AgentSource{Runner: &fakeAgent{output: `{"ticket_id":102,"title":"Can we export?","customer_name":"Globex","body":"Is it possible to export audit logs"}`}}

	require.NoError(t, h.runner.Execute(context.Background(), task(102, model.Phase0)))
	inv := h.investigation(t, 102)
	assert.Equal(t, model.ClassFeatureRequest, model.Deref(inv.Classification))
	assert.Equal(t, "P4", model.Deref(inv.Priority))
	assert.True(t, h.ws.Exists(102))
}

func TestPhase1WritesFindingsWithCitations(t *testing.T) {
	h := newHarness(t, 200, model.CheckpointContext)
	h.writeTicket(t, 200, `{"ticket_id":200,"title":"Sync broken","customer_name":"Acme","classification":"connector_bug","body":"details"}`)
	h.agent.output = "## Pylon Issues Found\nSee [Source: Pylon #150] and [Source: Linear ENG-7]."

	require.NoError(t, h.runner.Execute(context.Background(), task(200, model.Phase1)))

	inv := h.investigation(t, 200)
	assert.Equal(t, model.StatusWaiting, inv.Status)
	assert.Equal(t, model.CheckpointContext, inv.Checkpoint())
	assert.Equal(t, h.agent.output, model.Deref(h.ws.ReadText(200, workspace.FilePhase1Findings)))
	require.Len(t, h.agent.prompts, 1)
	assert.Contains(t, h.agent.prompts[0], "--- ticket-data.json ---")

	items, err := conversation.List(context.Background(), h.store.Q(), 200, model.Ptr(1), nil)
	require.NoError(t, err)
	last := items[len(items)-1]
	meta, ok := last.Metadata.Get().(*model.SystemResultMeta)
	require.True(t, ok)
	assert.Equal(t, workspace.FilePhase1Findings, meta.File)
	require.GreaterOrEqual(t, len(meta.Sources), 3)
	assert.Equal(t, "linear", meta.Sources[0].Type)
	assert.Equal(t, "pylon", meta.Sources[1].Type)
	assert.Equal(t, "file", meta.Sources[2].Type)
}

func TestPhase2SplitsDocuments(t *testing.T) {
	h := newHarness(t, 300, model.CheckpointValidation)
	h.writeTicket(t, 300, `{"ticket_id":300,"title":"UI blank","customer_name":"Acme","classification":"product_bug","priority":"P3","body":"blank page"}`)
	h.agent.output = "=== summary.md ===\nSummary body\n=== customer-response.md ===\nHi Acme\n=== linear-draft.md ===\nTitle: blank page\n=== notes.md ===\nignored"

	require.NoError(t, h.runner.Execute(context.Background(), task(300, model.Phase2)))

	inv := h.investigation(t, 300)
	assert.Equal(t, model.CheckpointValidation, inv.Checkpoint())
	assert.Equal(t, "Summary body", model.Deref(h.ws.ReadText(300, workspace.FileSummary)))
	assert.Equal(t, "Hi Acme", model.Deref(h.ws.ReadText(300, workspace.FileCustomerResponse)))
	assert.Equal(t, "Title: blank page", model.Deref(h.ws.ReadText(300, workspace.FileLinearDraft)))
	assert.Nil(t, h.ws.ReadText(300, "notes.md"))
	assert.Contains(t, h.agent.prompts[0], "(No prior findings)")
	assert.Contains(t, h.agent.prompts[0], "=== linear-draft.md ===")

	items, err := conversation.List(context.Background(), h.store.Q(), 300, nil, nil)
	require.NoError(t, err)
	var previews []string
	for _, item := range items {
		if item.Type == model.ItemSystemResult {
			previews = append(previews, item.ContentPreview)
		}
	}
	assert.Equal(t, []string{"Investigation summary generated", "Customer response drafted", "Linear issue draft created"}, previews)
}

func TestAuthFailureRecordsRemediation(t *testing.T) {
	h := newHarness(t, 400, model.CheckpointContext)
	h.writeTicket(t, 400, `{"ticket_id":400,"title":"x","classification":"general_question","body":"y"}`)
	h.agent.err = agent.ErrAuthRequired

	err := h.runner.Execute(context.Background(), task(400, model.Phase1))
	require.ErrorIs(t, err, agent.ErrAuthRequired)

	inv := h.investigation(t, 400)
	assert.Equal(t, model.StatusError, inv.Status)
	assert.Equal(t, model.ErrorTypeAuth, model.Deref(inv.ErrorType))
	assert.Equal(t, agent.AuthRemediation, model.Deref(inv.ErrorMessage))
}

func TestStaleRunDiscardsOutput(t *testing.T) {
	h := newHarness(t, 500, model.CheckpointContext)
	h.writeTicket(t, 500, `{"ticket_id":500,"title":"x","classification":"general_question","body":"y"}`)
	h.agent.output = "late findings"
	h.agent.hook = func() {
		inv := h.investigation(t, 500)
		inv.CurrentRunNumber = 2
		require.NoError(t, h.store.Q().UpdateInvestigation(context.Background(), inv))
	}

	err := h.runner.Execute(context.Background(), task(500, model.Phase1))
	require.True(t, errors.Is(err, ErrStaleRun))

	inv := h.investigation(t, 500)
	assert.Equal(t, model.StatusRunning, inv.Status)
	assert.Nil(t, inv.ErrorMessage)
	assert.Nil(t, h.ws.ReadText(500, workspace.FilePhase1Findings))
}

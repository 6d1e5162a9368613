// File path: internal/ticket/ticket_test.go
package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobaguon-blip/support-triage/internal/agent"
	"github.com/jacobaguon-blip/support-triage/internal/conversation"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
)

func openStore(t *testing.T, id int64) *sqlite.Store {
	t.Helper()
	store, err := sqlite.OpenWithConfig(sqlite.Config{Path: filepath.Join(t.TempDir(), "triage.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Q().InsertInvestigation(context.Background(), &model.Investigation{
		ID:                id,
		Status:            model.StatusWaiting,
		CurrentCheckpoint: model.Ptr(model.CheckpointContext),
		AgentMode:         "team",
		CurrentRunNumber:  2,
	}))
	return store
}

func TestDataPreservesUnknownKeys(t *testing.T) {
	raw := []byte(`{"ticket_id": 812, "title": "Sync broken", "body": "Okta", "custom_field": {"a": 1}}`)
	data, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "812", data.TicketID.String())
	assert.Equal(t, "Sync broken Okta", data.FullText())

	data.Classification = "connector_bug"
	out, err := json.Marshal(data)
	require.NoError(t, err)

	var round map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &round))
	assert.Equal(t, "connector_bug", round["classification"])
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, round["custom_field"])
}

func TestDataFallbacks(t *testing.T) {
	var nilData *Data
	assert.Equal(t, "Support Request", nilData.DisplayTitle())
	assert.Equal(t, "Unknown", nilData.Customer("Unknown"))
	d := &Data{Description: "from description"}
	assert.Equal(t, "from description", d.BodyText())
}

func TestParseThreadPlainText(t *testing.T) {
	body := `Hi team, our Okta sync fails every night.

On Mon, Jan 8, 2024 at 10:15 AM, Support Team wrote:
Can you share the connector logs?
---
From: Jane Doe <jane@example.com>
Sent: January 9, 2024 9:00 AM
Attached the logs, error code 500 appears at 02:00.`

	msgs := ParseThread(body)
	require.Len(t, msgs, 3)

	assert.Equal(t, "customer", msgs[0].ActorRole)
	assert.Empty(t, msgs[0].ActorName)
	assert.Equal(t, "Hi team, our Okta sync fails every night.", msgs[0].Content)

	assert.Equal(t, "Support Team", msgs[1].ActorName)
	assert.Equal(t, "agent", msgs[1].ActorRole)
	require.NotNil(t, msgs[1].CreatedAt)
	assert.Equal(t, time.Date(2024, 1, 8, 10, 15, 0, 0, time.UTC), *msgs[1].CreatedAt)

	assert.Equal(t, "Jane Doe", msgs[2].ActorName)
	assert.Equal(t, "customer", msgs[2].ActorRole)
	assert.Equal(t, "Attached the logs, error code 500 appears at 02:00.", msgs[2].Content)
}

func TestParseThreadHTMLAndOrdering(t *testing.T) {
	body := `<div>From: Later Customer</div><div>Sent: 2024-02-02</div><p>second &amp; newest</p><hr/>` +
		`<div>From: Early Customer</div><div>Sent: 2024-02-01</div><p>first</p>`
	msgs := ParseThread(body)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second & newest", msgs[1].Content)
	assert.Empty(t, ParseThread("   "))
}

func TestSyncDeduplicatesByPrefix(t *testing.T) {
	store := openStore(t, 77)
	ctx := context.Background()
	body := "First message from customer.\n---\nFrom: Help Desk\nWe are looking into it."

	res, err := Sync(ctx, store.Q(), Thread{InvestigationID: 77, RunNumber: 2, Body: body, CustomerName: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.NewCount)
	assert.Equal(t, 2, res.TotalCount)
	assert.Equal(t, "Acme", model.Deref(res.NewResponses[0].ActorName))
	assert.Equal(t, 2, res.NewResponses[1].SequenceNumber)

	items, err := conversation.List(ctx, store.Q(), 77, model.Ptr(2), nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, model.ItemCustomerMessage, items[0].Type)
	assert.Equal(t, model.ItemAgentMessage, items[1].Type)
	meta, ok := items[0].Metadata.Get().(*model.CustomerMessageMeta)
	require.True(t, ok)
	assert.Equal(t, "pylon", meta.Source)
	assert.Equal(t, 1, model.Deref(meta.SequenceNumber))

	check, err := CheckForNew(ctx, store.Q(), 77, body+"\n---\nOne more thing from the customer.")
	require.NoError(t, err)
	assert.Equal(t, Check{HasNew: true, NewCount: 1}, check)

	res, err = Sync(ctx, store.Q(), Thread{InvestigationID: 77, RunNumber: 2, Body: body + "\n---\nOne more thing from the customer.", CustomerName: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewCount)
	assert.Equal(t, 3, res.TotalCount)
	assert.Equal(t, 3, res.NewResponses[0].SequenceNumber)

	check, err = CheckForNew(ctx, store.Q(), 77, body)
	require.NoError(t, err)
	assert.False(t, check.HasNew)
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "55.json"), []byte(`{"ticket_id":55,"title":"t"}`), 0o644))

	data, err := DirSource{Dir: dir}.Fetch(context.Background(), 55)
	require.NoError(t, err)
	assert.Equal(t, "t", data.Title)

	_, err = DirSource{Dir: dir}.Fetch(context.Background(), 56)
	require.ErrorIs(t, err, ErrUnavailable)
}

type scriptedRunner struct {
	out string
	err error
}

func (s scriptedRunner) Run(context.Context, agent.Request) (string, error) { return s.out, s.err }

func TestAgentSourceAndChain(t *testing.T) {
	src := AgentSource{Runner: scriptedRunner{out: "Here you go:\n{\"ticket_id\":9,\"title\":\"Login loop\",\"customer_name\":\"Globex\"}\n"}}
	data, err := src.Fetch(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, "Globex", data.CustomerName)

	_, err = AgentSource{Runner: scriptedRunner{out: "no json"}}.Fetch(context.Background(), 9)
	require.ErrorIs(t, err, ErrUnavailable)

	chain := Chain{DirSource{Dir: t.TempDir()}, src}
	data, err = chain.Fetch(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, "Login loop", data.Title)

	authChain := Chain{AgentSource{Runner: scriptedRunner{err: agent.ErrAuthRequired}}, src}
	_, err = authChain.Fetch(context.Background(), 9)
	assert.True(t, errors.Is(err, agent.ErrAuthRequired))
}

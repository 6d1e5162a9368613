// File path: internal/sqlite/store_test.go
package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenWithConfig(Config{Path: filepath.Join(t.TempDir(), "triage.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedInvestigation(t *testing.T, store *Store, id int64) *model.Investigation {
	t.Helper()
	inv := &model.Investigation{
		ID:                id,
		Status:            model.StatusRunning,
		CurrentCheckpoint: model.Ptr(model.CheckpointClassification),
		AgentMode:         "team",
		CurrentRunNumber:  1,
		OutputPath:        "/var/triage/investigations",
	}
	require.NoError(t, store.Q().InsertInvestigation(context.Background(), inv))
	return inv
}

func TestInvestigationRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	inv := seedInvestigation(t, store, 4242)

	got, err := store.Q().GetInvestigation(ctx, 4242)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, got.Status)
	assert.Equal(t, model.CheckpointClassification, got.Checkpoint())
	assert.Nil(t, got.Classification)
	assert.False(t, got.HasNewReply)

	class := model.ClassConnectorBug
	got.Classification = &class
	got.CustomerName = model.Ptr("Acme")
	got.HasNewReply = true
	require.NoError(t, store.Q().UpdateInvestigation(ctx, got))

	reloaded, err := store.Q().GetInvestigation(ctx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Classification)
	assert.Equal(t, model.ClassConnectorBug, *reloaded.Classification)
	assert.Equal(t, "Acme", reloaded.Customer(""))
	assert.True(t, reloaded.HasNewReply)

	_, err = store.Q().GetInvestigation(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunUniquenessIsEnforced(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedInvestigation(t, store, 7)

	require.NoError(t, store.Q().InsertRun(ctx, &model.Run{InvestigationID: 7, RunNumber: 1, TriggerType: model.TriggerManual}))
	err := store.Q().InsertRun(ctx, &model.Run{InvestigationID: 7, RunNumber: 1, TriggerType: model.TriggerHardReset})
	require.Error(t, err)

	require.NoError(t, store.Q().SupersedeRuns(ctx, 7, time.Now()))
	require.NoError(t, store.Q().InsertRun(ctx, &model.Run{InvestigationID: 7, RunNumber: 2, TriggerType: model.TriggerHardReset}))

	active, err := store.Q().ActiveRun(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, active.RunNumber)

	runs, err := store.Q().ListRuns(ctx, 7)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, model.RunSuperseded, runs[0].Status)
	assert.NotNil(t, runs[0].CompletedAt)
	assert.Equal(t, model.RunRunning, runs[1].Status)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(q *Queries) error {
		if err := q.InsertInvestigation(ctx, &model.Investigation{ID: 9, Status: model.StatusRunning, AgentMode: "team"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	exists, err := store.Q().InvestigationExists(ctx, 9)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestVersionNumbersAreSequential(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedInvestigation(t, store, 11)

	for i := 1; i <= 3; i++ {
		next, err := store.Q().NextVersionNumber(ctx, 11)
		require.NoError(t, err)
		require.Equal(t, i, next)
		v := &model.Version{
			InvestigationID:       11,
			RunNumber:             1,
			VersionNumber:         next,
			SnapshotInvestigation: types.JSONText(`{"id":11}`),
			SnapshotFiles:         types.JSONText(`{}`),
		}
		require.NoError(t, store.Q().InsertVersion(ctx, v))
		require.NotZero(t, v.ID)
	}
	latest, err := store.Q().LatestVersion(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.VersionNumber)
	assert.Equal(t, "system", latest.CreatedBy)

	err = store.Q().InsertVersion(ctx, &model.Version{InvestigationID: 11, VersionNumber: 3,
		SnapshotInvestigation: types.JSONText(`{}`), SnapshotFiles: types.JSONText(`{}`)})
	assert.Error(t, err)
}

func TestConversationMetadataBindsByType(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedInvestigation(t, store, 12)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	items := []*model.ConversationItem{
		{
			InvestigationID: 12, RunNumber: 1, Type: model.ItemHumanDecision,
			Content:   "Action: approve",
			Metadata:  model.NewMetadata(&model.HumanDecisionMeta{Checkpoint: model.CheckpointClassification, Action: "approve"}),
			CreatedAt: base,
		},
		{
			InvestigationID: 12, RunNumber: 2, Type: model.ItemResetMarker,
			Metadata:  model.NewMetadata(&model.ResetMarkerMeta{Trigger: "hard_reset", PreviousRun: 1, NewRun: 2}),
			CreatedAt: base.Add(time.Minute),
		},
		{
			InvestigationID: 12, RunNumber: 2, Type: model.ItemSystemPhase,
			CreatedAt: base.Add(time.Minute),
		},
	}
	for _, item := range items {
		require.NoError(t, store.Q().InsertConversationItem(ctx, item))
	}

	all, err := store.Q().ListConversation(ctx, ConversationFilter{InvestigationID: 12})
	require.NoError(t, err)
	require.Len(t, all, 3)
	decision, ok := all[0].Metadata.Get().(*model.HumanDecisionMeta)
	require.True(t, ok)
	assert.Equal(t, "approve", decision.Action)
	assert.Nil(t, decision.Feedback)
	marker, ok := all[1].Metadata.Get().(*model.ResetMarkerMeta)
	require.True(t, ok)
	assert.Equal(t, 2, marker.NewRun)
	assert.True(t, all[2].Metadata.IsZero())
	assert.Less(t, all[1].ID, all[2].ID)

	run := 2
	scoped, err := store.Q().ListConversation(ctx, ConversationFilter{InvestigationID: 12, RunNumber: &run})
	require.NoError(t, err)
	assert.Len(t, scoped, 2)

	since := base
	later, err := store.Q().ListConversation(ctx, ConversationFilter{InvestigationID: 12, Since: &since})
	require.NoError(t, err)
	assert.Len(t, later, 2)
}

func TestPendingResponsesAndTimers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedInvestigation(t, store, 13)

	for seq := 1; seq <= 3; seq++ {
		require.NoError(t, store.Q().InsertResponse(ctx, &model.TicketResponse{
			InvestigationID: 13, SequenceNumber: seq, ActorRole: "customer", Content: "message",
		}))
	}
	pending, err := store.Q().ListPendingResponses(ctx, 13)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	require.NoError(t, store.Q().MarkResponsesTriggered(ctx, []int64{pending[0].ID, pending[1].ID}))

	pending, err = store.Q().ListPendingResponses(ctx, 13)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 3, pending[0].SequenceNumber)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.Q().UpsertTimer(ctx, model.DebounceTimer{InvestigationID: 13, PendingMessages: 1, StartedAt: now, DueAt: now.Add(20 * time.Minute)}))
	require.NoError(t, store.Q().UpsertTimer(ctx, model.DebounceTimer{InvestigationID: 13, PendingMessages: 2, StartedAt: now, DueAt: now.Add(25 * time.Minute)}))
	timer, err := store.Q().GetTimer(ctx, 13)
	require.NoError(t, err)
	assert.Equal(t, 2, timer.PendingMessages)
	assert.True(t, timer.DueAt.Equal(now.Add(25*time.Minute)))

	require.NoError(t, store.Q().DeleteTimer(ctx, 13))
	_, err = store.Q().GetTimer(ctx, 13)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFeatureRequestDefaultsAndCounts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	fr := &model.FeatureRequest{Title: "Bulk export", Description: "CSV export of reviews"}
	require.NoError(t, store.Q().InsertFeatureRequest(ctx, fr))
	assert.Equal(t, "P3", fr.Priority)
	assert.Equal(t, "new", fr.Status)
	assert.Equal(t, "Other", fr.Category)
	assert.Equal(t, "TSE", fr.Requester)

	require.NoError(t, store.Q().InsertFeatureRequest(ctx, &model.FeatureRequest{Title: "SSO", Description: "x", Priority: "P1"}))
	byPriority, err := store.Q().CountFeatureRequestsBy(ctx, "priority")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"P1": 1, "P3": 1}, byPriority)

	_, err = store.Q().CountFeatureRequestsBy(ctx, "title; DROP TABLE x")
	assert.Error(t, err)

	assert.ErrorIs(t, store.Q().DeleteFeatureRequest(ctx, 999), ErrNotFound)
}

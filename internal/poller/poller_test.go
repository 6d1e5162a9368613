// File path: internal/poller/poller_test.go
package poller

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
	"github.com/jacobaguon-blip/support-triage/internal/workspace"
)

type recordingTimers struct {
	mu  sync.Mutex
	ids []int64
}

func (r *recordingTimers) StartOrReset(_ context.Context, id int64) (model.DebounceTimer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return model.DebounceTimer{InvestigationID: id, PendingMessages: len(r.ids)}, nil
}

func (r *recordingTimers) calls() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...)
}

const thread = "Our Okta sync fails every night.\n---\nFrom: Help Desk\nWe are looking into it."

func setup(t *testing.T) (*Poller, *sqlite.Store, *workspace.Workspace, *recordingTimers, *clockwork.FakeClock) {
	t.Helper()
	store, err := sqlite.OpenWithConfig(sqlite.Config{Path: filepath.Join(t.TempDir(), "poller.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	timers := &recordingTimers{}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	p, err := New(Config{Store: store, Workspace: ws, Timers: timers, Clock: clock, RatePerSecond: 1000, InitialBackoff: time.Millisecond})
	require.NoError(t, err)
	return p, store, ws, timers, clock
}

func addInvestigation(t *testing.T, store *sqlite.Store, id int64, status model.Status) {
	t.Helper()
	require.NoError(t, store.Q().InsertInvestigation(context.Background(), &model.Investigation{
		ID: id, Status: status, AgentMode: "team", CurrentRunNumber: 1, CustomerName: model.Ptr("Acme"),
	}))
}

func writeBody(t *testing.T, ws *workspace.Workspace, id int64, body string) {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"ticket_id": id, "title": "Sync", "body": body})
	require.NoError(t, err)
	require.NoError(t, ws.WriteFile(id, workspace.FileTicketData, raw))
}

func TestCheckSyncsAndStartsTimer(t *testing.T) {
	p, store, ws, timers, clock := setup(t)
	addInvestigation(t, store, 1, model.StatusWaiting)
	writeBody(t, ws, 1, thread)
	ctx := context.Background()

	res, err := p.Check(ctx, 1)
	require.NoError(t, err)
	assert.True(t, res.HasNew)
	assert.Equal(t, 2, res.NewCount)
	require.NotNil(t, res.Synced)
	assert.Equal(t, 2, res.Synced.NewCount)
	require.NotNil(t, res.Timer)
	assert.Equal(t, []int64{1}, timers.calls())

	inv, err := store.Q().GetInvestigation(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, inv.LastCustomerMessageAt)
	assert.True(t, clock.Now().Equal(*inv.LastCustomerMessageAt))
	require.NotNil(t, inv.LastResponseCheckAt)

	clock.Advance(time.Minute)
	res, err = p.Check(ctx, 1)
	require.NoError(t, err)
	assert.False(t, res.HasNew)
	assert.Nil(t, res.Synced)
	assert.Len(t, timers.calls(), 1)

	inv, err = store.Q().GetInvestigation(ctx, 1)
	require.NoError(t, err)
	assert.True(t, clock.Now().Equal(*inv.LastResponseCheckAt))
	assert.True(t, inv.LastCustomerMessageAt.Before(*inv.LastResponseCheckAt))
}

func TestSyncDoesNotStartTimer(t *testing.T) {
	p, store, ws, timers, _ := setup(t)
	addInvestigation(t, store, 2, model.StatusComplete)
	writeBody(t, ws, 2, thread)

	res, err := p.Sync(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.NewCount)
	assert.Empty(t, timers.calls())
}

func TestCheckWithoutTicketData(t *testing.T) {
	p, store, _, _, _ := setup(t)
	addInvestigation(t, store, 3, model.StatusWaiting)

	_, err := p.Check(context.Background(), 3)
	require.ErrorIs(t, err, ErrNoTicketData)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPollOnceCoversWaitingAndComplete(t *testing.T) {
	p, store, ws, timers, _ := setup(t)
	addInvestigation(t, store, 10, model.StatusWaiting)
	addInvestigation(t, store, 11, model.StatusComplete)
	addInvestigation(t, store, 12, model.StatusRunning)
	addInvestigation(t, store, 13, model.StatusWaiting)
	writeBody(t, ws, 10, thread)
	writeBody(t, ws, 11, thread)
	writeBody(t, ws, 12, thread)

	sum, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Checked: 2, WithNew: 2, Skipped: 1}, sum)
	assert.ElementsMatch(t, []int64{10, 11}, timers.calls())

	sum, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Checked: 2, Skipped: 1}, sum)
}

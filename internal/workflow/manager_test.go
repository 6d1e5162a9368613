// File path: internal/workflow/manager_test.go
package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ids ...int64) *sqlite.Store {
	t.Helper()
	store, err := sqlite.OpenWithConfig(sqlite.Config{Path: filepath.Join(t.TempDir(), "queue.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	for _, id := range ids {
		require.NoError(t, store.Q().InsertInvestigation(context.Background(), &model.Investigation{
			ID: id, Status: model.StatusRunning, AgentMode: "team", CurrentRunNumber: 1,
		}))
	}
	return store
}

func taskStatus(t *testing.T, mgr *Manager, investigationID int64) model.TaskStatus {
	t.Helper()
	tasks, err := mgr.Tasks(context.Background(), investigationID)
	require.NoError(t, err)
	require.NotEmpty(t, tasks)
	return tasks[0].Status
}

func TestEnqueueRejectsDuplicateWhileInFlight(t *testing.T) {
	store := newTestStore(t, 1)
	release := make(chan struct{})
	mgr := NewManager(store, ExecutorFunc(func(ctx context.Context, task model.Task) error {
		<-release
		return nil
	}))
	t.Cleanup(func() { mgr.Close() })

	task, err := mgr.Enqueue(context.Background(), 1, 1, model.Phase0)
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)

	_, err = mgr.Enqueue(context.Background(), 1, 1, model.Phase1)
	assert.ErrorIs(t, err, ErrTaskInFlight)

	inflight, ok := mgr.InFlight(1)
	require.True(t, ok)
	assert.Equal(t, model.Phase0, inflight.Phase)

	close(release)
	require.Eventually(t, func() bool { return taskStatus(t, mgr, 1) == model.TaskSucceeded }, 2*time.Second, 10*time.Millisecond)
	_, ok = mgr.InFlight(1)
	assert.False(t, ok)

	_, err = mgr.Enqueue(context.Background(), 1, 1, model.Phase1)
	assert.NoError(t, err)
}

func TestFailedTaskRecordsError(t *testing.T) {
	store := newTestStore(t, 2)
	mgr := NewManager(store, ExecutorFunc(func(ctx context.Context, task model.Task) error {
		return errors.New("agent exploded")
	}))
	t.Cleanup(func() { mgr.Close() })

	_, err := mgr.Enqueue(context.Background(), 2, 1, model.Phase2)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return taskStatus(t, mgr, 2) == model.TaskFailed }, 2*time.Second, 10*time.Millisecond)

	tasks, err := mgr.Tasks(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "agent exploded", model.Deref(tasks[0].Error))
	assert.NotNil(t, tasks[0].FinishedAt)
}

func TestPanickingExecutorFailsTask(t *testing.T) {
	store := newTestStore(t, 3)
	mgr := NewManager(store, ExecutorFunc(func(ctx context.Context, task model.Task) error {
		panic("boom")
	}))
	t.Cleanup(func() { mgr.Close() })

	_, err := mgr.Enqueue(context.Background(), 3, 1, model.Phase0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return taskStatus(t, mgr, 3) == model.TaskFailed }, 2*time.Second, 10*time.Millisecond)
}

func TestMaxActiveLimitsConcurrency(t *testing.T) {
	store := newTestStore(t, 4, 5)
	var running, peak int32
	release := make(chan struct{})
	mgr := NewManager(store, ExecutorFunc(func(ctx context.Context, task model.Task) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&running, -1)
		return nil
	}), WithMaxActive(1))
	t.Cleanup(func() { mgr.Close() })

	_, err := mgr.Enqueue(context.Background(), 4, 1, model.Phase0)
	require.NoError(t, err)
	_, err = mgr.Enqueue(context.Background(), 5, 1, model.Phase0)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&running) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&running))

	close(release)
	require.Eventually(t, func() bool {
		return taskStatus(t, mgr, 4) == model.TaskSucceeded && taskStatus(t, mgr, 5) == model.TaskSucceeded
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestCancelFreesSlot(t *testing.T) {
	store := newTestStore(t, 6)
	mgr := NewManager(store, ExecutorFunc(func(ctx context.Context, task model.Task) error {
		if task.Phase == model.Phase1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}))
	t.Cleanup(func() { mgr.Close() })

	_, err := mgr.Enqueue(context.Background(), 6, 1, model.Phase1)
	require.NoError(t, err)
	assert.True(t, mgr.Cancel(6))
	assert.False(t, mgr.Cancel(6))

	_, err = mgr.Enqueue(context.Background(), 6, 2, model.Phase0)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		tasks, err := mgr.Tasks(context.Background(), 6)
		if err != nil || len(tasks) != 2 {
			return false
		}
		return tasks[0].Status.Terminal() && tasks[1].Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecoverFailsInterruptedTasks(t *testing.T) {
	store := newTestStore(t, 7, 8)
	ctx := context.Background()
	require.NoError(t, store.Q().InsertTask(ctx, &model.Task{ID: "t-7", InvestigationID: 7, RunNumber: 1, Phase: model.Phase1, Status: model.TaskRunning}))
	require.NoError(t, store.Q().InsertTask(ctx, &model.Task{ID: "t-8", InvestigationID: 8, RunNumber: 1, Phase: model.Phase0, Status: model.TaskSucceeded}))

	mgr := NewManager(store, nil)
	t.Cleanup(func() { mgr.Close() })
	n, err := mgr.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	inv, err := store.Q().GetInvestigation(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, inv.Status)
	assert.Equal(t, InterruptedReason, model.Deref(inv.ErrorMessage))

	untouched, err := store.Q().GetInvestigation(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, untouched.Status)
	assert.Equal(t, model.TaskFailed, taskStatus(t, mgr, 7))
}

func TestEnqueueAfterClose(t *testing.T) {
	store := newTestStore(t, 9)
	mgr := NewManager(store, ExecutorFunc(func(ctx context.Context, task model.Task) error { return nil }))
	require.NoError(t, mgr.Close())
	_, err := mgr.Enqueue(context.Background(), 9, 1, model.Phase0)
	assert.ErrorIs(t, err, ErrClosed)
}

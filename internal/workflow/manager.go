// File path: internal/workflow/manager.go
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/common/telemetry"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"
)

const maxLogEntries = 500

// InterruptedReason is recorded on tasks and investigations that were in
// flight when the process stopped.
const InterruptedReason = "interrupted by process restart"

var (
	// ErrTaskInFlight is returned when the investigation already has a queued
	// or running phase task.
	ErrTaskInFlight = errors.New("phase task already in flight")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("task queue closed")
)

// Executor runs one phase task. Implementations record their own
// investigation-level outcome; the returned error only marks the task.
type Executor interface {
	Execute(ctx context.Context, task model.Task) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, task model.Task) error

func (f ExecutorFunc) Execute(ctx context.Context, task model.Task) error { return f(ctx, task) }

// LogEntry is a queue event kept for the operator log view.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

type session struct {
	task   model.Task
	cancel context.CancelFunc
}

// Manager runs phase tasks with at most one in flight per investigation and
// a global cap on concurrently executing investigations.
type Manager struct {
	store *sqlite.Store
	exec  Executor
	clock clockwork.Clock
	sem   *semaphore.Weighted

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	sessionMu sync.Mutex
	sessions  map[int64]*session
	closed    bool

	logMu sync.Mutex
	logs  []LogEntry
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used for task timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithMaxActive limits how many investigations execute phases at once.
func WithMaxActive(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// NewManager builds a queue executing tasks with exec.
func NewManager(store *sqlite.Store, exec Executor, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:    store,
		exec:     exec,
		clock:    clockwork.NewRealClock(),
		sem:      semaphore.NewWeighted(3),
		baseCtx:  ctx,
		stop:     cancel,
		sessions: make(map[int64]*session),
		logs:     make([]LogEntry, 0, 32),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetExecutor installs the executor after construction.
func (m *Manager) SetExecutor(exec Executor) {
	m.sessionMu.Lock()
	m.exec = exec
	m.sessionMu.Unlock()
}

// Enqueue records a queued task and starts it in the background.
func (m *Manager) Enqueue(ctx context.Context, investigationID int64, runNumber int, phase model.Phase) (model.Task, error) {
	if m == nil || m.store == nil {
		return model.Task{}, errors.New("task queue not initialised")
	}
	task := model.Task{
		ID:              uuid.NewString(),
		InvestigationID: investigationID,
		RunNumber:       runNumber,
		Phase:           phase,
		Status:          model.TaskQueued,
		CreatedAt:       m.clock.Now().UTC(),
	}

	m.sessionMu.Lock()
	if m.closed {
		m.sessionMu.Unlock()
		return model.Task{}, ErrClosed
	}
	if existing, ok := m.sessions[investigationID]; ok {
		m.sessionMu.Unlock()
		return existing.task, fmt.Errorf("%w: %s for investigation %d", ErrTaskInFlight, existing.task.Phase, investigationID)
	}
	if err := m.store.Q().InsertTask(ctx, &task); err != nil {
		m.sessionMu.Unlock()
		return model.Task{}, err
	}
	taskCtx, cancel := context.WithCancel(m.baseCtx)
	sess := &session{task: task, cancel: cancel}
	m.sessions[investigationID] = sess
	m.wg.Add(1)
	m.sessionMu.Unlock()
	m.publishDepth()

	go m.run(taskCtx, sess)
	m.AppendLog("info", "Queued %s for investigation %d (run %d)", phase, investigationID, runNumber)
	return task, nil
}

func (m *Manager) run(ctx context.Context, sess *session) {
	defer m.wg.Done()
	defer sess.cancel()
	task := sess.task

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(sess, fmt.Errorf("canceled before start: %w", err), 0)
		return
	}
	defer m.sem.Release(1)

	started := m.clock.Now().UTC()
	task.Status = model.TaskRunning
	task.StartedAt = &started
	m.sessionMu.Lock()
	sess.task = task
	m.sessionMu.Unlock()
	if err := m.store.Q().UpdateTask(context.Background(), &task); err != nil {
		common.Logger().Warn("workflow: mark task running failed", "task", task.ID, "error", err)
	}

	m.sessionMu.Lock()
	exec := m.exec
	m.sessionMu.Unlock()
	err := m.execute(ctx, exec, task)
	m.finish(sess, err, m.clock.Since(started))
}

func (m *Manager) execute(ctx context.Context, exec Executor, task model.Task) (err error) {
	if exec == nil {
		return errors.New("no executor configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("phase panicked: %v", r)
		}
	}()
	return exec.Execute(ctx, task)
}

func (m *Manager) finish(sess *session, runErr error, elapsed time.Duration) {
	m.sessionMu.Lock()
	task := sess.task
	if current, ok := m.sessions[task.InvestigationID]; ok && current == sess {
		delete(m.sessions, task.InvestigationID)
	}
	m.sessionMu.Unlock()
	m.publishDepth()

	finished := m.clock.Now().UTC()
	task.FinishedAt = &finished
	outcome := "succeeded"
	if runErr != nil {
		task.Status = model.TaskFailed
		task.Error = model.Ptr(runErr.Error())
		outcome = "failed"
		m.AppendLog("warn", "%s for investigation %d failed: %v", task.Phase, task.InvestigationID, runErr)
	} else {
		task.Status = model.TaskSucceeded
		m.AppendLog("info", "%s for investigation %d finished in %s", task.Phase, task.InvestigationID, elapsed.Round(time.Millisecond))
	}
	if err := m.store.Q().UpdateTask(context.Background(), &task); err != nil {
		common.Logger().Warn("workflow: record task outcome failed", "task", task.ID, "error", err)
	}
	telemetry.RecordPhaseTask(string(task.Phase), outcome, elapsed)
}

// InFlight returns the queued or running task for an investigation.
func (m *Manager) InFlight(investigationID int64) (model.Task, bool) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	sess, ok := m.sessions[investigationID]
	if !ok {
		return model.Task{}, false
	}
	return sess.task, true
}

// Cancel aborts the in-flight task of an investigation, if any, and frees the
// slot immediately so a replacement can be queued.
func (m *Manager) Cancel(investigationID int64) bool {
	m.sessionMu.Lock()
	sess, ok := m.sessions[investigationID]
	if ok {
		delete(m.sessions, investigationID)
	}
	m.sessionMu.Unlock()
	if !ok {
		return false
	}
	sess.cancel()
	m.publishDepth()
	m.AppendLog("info", "Cancellation requested for %s of investigation %d", sess.task.Phase, investigationID)
	return true
}

// Tasks lists the persisted tasks of an investigation, newest first.
func (m *Manager) Tasks(ctx context.Context, investigationID int64) ([]model.Task, error) {
	tasks, err := m.store.Q().ListTasks(ctx, investigationID)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

// Recover fails tasks left queued or running by a previous process and moves
// their running investigations to error.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	tasks, err := m.store.Q().ListUnfinishedTasks(ctx)
	if err != nil {
		return 0, err
	}
	now := m.clock.Now().UTC()
	for i := range tasks {
		task := tasks[i]
		err := m.store.WithTx(ctx, func(q *sqlite.Queries) error {
			task.Status = model.TaskFailed
			task.Error = model.Ptr(InterruptedReason)
			task.FinishedAt = &now
			if err := q.UpdateTask(ctx, &task); err != nil {
				return err
			}
			inv, err := q.GetInvestigation(ctx, task.InvestigationID)
			if err != nil {
				if errors.Is(err, sqlite.ErrNotFound) {
					return nil
				}
				return err
			}
			if inv.Status != model.StatusRunning || inv.RunNumber() != task.RunNumber {
				return nil
			}
			inv.Status = model.StatusError
			inv.ErrorMessage = model.Ptr(InterruptedReason)
			inv.ErrorType = model.Ptr(model.ErrorTypeGeneral)
			return q.UpdateInvestigation(ctx, inv)
		})
		if err != nil {
			return i, fmt.Errorf("recover task %s: %w", task.ID, err)
		}
		common.Logger().Warn("workflow: recovered interrupted task", "task", task.ID, "investigation", task.InvestigationID, "phase", task.Phase)
	}
	return len(tasks), nil
}

// Close cancels running tasks and waits for them to return.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.sessionMu.Lock()
	m.closed = true
	m.sessionMu.Unlock()
	m.stop()
	m.wg.Wait()
	return nil
}

func (m *Manager) publishDepth() {
	m.sessionMu.Lock()
	n := len(m.sessions)
	m.sessionMu.Unlock()
	telemetry.SetQueueDepth(n)
}

// AppendLog records a queue event and mirrors it to the process logger.
func (m *Manager) AppendLog(level, format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	entry := LogEntry{Time: m.clock.Now().UTC(), Level: level, Message: text}
	m.logMu.Lock()
	m.logs = append(m.logs, entry)
	if len(m.logs) > maxLogEntries {
		m.logs = m.logs[len(m.logs)-maxLogEntries:]
	}
	m.logMu.Unlock()
	logger := common.Logger()
	switch level {
	case "error":
		logger.Error("workflow: " + text)
	case "warn":
		logger.Warn("workflow: " + text)
	case "debug":
		logger.Debug("workflow: " + text)
	default:
		logger.Info("workflow: " + text)
	}
}

// Logs returns a copy of the recent queue events.
func (m *Manager) Logs() []LogEntry {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	entries := make([]LogEntry, len(m.logs))
	copy(entries, m.logs)
	return entries
}

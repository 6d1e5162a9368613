// File path: internal/phases/phases.go
package phases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jacobaguon-blip/support-triage/internal/agent"
	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/conversation"
	"github.com/jacobaguon-blip/support-triage/internal/keylock"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
	"github.com/jacobaguon-blip/support-triage/internal/ticket"
	"github.com/jacobaguon-blip/support-triage/internal/workspace"
)

// ErrStaleRun is returned when the investigation moved to a newer run while
// the phase was executing. The phase output is discarded.
var ErrStaleRun = errors.New("phases: run superseded")

// Config wires the phase runner.
type Config struct {
	Store     *sqlite.Store
	Workspace *workspace.Workspace
	Agent     agent.Runner
	Source    ticket.Source
	Locks     *keylock.Map
	Clock     clockwork.Clock
	// AgentWorkDir is where ticket fetches run; phases 1 and 2 run inside
	// the investigation directory.
	AgentWorkDir string
}

// Runner executes phase tasks. It implements workflow.Executor.
type Runner struct {
	cfg Config
}

// New validates cfg and returns a Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Store == nil || cfg.Workspace == nil {
		return nil, errors.New("phases: store and workspace required")
	}
	if cfg.Locks == nil {
		cfg.Locks = keylock.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Runner{cfg: cfg}, nil
}

// result is the deferred outcome of a phase, applied under the investigation
// lock once the stale-run guard passes.
type result struct {
	files    map[string][]byte
	apply    func(inv *model.Investigation)
	items    []conversation.Entry
	activity []string
	metrics  map[string]interface{}
	docs     int
}

func newResult() *result {
	return &result{
		files:   make(map[string][]byte),
		apply:   func(*model.Investigation) {},
		metrics: make(map[string]interface{}),
	}
}

// Execute runs task.Phase for task.InvestigationID.
func (r *Runner) Execute(ctx context.Context, task model.Task) error {
	if r == nil {
		return errors.New("phase runner not initialised")
	}
	logger := common.Logger()
	inv, err := r.cfg.Store.Q().GetInvestigation(ctx, task.InvestigationID)
	if err != nil {
		return err
	}
	if inv.RunNumber() != task.RunNumber {
		return fmt.Errorf("%w: task for run %d, investigation on run %d", ErrStaleRun, task.RunNumber, inv.RunNumber())
	}

	started := r.cfg.Clock.Now()
	phase := string(task.Phase)
	r.cfg.Workspace.LogActivity(task.InvestigationID, phase, "start", fmt.Sprintf("Starting %s for ticket #%d", phaseTitle(task.Phase), task.InvestigationID))
	if err := r.appendPhaseItem(ctx, task, model.TaskRunning, fmt.Sprintf("Started %s", phaseTitle(task.Phase))); err != nil {
		if errors.Is(err, ErrStaleRun) || errors.Is(err, context.Canceled) {
			return err
		}
		err = fmt.Errorf("record phase start: %w", err)
		r.fail(ctx, task, err)
		return err
	}
	logger.Info("phases: started", "investigation", task.InvestigationID, "run", task.RunNumber, "phase", phase)

	var res *result
	switch task.Phase {
	case model.Phase0:
		res, err = r.phase0(ctx, task, inv)
	case model.Phase1:
		res, err = r.phase1(ctx, task, inv)
	case model.Phase2:
		res, err = r.phase2(ctx, task, inv)
	default:
		err = fmt.Errorf("phases: unknown phase %q", task.Phase)
	}
	if err == nil {
		res.metrics[phase+"_duration_ms"] = r.cfg.Clock.Since(started).Milliseconds()
		err = r.commit(ctx, task, res)
		if err == nil {
			logger.Info("phases: completed", "investigation", task.InvestigationID, "run", task.RunNumber, "phase", phase, "dur", r.cfg.Clock.Since(started))
			return nil
		}
	}
	if errors.Is(err, ErrStaleRun) || errors.Is(err, context.Canceled) {
		logger.Info("phases: discarded", "investigation", task.InvestigationID, "run", task.RunNumber, "phase", phase, "reason", err)
		return err
	}
	r.fail(ctx, task, err)
	return err
}

// guard reloads the investigation inside a transaction and verifies the run
// is still current.
func guard(ctx context.Context, q *sqlite.Queries, task model.Task) (*model.Investigation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inv, err := q.GetInvestigation(ctx, task.InvestigationID)
	if err != nil {
		return nil, err
	}
	if inv.RunNumber() != task.RunNumber {
		return nil, fmt.Errorf("%w: now on run %d", ErrStaleRun, inv.RunNumber())
	}
	return inv, nil
}

func (r *Runner) commit(ctx context.Context, task model.Task, res *result) error {
	unlock := r.cfg.Locks.Lock(task.InvestigationID)
	defer unlock()

	return r.cfg.Store.WithTx(ctx, func(q *sqlite.Queries) error {
		inv, err := guard(ctx, q, task)
		if err != nil {
			return err
		}
		for name, data := range res.files {
			if err := r.cfg.Workspace.WriteFile(task.InvestigationID, name, data); err != nil {
				return err
			}
		}
		checkpoint := task.Phase.Unblocks()
		res.apply(inv)
		inv.Status = model.StatusWaiting
		inv.CurrentCheckpoint = &checkpoint
		inv.ErrorMessage = nil
		inv.ErrorType = nil
		if err := q.UpdateInvestigation(ctx, inv); err != nil {
			return err
		}
		if err := q.UpdateRunProgress(ctx, task.InvestigationID, task.RunNumber, &checkpoint, model.RunRunning, nil); err != nil {
			return err
		}
		for _, entry := range res.items {
			if _, err := conversation.Append(ctx, q, task.InvestigationID, task.RunNumber, entry); err != nil {
				return err
			}
		}
		phase := string(task.Phase)
		for _, line := range res.activity {
			r.cfg.Workspace.LogActivity(task.InvestigationID, phase, "result", line)
		}
		r.cfg.Workspace.MergeMetrics(task.InvestigationID, res.metrics)
		r.cfg.Workspace.LogActivity(task.InvestigationID, phase, "complete", completionMessage(task.Phase, res))
		return nil
	})
}

func completionMessage(phase model.Phase, res *result) string {
	switch phase {
	case model.Phase0:
		return "Phase 0 complete, awaiting classification review"
	case model.Phase1:
		return "Phase 1 complete, awaiting context review"
	}
	return fmt.Sprintf("Phase 2 complete, %d documents generated", res.docs)
}

// fail records err on the investigation unless the run moved on.
func (r *Runner) fail(ctx context.Context, task model.Task, cause error) {
	logger := common.Logger()
	phase := string(task.Phase)
	message := cause.Error()
	errType := model.ErrorTypeGeneral
	if errors.Is(cause, agent.ErrAuthRequired) {
		message = agent.AuthRemediation
		errType = model.ErrorTypeAuth
		r.cfg.Workspace.LogActivity(task.InvestigationID, phase, "error", "Investigation paused, authentication required")
	} else {
		r.cfg.Workspace.LogActivity(task.InvestigationID, phase, "error", fmt.Sprintf("%s failed: %s", phaseTitle(task.Phase), message))
	}

	// The task context may already be done; failure bookkeeping still runs.
	bg := context.WithoutCancel(ctx)
	unlock := r.cfg.Locks.Lock(task.InvestigationID)
	defer unlock()
	err := r.cfg.Store.WithTx(bg, func(q *sqlite.Queries) error {
		inv, err := guard(bg, q, task)
		if err != nil {
			return err
		}
		inv.Status = model.StatusError
		inv.ErrorMessage = &message
		inv.ErrorType = &errType
		if err := q.UpdateInvestigation(bg, inv); err != nil {
			return err
		}
		_, err = conversation.Append(bg, q, task.InvestigationID, task.RunNumber, conversation.Entry{
			Type:      model.ItemSystemResult,
			Phase:     phase,
			ActorName: "System",
			ActorRole: "system",
			Content:   fmt.Sprintf("## %s failed\n\n%s", phaseTitle(task.Phase), message),
			Preview:   fmt.Sprintf("%s failed: %s", phaseTitle(task.Phase), message),
			Metadata:  model.SystemResultMeta{Error: message, ErrorType: string(errType)},
		})
		return err
	})
	if err != nil && !errors.Is(err, ErrStaleRun) {
		logger.Error("phases: failed to record phase error", "investigation", task.InvestigationID, "phase", phase, "error", err)
	}
	logger.Warn("phases: failed", "investigation", task.InvestigationID, "run", task.RunNumber, "phase", phase, "error", cause)
}

// appendPhaseItem records a system_phase item on the task's run.
func (r *Runner) appendPhaseItem(ctx context.Context, task model.Task, status model.TaskStatus, content string) error {
	unlock := r.cfg.Locks.Lock(task.InvestigationID)
	defer unlock()
	return r.cfg.Store.WithTx(ctx, func(q *sqlite.Queries) error {
		if _, err := guard(ctx, q, task); err != nil {
			return err
		}
		_, err := conversation.Append(ctx, q, task.InvestigationID, task.RunNumber, conversation.Entry{
			Type:      model.ItemSystemPhase,
			Phase:     string(task.Phase),
			ActorName: "System",
			ActorRole: "system",
			Content:   content,
			Metadata:  model.SystemPhaseMeta{Phase: task.Phase, TaskID: task.ID, Status: status},
		})
		return err
	})
}

func phaseTitle(p model.Phase) string {
	switch p {
	case model.Phase0:
		return "Phase 0: Classification"
	case model.Phase1:
		return "Phase 1: Context Gathering"
	case model.Phase2:
		return "Phase 2: Document Synthesis"
	}
	return string(p)
}

// transcript appends the prompt and output of an agent call.
func (r *Runner) transcript(id int64, phase model.Phase, prompt, output string, at time.Time) {
	text := fmt.Sprintf("=== %s prompt (%s) ===\n%s\n\n=== %s output ===\n%s\n\n", phase, at.UTC().Format(time.RFC3339), prompt, phase, output)
	if err := r.cfg.Workspace.AppendText(id, workspace.FileAgentTranscript, text); err != nil {
		common.Logger().Warn("phases: transcript write failed", "investigation", id, "error", err)
	}
}

// File path: internal/model/task.go
package model

import "time"

// Phase names one of the agent-backed investigation phases.
type Phase string

const (
	Phase0 Phase = "phase0"
	Phase1 Phase = "phase1"
	Phase2 Phase = "phase2"
)

// Unblocks returns the checkpoint reached when the phase completes.
func (p Phase) Unblocks() Checkpoint {
	switch p {
	case Phase0:
		return CheckpointClassification
	case Phase1:
		return CheckpointContext
	case Phase2:
		return CheckpointValidation
	}
	return ""
}

// TaskStatus is the lifecycle status of a queued phase task.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether the task has finished.
func (s TaskStatus) Terminal() bool { return s == TaskSucceeded || s == TaskFailed }

// Task is one phase execution request.
type Task struct {
	ID              string     `db:"id" json:"id"`
	InvestigationID int64      `db:"investigation_id" json:"investigation_id"`
	RunNumber       int        `db:"run_number" json:"run_number"`
	Phase           Phase      `db:"phase" json:"phase"`
	Status          TaskStatus `db:"status" json:"status"`
	Error           *string    `db:"error" json:"error,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	StartedAt       *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt      *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// FeatureRequest is an operator-tracked product request.
type FeatureRequest struct {
	ID          int64     `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Priority    string    `db:"priority" json:"priority"`
	Status      string    `db:"status" json:"status"`
	Category    string    `db:"category" json:"category"`
	Requester   string    `db:"requester" json:"requester"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

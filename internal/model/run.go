// File path: internal/model/run.go
package model

import "time"

// TriggerType records why a run was started.
type TriggerType string

const (
	TriggerManual      TriggerType = "manual"
	TriggerNewResponse TriggerType = "new_response"
	TriggerHardReset   TriggerType = "hard_reset"
)

// RunStatus is the lifecycle status of a run.
type RunStatus string

const (
	RunRunning    RunStatus = "running"
	RunComplete   RunStatus = "complete"
	RunSuperseded RunStatus = "superseded"
)

// Run is one attempt at investigating a ticket.
type Run struct {
	ID                int64       `db:"id" json:"id"`
	InvestigationID   int64       `db:"investigation_id" json:"investigation_id"`
	RunNumber         int         `db:"run_number" json:"run_number"`
	TriggerType       TriggerType `db:"trigger_type" json:"trigger_type"`
	TriggerSummary    *string     `db:"trigger_summary" json:"trigger_summary"`
	Status            RunStatus   `db:"status" json:"status"`
	CurrentCheckpoint *Checkpoint `db:"current_checkpoint" json:"current_checkpoint"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	CompletedAt       *time.Time  `db:"completed_at" json:"completed_at"`
}

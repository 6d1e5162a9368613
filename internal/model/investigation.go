// File path: internal/model/investigation.go
package model

import (
	"strings"
	"time"
)

// Status is the workflow status of an investigation.
type Status string

const (
	StatusRunning  Status = "running"
	StatusWaiting  Status = "waiting"
	StatusPaused   Status = "paused"
	StatusError    Status = "error"
	StatusComplete Status = "complete"
)

// Checkpoint names one of the four human review gates.
type Checkpoint string

const (
	CheckpointClassification Checkpoint = "checkpoint_1_post_classification"
	CheckpointContext        Checkpoint = "checkpoint_2_post_context_gathering"
	CheckpointValidation     Checkpoint = "checkpoint_3_investigation_validation"
	CheckpointSolution       Checkpoint = "checkpoint_4_solution_check"
)

// CheckpointOrder is the fixed gate sequence.
var CheckpointOrder = []Checkpoint{
	CheckpointClassification,
	CheckpointContext,
	CheckpointValidation,
	CheckpointSolution,
}

// Index returns the zero-based position of the checkpoint, or -1.
func (c Checkpoint) Index() int {
	for i, cp := range CheckpointOrder {
		if cp == c {
			return i
		}
	}
	return -1
}

// Valid reports whether c is one of the known checkpoints.
func (c Checkpoint) Valid() bool { return c.Index() >= 0 }

// Next returns the checkpoint following c. ok is false for the last gate.
func (c Checkpoint) Next() (next Checkpoint, ok bool) {
	idx := c.Index()
	if idx < 0 || idx >= len(CheckpointOrder)-1 {
		return "", false
	}
	return CheckpointOrder[idx+1], true
}

// Classification is the triage category assigned to a ticket.
type Classification string

const (
	ClassConnectorBug    Classification = "connector_bug"
	ClassProductBug      Classification = "product_bug"
	ClassFeatureRequest  Classification = "feature_request"
	ClassDocumentation   Classification = "documentation"
	ClassGeneralQuestion Classification = "general_question"
	ClassSkip            Classification = "skip"
)

// IsBug reports whether the classification describes a defect.
func (c Classification) IsBug() bool {
	return c == ClassConnectorBug || c == ClassProductBug
}

// Label renders the classification for humans ("connector bug").
func (c Classification) Label() string {
	return strings.ReplaceAll(string(c), "_", " ")
}

// ErrorType distinguishes authentication failures from everything else.
type ErrorType string

const (
	ErrorTypeAuth    ErrorType = "auth"
	ErrorTypeGeneral ErrorType = "general"
)

// Investigation is the root record for one ticket under triage. The ID is the
// external ticket ID.
type Investigation struct {
	ID                    int64           `db:"id" json:"id"`
	CustomerName          *string         `db:"customer_name" json:"customer_name"`
	Classification        *Classification `db:"classification" json:"classification"`
	ConnectorName         *string         `db:"connector_name" json:"connector_name"`
	ProductArea           *string         `db:"product_area" json:"product_area"`
	Priority              *string         `db:"priority" json:"priority"`
	SuggestedPriority     *string         `db:"suggested_priority" json:"suggested_priority"`
	Status                Status          `db:"status" json:"status"`
	CurrentCheckpoint     *Checkpoint     `db:"current_checkpoint" json:"current_checkpoint"`
	AgentMode             string          `db:"agent_mode" json:"agent_mode"`
	CurrentVersionID      *int64          `db:"current_version_id" json:"current_version_id"`
	AnchorVersionID       *int64          `db:"anchor_version_id" json:"anchor_version_id"`
	CurrentRunNumber      int             `db:"current_run_number" json:"current_run_number"`
	HasNewReply           bool            `db:"has_new_reply" json:"has_new_reply"`
	NewReplySummary       *string         `db:"new_reply_summary" json:"new_reply_summary"`
	LastCustomerMessageAt *time.Time      `db:"last_customer_message_at" json:"last_customer_message_at"`
	LastResponseCheckAt   *time.Time      `db:"last_response_check_at" json:"last_response_check_at"`
	ErrorMessage          *string         `db:"error_message" json:"error_message"`
	ErrorType             *ErrorType      `db:"error_type" json:"error_type"`
	OutputPath            string          `db:"output_path" json:"output_path"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
	ResolvedAt            *time.Time      `db:"resolved_at" json:"resolved_at"`
}

// Checkpoint returns the current checkpoint or "" when unset.
func (i *Investigation) Checkpoint() Checkpoint {
	if i == nil || i.CurrentCheckpoint == nil {
		return ""
	}
	return *i.CurrentCheckpoint
}

// RunNumber returns the active run number, defaulting to 1.
func (i *Investigation) RunNumber() int {
	if i == nil || i.CurrentRunNumber <= 0 {
		return 1
	}
	return i.CurrentRunNumber
}

// Customer returns the customer name or fallback when unset.
func (i *Investigation) Customer(fallback string) string {
	if i == nil {
		return fallback
	}
	if name := strings.TrimSpace(Deref(i.CustomerName)); name != "" {
		return name
	}
	return fallback
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// Deref returns the pointed-to value or the zero value for nil.
func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// NullIfEmpty returns nil for blank strings.
func NullIfEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

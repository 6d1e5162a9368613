// File path: internal/model/version.go
package model

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RestoreMode selects how a version restore is applied.
type RestoreMode string

const (
	RestoreRollback RestoreMode = "rollback"
	RestoreRefocus  RestoreMode = "refocus"
)

// Valid reports whether m is a supported restore mode.
func (m RestoreMode) Valid() bool { return m == RestoreRollback || m == RestoreRefocus }

// Version is an immutable snapshot of an investigation.
type Version struct {
	ID                    int64          `db:"id" json:"id"`
	InvestigationID       int64          `db:"investigation_id" json:"investigation_id"`
	RunNumber             int            `db:"run_number" json:"run_number"`
	VersionNumber         int            `db:"version_number" json:"version_number"`
	Label                 string         `db:"label" json:"label"`
	Checkpoint            *Checkpoint    `db:"checkpoint" json:"checkpoint"`
	SnapshotInvestigation types.JSONText `db:"snapshot_investigation" json:"snapshot_investigation"`
	SnapshotFiles         types.JSONText `db:"snapshot_files" json:"snapshot_files"`
	DiffSummary           string         `db:"diff_summary" json:"diff_summary"`
	CreatedBy             string         `db:"created_by" json:"created_by"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
}

// Fields decodes the captured investigation fields.
func (v *Version) Fields() (FieldSnapshot, error) {
	var out FieldSnapshot
	if v == nil || len(v.SnapshotInvestigation) == 0 {
		return out, nil
	}
	err := json.Unmarshal(v.SnapshotInvestigation, &out)
	return out, err
}

// Files decodes the captured document contents.
func (v *Version) Files() (FileSnapshot, error) {
	out := FileSnapshot{}
	if v == nil || len(v.SnapshotFiles) == 0 {
		return out, nil
	}
	err := json.Unmarshal(v.SnapshotFiles, &out)
	return out, err
}

// FieldSnapshot is the serialized copy of an investigation's mutable fields.
type FieldSnapshot struct {
	ID                int64   `json:"id"`
	TicketID          *int64  `json:"ticket_id"`
	CustomerName      *string `json:"customer_name"`
	Classification    *string `json:"classification"`
	ConnectorName     *string `json:"connector_name"`
	ProductArea       *string `json:"product_area"`
	Priority          *string `json:"priority"`
	Status            *string `json:"status"`
	CurrentCheckpoint *string `json:"current_checkpoint"`
	AnchorVersionID   *int64  `json:"anchor_version_id"`
}

// TrackedFields lists the fields compared when diffing snapshots.
var TrackedFields = []string{
	"customer_name",
	"classification",
	"connector_name",
	"product_area",
	"priority",
	"status",
	"current_checkpoint",
}

// Field returns the named tracked field.
func (f FieldSnapshot) Field(name string) *string {
	switch name {
	case "customer_name":
		return f.CustomerName
	case "classification":
		return f.Classification
	case "connector_name":
		return f.ConnectorName
	case "product_area":
		return f.ProductArea
	case "priority":
		return f.Priority
	case "status":
		return f.Status
	case "current_checkpoint":
		return f.CurrentCheckpoint
	}
	return nil
}

// CaptureFields builds a FieldSnapshot from an investigation row.
func CaptureFields(inv *Investigation) FieldSnapshot {
	snap := FieldSnapshot{
		ID:              inv.ID,
		TicketID:        Ptr(inv.ID),
		CustomerName:    inv.CustomerName,
		ConnectorName:   inv.ConnectorName,
		ProductArea:     inv.ProductArea,
		Priority:        inv.Priority,
		Status:          Ptr(string(inv.Status)),
		AnchorVersionID: inv.AnchorVersionID,
	}
	if inv.Classification != nil {
		snap.Classification = Ptr(string(*inv.Classification))
	}
	if inv.CurrentCheckpoint != nil {
		snap.CurrentCheckpoint = Ptr(string(*inv.CurrentCheckpoint))
	}
	return snap
}

// FileSnapshot maps tracked file names to their captured content. JSON files
// are stored as parsed JSON, text files as JSON strings and missing files as
// null.
type FileSnapshot map[string]json.RawMessage

// FieldChange is one differing field between two versions.
type FieldChange struct {
	Field    string  `json:"field"`
	OldValue *string `json:"oldValue"`
	NewValue *string `json:"newValue"`
}

// VersionDiff compares two versions.
type VersionDiff struct {
	ChangedFields []FieldChange `json:"changedFields"`
	ChangedFiles  []string      `json:"changedFiles"`
	Summary       string        `json:"summary"`
}

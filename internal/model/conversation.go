// File path: internal/model/conversation.go
package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ItemType tags a conversation item and selects its metadata schema.
type ItemType string

const (
	ItemCustomerMessage ItemType = "customer_message"
	ItemAgentMessage    ItemType = "agent_message"
	ItemSystemPhase     ItemType = "system_phase"
	ItemSystemResult    ItemType = "system_result"
	ItemHumanDecision   ItemType = "human_decision"
	ItemResetMarker     ItemType = "reset_marker"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	switch t {
	case ItemCustomerMessage, ItemAgentMessage, ItemSystemPhase, ItemSystemResult, ItemHumanDecision, ItemResetMarker:
		return true
	}
	return false
}

// ConversationItem is one entry in an investigation's narrative log.
type ConversationItem struct {
	ID              int64     `db:"id" json:"id"`
	InvestigationID int64     `db:"investigation_id" json:"investigation_id"`
	RunNumber       int       `db:"run_number" json:"run_number"`
	Type            ItemType  `db:"type" json:"type"`
	Phase           *string   `db:"phase" json:"phase"`
	ActorName       *string   `db:"actor_name" json:"actor_name"`
	ActorRole       *string   `db:"actor_role" json:"actor_role"`
	Content         string    `db:"content" json:"content"`
	ContentPreview  string    `db:"content_preview" json:"content_preview"`
	Metadata        Metadata  `db:"metadata" json:"metadata"`
	VersionID       *int64    `db:"version_id" json:"version_id"`
	IsCollapsed     bool      `db:"is_collapsed" json:"is_collapsed"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Source is a provenance citation attached to an item.
type Source struct {
	Type  string  `json:"type"`
	ID    string  `json:"id"`
	Label string  `json:"label"`
	URL   *string `json:"url,omitempty"`
	Path  string  `json:"path,omitempty"`
}

// ItemMetadata is implemented by the per-type metadata payloads.
type ItemMetadata interface {
	ItemType() ItemType
}

// CustomerMessageMeta annotates customer messages.
type CustomerMessageMeta struct {
	Source         string   `json:"source,omitempty"`
	TicketID       *int64   `json:"ticket_id,omitempty"`
	SequenceNumber *int     `json:"sequence_number,omitempty"`
	NoNewInfo      bool     `json:"no_new_info,omitempty"`
	Sources        []Source `json:"sources,omitempty"`
}

func (CustomerMessageMeta) ItemType() ItemType { return ItemCustomerMessage }

// AgentMessageMeta annotates support-side thread messages.
type AgentMessageMeta struct {
	Source         string `json:"source,omitempty"`
	SequenceNumber *int   `json:"sequence_number,omitempty"`
}

func (AgentMessageMeta) ItemType() ItemType { return ItemAgentMessage }

// SystemPhaseMeta annotates phase lifecycle events.
type SystemPhaseMeta struct {
	Phase  Phase      `json:"phase,omitempty"`
	TaskID string     `json:"task_id,omitempty"`
	Status TaskStatus `json:"status,omitempty"`
}

func (SystemPhaseMeta) ItemType() ItemType { return ItemSystemPhase }

// SystemResultMeta annotates phase outputs.
type SystemResultMeta struct {
	File           string   `json:"file,omitempty"`
	DocType        string   `json:"doc_type,omitempty"`
	FindingsLength *int     `json:"findings_length,omitempty"`
	Classification string   `json:"classification,omitempty"`
	ProductArea    string   `json:"product_area,omitempty"`
	ConnectorName  *string  `json:"connector_name,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	Error          string   `json:"error,omitempty"`
	ErrorType      string   `json:"error_type,omitempty"`
	Sources        []Source `json:"sources,omitempty"`
}

func (SystemResultMeta) ItemType() ItemType { return ItemSystemResult }

// HumanDecisionMeta records an operator checkpoint action.
type HumanDecisionMeta struct {
	Checkpoint Checkpoint `json:"checkpoint"`
	Action     string     `json:"action"`
	Feedback   *string    `json:"feedback"`
}

func (HumanDecisionMeta) ItemType() ItemType { return ItemHumanDecision }

// ResetMarkerMeta describes a hard reset, rollback or re-focus. Hard resets
// use the snake_case keys, restores the camelCase ones.
type ResetMarkerMeta struct {
	Trigger             string      `json:"trigger,omitempty"`
	PreviousRun         int         `json:"previous_run,omitempty"`
	NewRun              int         `json:"new_run,omitempty"`
	Mode                RestoreMode `json:"mode,omitempty"`
	TargetVersionID     *int64      `json:"targetVersionId,omitempty"`
	TargetVersionNumber *int        `json:"targetVersionNumber,omitempty"`
}

func (ResetMarkerMeta) ItemType() ItemType { return ItemResetMarker }

// NewItemMetadata returns an empty payload for the given item type.
func NewItemMetadata(t ItemType) (ItemMetadata, error) {
	switch t {
	case ItemCustomerMessage:
		return &CustomerMessageMeta{}, nil
	case ItemAgentMessage:
		return &AgentMessageMeta{}, nil
	case ItemSystemPhase:
		return &SystemPhaseMeta{}, nil
	case ItemSystemResult:
		return &SystemResultMeta{}, nil
	case ItemHumanDecision:
		return &HumanDecisionMeta{}, nil
	case ItemResetMarker:
		return &ResetMarkerMeta{}, nil
	}
	return nil, fmt.Errorf("unknown conversation item type %q", t)
}

// Metadata holds a typed payload and round-trips through SQL and JSON as a
// plain JSON object. Values loaded from storage stay raw until Bind is called
// with the owning item's type.
type Metadata struct {
	value ItemMetadata
	raw   json.RawMessage
}

// NewMetadata wraps a typed payload.
func NewMetadata(v ItemMetadata) Metadata { return Metadata{value: v} }

// Get returns the typed payload, or nil if unbound or empty.
func (m Metadata) Get() ItemMetadata { return m.value }

// IsZero reports whether no metadata is present.
func (m Metadata) IsZero() bool {
	return m.value == nil && (len(m.raw) == 0 || bytes.Equal(m.raw, []byte("null")))
}

// Bind decodes the raw payload using the schema for t.
func (m *Metadata) Bind(t ItemType) error {
	if m.value != nil {
		if m.value.ItemType() != t {
			return fmt.Errorf("metadata for %s attached to %s item", m.value.ItemType(), t)
		}
		return nil
	}
	if m.IsZero() {
		return nil
	}
	target, err := NewItemMetadata(t)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(m.raw, target); err != nil {
		return fmt.Errorf("decode %s metadata: %w", t, err)
	}
	m.value = target
	return nil
}

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m.value != nil {
		data, err := json.Marshal(m.value)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	if m.IsZero() {
		return nil, nil
	}
	return string(m.raw), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src interface{}) error {
	m.value = nil
	switch v := src.(type) {
	case nil:
		m.raw = nil
	case string:
		m.raw = json.RawMessage(v)
	case []byte:
		m.raw = append(json.RawMessage(nil), v...)
	default:
		return fmt.Errorf("unsupported metadata column type %T", src)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m.value != nil {
		return json.Marshal(m.value)
	}
	if m.IsZero() {
		return []byte("null"), nil
	}
	return m.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	m.value = nil
	m.raw = append(json.RawMessage(nil), data...)
	return nil
}

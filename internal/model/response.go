// File path: internal/model/response.go
package model

import "time"

// TicketResponse is one parsed message from the external ticket thread.
type TicketResponse struct {
	ID                  int64      `db:"id" json:"id"`
	InvestigationID     int64      `db:"investigation_id" json:"investigation_id"`
	PylonMessageID      *string    `db:"pylon_message_id" json:"pylon_message_id"`
	SequenceNumber      int        `db:"sequence_number" json:"sequence_number"`
	ActorRole           string     `db:"actor_role" json:"actor_role"`
	ActorName           *string    `db:"actor_name" json:"actor_name"`
	Content             string     `db:"content" json:"content"`
	CreatedAt           *time.Time `db:"created_at" json:"created_at"`
	FetchedAt           time.Time  `db:"fetched_at" json:"fetched_at"`
	TriggeredReanalysis bool       `db:"triggered_reanalysis" json:"triggered_reanalysis"`
}

// DebounceTimer is the persisted state of a pending debounce window.
type DebounceTimer struct {
	InvestigationID int64     `db:"investigation_id" json:"investigation_id"`
	PendingMessages int       `db:"pending_messages" json:"pending_messages"`
	StartedAt       time.Time `db:"started_at" json:"started_at"`
	DueAt           time.Time `db:"due_at" json:"due_at"`
}

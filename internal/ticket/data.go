// File path: internal/ticket/data.go
package ticket

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Data is the contents of ticket-data.json. Keys the service does not know
// about are preserved when the file is rewritten.
type Data struct {
	TicketID          json.Number `json:"ticket_id,omitempty"`
	PylonID           string      `json:"pylon_id,omitempty"`
	Title             string      `json:"title,omitempty"`
	CustomerName      string      `json:"customer_name,omitempty"`
	AccountID         string      `json:"account_id,omitempty"`
	Link              string      `json:"pylon_link,omitempty"`
	Source            string      `json:"source,omitempty"`
	State             string      `json:"state,omitempty"`
	CreatedAt         string      `json:"created_at,omitempty"`
	Body              string      `json:"body,omitempty"`
	Description       string      `json:"description,omitempty"`
	Tags              []string    `json:"tags,omitempty"`
	FetchedAt         string      `json:"fetched_at,omitempty"`
	RequestType       string      `json:"request_type,omitempty"`
	ProductArea       string      `json:"product_area,omitempty"`
	Classification    string      `json:"classification,omitempty"`
	ConnectorName     *string     `json:"connector_name,omitempty"`
	Priority          string      `json:"priority,omitempty"`
	SuggestedPriority string      `json:"suggested_priority,omitempty"`

	extra map[string]json.RawMessage
}

type dataAlias Data

var knownKeys = []string{
	"ticket_id", "pylon_id", "title", "customer_name", "account_id", "pylon_link",
	"source", "state", "created_at", "body", "description", "tags", "fetched_at",
	"request_type", "product_area", "classification", "connector_name", "priority",
	"suggested_priority",
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Data) UnmarshalJSON(raw []byte) error {
	var alias dataAlias
	if err := json.Unmarshal(raw, &alias); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return err
	}
	for _, k := range knownKeys {
		delete(all, k)
	}
	*d = Data(alias)
	if len(all) > 0 {
		d.extra = all
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Data) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(dataAlias(d))
	if err != nil {
		return nil, err
	}
	if len(d.extra) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(d.extra)+len(knownKeys))
	for k, v := range d.extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Parse decodes ticket-data.json contents.
func Parse(raw []byte) (*Data, error) {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse ticket data: %w", err)
	}
	return &d, nil
}

// BodyText returns the body, falling back to the description.
func (d *Data) BodyText() string {
	if d == nil {
		return ""
	}
	if d.Body != "" {
		return d.Body
	}
	return d.Description
}

// FullText is the title and body joined for keyword matching.
func (d *Data) FullText() string {
	if d == nil {
		return ""
	}
	return d.Title + " " + d.BodyText()
}

// DisplayTitle returns the title or a generic placeholder.
func (d *Data) DisplayTitle() string {
	if d == nil || strings.TrimSpace(d.Title) == "" {
		return "Support Request"
	}
	return d.Title
}

// Customer returns the customer name or fallback.
func (d *Data) Customer(fallback string) string {
	if d == nil || strings.TrimSpace(d.CustomerName) == "" {
		return fallback
	}
	return d.CustomerName
}

// File path: internal/workspace/files.go
package workspace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Files is the aggregated view of an investigation's outputs.
type Files struct {
	TicketData        json.RawMessage    `json:"ticketData"`
	Phase1Findings    *string            `json:"phase1Findings"`
	Summary           *string            `json:"summary"`
	CustomerResponse  *string            `json:"customerResponse"`
	LinearDraft       *string            `json:"linearDraft"`
	CheckpointActions []CheckpointAction `json:"checkpointActions"`
	AgentTranscript   *string            `json:"agentTranscript"`
	Metrics           json.RawMessage    `json:"metrics"`
}

// Files loads every known output. Missing or unparseable files are nil.
func (w *Workspace) Files(id int64) Files {
	return Files{
		TicketData:        w.rawJSON(id, FileTicketData),
		Phase1Findings:    w.ReadText(id, FilePhase1Findings),
		Summary:           w.ReadText(id, FileSummary),
		CustomerResponse:  w.ReadText(id, FileCustomerResponse),
		LinearDraft:       w.ReadText(id, FileLinearDraft),
		CheckpointActions: w.CheckpointActions(id),
		AgentTranscript:   w.ReadText(id, FileAgentTranscript),
		Metrics:           w.rawJSON(id, FileMetrics),
	}
}

func (w *Workspace) rawJSON(id int64, name string) json.RawMessage {
	data, err := w.ReadFile(id, name)
	if err != nil || !json.Valid(data) {
		return json.RawMessage("null")
	}
	return json.RawMessage(data)
}

// Documents that may be rendered.
var documentNames = map[string]string{
	"findings":          FilePhase1Findings,
	"summary":           FileSummary,
	"customer-response": FileCustomerResponse,
	"linear-draft":      FileLinearDraft,
}

// ErrUnknownDocument is returned for names outside the document set.
var ErrUnknownDocument = errors.New("workspace: unknown document")

// DocumentFile resolves a document name ("summary" or "summary.md").
func DocumentFile(name string) (string, error) {
	if file, ok := documentNames[name]; ok {
		return file, nil
	}
	for _, file := range documentNames {
		if file == name {
			return file, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDocument, name)
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// RenderHTML converts markdown to HTML. Raw HTML in the source is escaped.
func RenderHTML(source []byte) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert(source, &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

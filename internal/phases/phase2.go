// File path: internal/phases/phase2.go
package phases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jacobaguon-blip/support-triage/internal/agent"
	"github.com/jacobaguon-blip/support-triage/internal/conversation"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/workspace"
)

type document struct {
	file    string
	docType string
	preview string
	sources []model.Source
}

var (
	ticketSource   = model.Source{Type: "file", ID: workspace.FileTicketData, Label: "Pylon ticket data"}
	findingsSource = model.Source{Type: "file", ID: workspace.FilePhase1Findings, Label: "Phase 1 findings"}
	summarySource  = model.Source{Type: "file", ID: workspace.FileSummary, Label: "Investigation summary"}
)

var synthesisDocuments = []document{
	{workspace.FileSummary, "summary", "Investigation summary generated", []model.Source{ticketSource, findingsSource}},
	{workspace.FileCustomerResponse, "customer_response", "Customer response drafted", []model.Source{ticketSource, summarySource}},
	{workspace.FileLinearDraft, "linear_draft", "Linear issue draft created", []model.Source{ticketSource, findingsSource, summarySource}},
}

func (r *Runner) phase2(ctx context.Context, task model.Task, _ *model.Investigation) (*result, error) {
	id := task.InvestigationID
	ws := r.cfg.Workspace
	data := r.loadTicket(id, "phase2")
	if data == nil {
		return nil, errors.New("ticket-data.json not found")
	}
	if r.cfg.Agent == nil {
		return nil, errors.New("no agent runner configured")
	}

	findings := ""
	if text := ws.ReadText(id, workspace.FilePhase1Findings); text != nil {
		findings = *text
		ws.LogActivity(id, "phase2", "info", fmt.Sprintf("Loaded phase1-findings.md (%d chars)", len(findings)))
	} else {
		ws.LogActivity(id, "phase2", "info", "No phase 1 findings available, synthesizing from ticket data only")
	}

	isBug := model.Classification(data.Classification).IsBug()
	docs := []string{workspace.FileSummary, workspace.FileCustomerResponse}
	if isBug {
		docs = append(docs, workspace.FileLinearDraft)
	}
	ws.LogActivity(id, "phase2", "info", fmt.Sprintf("Generating %d documents: %s", len(docs), strings.Join(docs, ", ")))

	prompt := synthesisPrompt(id, data, findings, isBug)
	ws.LogActivity(id, "phase2", "command", "Running agent for document synthesis...")
	started := r.cfg.Clock.Now()
	output, err := r.cfg.Agent.Run(ctx, agent.Request{Prompt: prompt, Dir: ws.Dir(id), Phase: "phase2", InvestigationID: id})
	if err != nil {
		return nil, err
	}
	r.transcript(id, model.Phase2, prompt, output, started)

	sections := agent.SplitDocuments(output)
	res := newResult()
	res.files[workspace.FileTriagePrompt] = []byte(prompt)
	res.docs = len(sections)
	for _, doc := range synthesisDocuments {
		content, ok := sections[doc.file]
		if !ok {
			continue
		}
		res.files[doc.file] = []byte(content)
		res.activity = append(res.activity, fmt.Sprintf("Wrote %s (%d chars)", doc.file, len(content)))
		res.items = append(res.items, conversation.Entry{
			Type:      model.ItemSystemResult,
			Phase:     "phase2",
			ActorName: "System",
			ActorRole: "system",
			Content:   content,
			Preview:   doc.preview,
			Metadata:  model.SystemResultMeta{File: doc.file, DocType: doc.docType, Sources: doc.sources},
		})
	}
	return res, nil
}

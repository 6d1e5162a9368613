// File path: internal/phases/phase1.go
package phases

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jacobaguon-blip/support-triage/internal/agent"
	"github.com/jacobaguon-blip/support-triage/internal/conversation"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/workspace"
)

const maxLocalContextBytes = 50000

// localContext concatenates the small files of the investigation directory.
func (r *Runner) localContext(id int64) (string, []model.Source) {
	ws := r.cfg.Workspace
	files, err := ws.List(id)
	if err != nil {
		ws.LogActivity(id, "phase1", "warn", fmt.Sprintf("Could not read investigation folder: %v", err))
		return "", nil
	}
	var (
		b       strings.Builder
		sources []model.Source
	)
	for _, f := range files {
		if f.IsDir || f.Size > maxLocalContextBytes {
			continue
		}
		switch f.Name {
		case workspace.FileActivityLog, workspace.FileMetrics, workspace.FileAgentTranscript, workspace.FileTriagePrompt:
			continue
		}
		content, err := ws.ReadFile(id, f.Name)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", f.Name, content)
		sources = append(sources, model.Source{
			Type:  "file",
			ID:    f.Name,
			Label: "Investigation file: " + f.Name,
			Path:  filepath.Join(ws.Dir(id), f.Name),
		})
	}
	return b.String(), sources
}

func (r *Runner) phase1(ctx context.Context, task model.Task, _ *model.Investigation) (*result, error) {
	id := task.InvestigationID
	ws := r.cfg.Workspace
	data := r.loadTicket(id, "phase1")
	if data == nil {
		return nil, errors.New("ticket-data.json not found")
	}
	if r.cfg.Agent == nil {
		return nil, errors.New("no agent runner configured")
	}
	ws.LogActivity(id, "phase1", "info", fmt.Sprintf("Loaded ticket: %q (%s)", data.Title, data.Classification))

	local, localSources := r.localContext(id)
	if local != "" {
		ws.LogActivity(id, "phase1", "info", fmt.Sprintf("Loaded %d files from investigation folder as local context", len(localSources)))
	}
	ws.LogActivity(id, "phase1", "tool_call", fmt.Sprintf("Searching Linear for issues related to: %q", data.Title))
	ws.LogActivity(id, "phase1", "tool_call", fmt.Sprintf("Searching Slack for discussions about %s", data.CustomerName))

	prompt := researchPrompt(id, data, local)
	ws.LogActivity(id, "phase1", "command", "Running agent with Linear + Slack tools...")
	started := r.cfg.Clock.Now()
	findings, err := r.cfg.Agent.Run(ctx, agent.Request{Prompt: prompt, Dir: ws.Dir(id), Phase: "phase1", InvestigationID: id})
	if err != nil {
		return nil, err
	}
	r.transcript(id, model.Phase1, prompt, findings, started)

	sources := append(agent.ExtractCitations(findings), localSources...)
	length := len(findings)
	res := newResult()
	res.files[workspace.FilePhase1Findings] = []byte(findings)
	res.files[workspace.FileTriagePrompt] = []byte(prompt)
	res.activity = []string{fmt.Sprintf("Context gathered, wrote phase1-findings.md (%d chars)", length)}
	res.items = []conversation.Entry{{
		Type:      model.ItemSystemResult,
		Phase:     "phase1",
		ActorName: "System",
		ActorRole: "system",
		Content:   findings,
		Preview:   fmt.Sprintf("Context gathered, %d chars of findings", length),
		Metadata: model.SystemResultMeta{
			File:           workspace.FilePhase1Findings,
			FindingsLength: &length,
			Sources:        sources,
		},
	}}
	return res, nil
}

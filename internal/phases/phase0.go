// File path: internal/phases/phase0.go
package phases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/jacobaguon-blip/support-triage/internal/agent"
	"github.com/jacobaguon-blip/support-triage/internal/classify"
	"github.com/jacobaguon-blip/support-triage/internal/conversation"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/ticket"
	"github.com/jacobaguon-blip/support-triage/internal/workspace"
)

// loadTicket reads ticket-data.json. A missing or unparseable file yields nil.
func (r *Runner) loadTicket(id int64, phase string) *ticket.Data {
	raw, err := r.cfg.Workspace.ReadFile(id, workspace.FileTicketData)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.cfg.Workspace.LogActivity(id, phase, "error", fmt.Sprintf("Failed to read ticket-data.json: %v", err))
		}
		return nil
	}
	data, err := ticket.Parse(raw)
	if err != nil {
		r.cfg.Workspace.LogActivity(id, phase, "error", fmt.Sprintf("Failed to parse ticket-data.json: %v", err))
		return nil
	}
	return data
}

func (r *Runner) phase0(ctx context.Context, task model.Task, _ *model.Investigation) (*result, error) {
	id := task.InvestigationID
	ws := r.cfg.Workspace
	data := r.loadTicket(id, "phase0")
	if data != nil {
		ws.LogActivity(id, "phase0", "info", "Loaded existing ticket-data.json from disk")
	} else if r.cfg.Source != nil {
		ws.LogActivity(id, "phase0", "tool_call", fmt.Sprintf("pylon_get_issue(id: %q)", strconv.FormatInt(id, 10)))
		ws.LogActivity(id, "phase0", "info", "Fetching ticket data from the ticket source...")
		fetched, err := r.cfg.Source.Fetch(ctx, id)
		switch {
		case err == nil:
			data = fetched
			ws.LogActivity(id, "phase0", "result", fmt.Sprintf("Ticket fetched: %q, %s", data.Title, data.CustomerName))
		case errors.Is(err, agent.ErrAuthRequired), errors.Is(err, context.Canceled):
			return nil, err
		default:
			ws.LogActivity(id, "phase0", "error", fmt.Sprintf("Ticket fetch failed: %v", err))
		}
	}
	if data == nil {
		return nil, errors.New("no ticket data available: place ticket-data.json in the investigation folder or configure a ticket source")
	}

	ws.LogActivity(id, "phase0", "info", "Running classification engine...")
	fullText := data.FullText()
	class := model.Classification(data.Classification)
	if class == "" {
		class = classify.Classification(data.RequestType, data.ProductArea, fullText)
	}
	connector := data.ConnectorName
	if connector == nil || *connector == "" {
		connector = classify.ConnectorName(fullText)
	}
	area := data.ProductArea
	if area == "" {
		area = classify.ProductArea(class, fullText, connector)
	}
	priority := data.Priority
	if priority == "" {
		priority = classify.Priority(class, fullText, data.Tags)
	}
	suggested := data.SuggestedPriority
	if suggested == "" {
		suggested = priority
	}
	customer := data.Customer("Unknown")

	data.Classification = string(class)
	data.ConnectorName = connector
	data.ProductArea = area
	data.Priority = priority
	data.SuggestedPriority = suggested
	data.CustomerName = customer
	enriched, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode ticket data: %w", err)
	}

	res := newResult()
	res.files[workspace.FileTicketData] = enriched
	res.apply = func(inv *model.Investigation) {
		inv.CustomerName = &customer
		inv.Classification = &class
		inv.ConnectorName = connector
		inv.ProductArea = &area
		inv.Priority = &priority
		inv.SuggestedPriority = &suggested
	}

	priorityLine := "Priority: " + priority
	if suggested != priority {
		priorityLine += fmt.Sprintf(" (suggested: %s)", suggested)
	}
	res.activity = []string{
		"Customer: " + customer,
		"Classification: " + class.Label(),
		"Product Area: " + area,
	}
	if connector != nil {
		res.activity = append(res.activity, "Connector: "+*connector)
	}
	res.activity = append(res.activity, priorityLine)

	pylon := model.Source{Type: "pylon", ID: strconv.FormatInt(id, 10), Label: fmt.Sprintf("Pylon #%d", id), URL: model.NullIfEmpty(data.Link)}
	ticketID := id
	summary := fmt.Sprintf("## Classification Complete\n\n- **Customer:** %s\n- **Classification:** %s\n- **Product Area:** %s\n", customer, class.Label(), area)
	if connector != nil {
		summary += fmt.Sprintf("- **Connector:** %s\n", *connector)
	}
	summary += "- **Priority:** " + priority
	res.items = []conversation.Entry{
		{
			Type:      model.ItemCustomerMessage,
			Phase:     "phase0",
			ActorName: customer,
			ActorRole: "customer",
			Content:   fmt.Sprintf("**%s**\n\n%s", data.DisplayTitle(), data.BodyText()),
			Preview:   data.DisplayTitle(),
			Metadata:  model.CustomerMessageMeta{Source: "pylon", TicketID: &ticketID, Sources: []model.Source{pylon}},
		},
		{
			Type:      model.ItemSystemResult,
			Phase:     "phase0",
			ActorName: "System",
			ActorRole: "system",
			Content:   summary,
			Preview:   fmt.Sprintf("Classified as %s, %s", class.Label(), area),
			Metadata: model.SystemResultMeta{
				Classification: string(class),
				ProductArea:    area,
				ConnectorName:  connector,
				Priority:       priority,
				Sources: []model.Source{
					pylon,
					{Type: "classifier", ID: "local", Label: "Built-in classifier engine"},
				},
			},
		},
	}
	return res, nil
}

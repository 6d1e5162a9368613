// File path: internal/phases/prompts.go
package phases

import (
	"fmt"
	"strings"

	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/ticket"
)

func connectorLine(d *ticket.Data) string {
	if name := model.Deref(d.ConnectorName); name != "" {
		return "Connector: " + name
	}
	return ""
}

func researchPrompt(id int64, d *ticket.Data, local string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a ConductorOne support investigator. Research this ticket using available MCP tools.

TICKET #%d
Customer: %s
Title: %s
Classification: %s
Product Area: %s
%s
Body: %s

`, id, d.CustomerName, d.Title, d.Classification, d.ProductArea, connectorLine(d), d.BodyText())
	if local != "" {
		fmt.Fprintf(&b, "LOCAL INVESTIGATION FILES (from working folder):\n%s\n\n", local)
	}
	b.WriteString(`RESEARCH INSTRUCTIONS: follow these steps in order.

Step 1: Search Pylon for related issues
- Use pylon_search_issues to find similar tickets. Try filtering by tags or account_id if available.
- If a filter returns an error, try a different filter or use pylon_list_issues with a recent time range.
- Limit: max 3 tool calls for Pylon.

Step 2: Search Slack for context
- Use slack_list_channels (limit 5) to find relevant channels.
- Then use slack_get_channel_history on at most 2 promising channels (limit 10 messages each).
- Do NOT iterate through all channels. Pick the most relevant ones by name.
- Limit: max 4 tool calls for Slack.

Step 3: Summarize local investigation files
- Review the local files provided above (if any) and summarize key findings.

CONSTRAINTS:
- Make at most 10 MCP tool calls total. Do not loop or retry failed calls.
- If a tool is unavailable or returns an error, note it and move on immediately.
- Do not search for messages by iterating through every channel.
- Finish within a reasonable time, prefer breadth over depth.

CITATION FORMAT: For EVERY finding, cite the source:
  [Source: Pylon #1234] or [Source: Slack #channel-name] or [Source: local/filename.ext]

Write structured markdown findings:
## Pylon Issues Found
(List related tickets with ID, title, status, relevance. Cite [Source: Pylon #ID] for each.)

## Slack Discussions
(Summarize relevant threads from at most 2 channels. Cite [Source: Slack #channel-name] for each.)

## Local Investigation Context
(Summarize what was found in the working folder files. Cite [Source: local/filename] for each.)

## Related Context
(Cross-reference across all sources.)

## Gaps / Unknowns
(What is still missing? What tools were unavailable?)`)
	return b.String()
}

func synthesisPrompt(id int64, d *ticket.Data, findings string, isBug bool) string {
	if findings == "" {
		findings = "(No prior findings)"
	}
	linear := ""
	if isBug {
		linear = "=== linear-draft.md ===\nLinear issue draft with title, team, priority, labels, description, steps to reproduce."
	}
	return fmt.Sprintf(`Generate investigation documents for ConductorOne support ticket #%[1]d.

TICKET:
Customer: %[2]s | Title: %[3]s
Classification: %[4]s | Area: %[5]s
%[6]s
Priority: %[7]s | Body: %[8]s

FINDINGS:
%[9]s

IMPORTANT: In all generated documents, cite sources inline using [Source: ...] format.
For claims from the ticket, use [Source: Pylon #%[1]d].
For claims from findings, cite the original source (Linear issue IDs, Slack channels).
For analysis/recommendations, note [Source: TSE analysis].
Every factual statement must have an attribution.

Generate each document using === filename === delimiters:

=== summary.md ===
Full investigation summary following ConductorOne's template.

=== customer-response.md ===
Customer-facing response, friendly-professional tone, light formatting.

%[10]s

Write complete documents.`,
		id, d.CustomerName, d.Title, d.Classification, d.ProductArea, connectorLine(d), d.Priority, d.BodyText(), findings, linear)
}

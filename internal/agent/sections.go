// File path: internal/agent/sections.go
package agent

import (
	"regexp"
	"strings"

	"github.com/jacobaguon-blip/support-triage/internal/model"
)

var sectionDelimiter = regexp.MustCompile(`===\s*([\w.-]+)\s*===`)

// SplitDocuments splits agent output on "=== name ===" lines. Text before the
// first delimiter is dropped as are sections with empty bodies. A repeated
// name keeps the last body.
func SplitDocuments(output string) map[string]string {
	sections := make(map[string]string)
	matches := sectionDelimiter.FindAllStringSubmatchIndex(output, -1)
	for i, m := range matches {
		name := strings.TrimSpace(output[m[2]:m[3]])
		end := len(output)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(output[m[1]:end])
		if name != "" && body != "" {
			sections[name] = body
		}
	}
	return sections
}

var (
	linearCitation = regexp.MustCompile(`(?i)\[Source:\s*Linear\s+([A-Z]+-\d+)\]`)
	pylonCitation  = regexp.MustCompile(`(?i)\[Source:\s*Pylon\s+#?(\d+)\]`)
	slackCitation  = regexp.MustCompile(`(?i)\[Source:\s*Slack\s+#([^\],]+?)(?:,\s*[^\]]+)?\]`)
	localCitation  = regexp.MustCompile(`(?i)\[Source:\s*local/([^\]]+)\]`)
)

// ExtractCitations collects the distinct [Source: ...] references in text,
// grouped by kind in the order Linear, Pylon, Slack, local.
func ExtractCitations(text string) []model.Source {
	out := make([]model.Source, 0)
	seen := make(map[string]struct{})
	add := func(re *regexp.Regexp, kind string, label func(id string) string) {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			id := m[1]
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, model.Source{Type: kind, ID: id, Label: label(id)})
		}
	}
	add(linearCitation, "linear", func(id string) string { return "Linear " + id })
	add(pylonCitation, "pylon", func(id string) string { return "Pylon #" + id })
	add(slackCitation, "slack", func(id string) string { return "Slack #" + id })
	add(localCitation, "file", func(id string) string { return "Local: " + id })
	return out
}

// File path: internal/ticket/thread.go
package ticket

import (
	"html"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ParsedMessage is one message recovered from a ticket thread.
type ParsedMessage struct {
	ActorName string
	ActorRole string
	Content   string
	CreatedAt *time.Time
}

var (
	breakTags     = regexp.MustCompile(`(?i)<br\s*/?>|</?p[^>]*>|</?div[^>]*>|</?blockquote[^>]*>`)
	ruleTags      = regexp.MustCompile(`(?i)<hr\s*/?>`)
	anyTag        = regexp.MustCompile(`<[^>]+>`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
	separatorLine = regexp.MustCompile(`^(-{3,}|_{3,})$`)
	onWroteLine   = regexp.MustCompile(`(?i)^On\s+(.+),\s+(.+?)\s+wrote:$`)
	emailSuffix   = regexp.MustCompile(`\s*<[^>]*>$`)
)

var agentNamePatterns = []string{
	"support", "team", "tse", "technician", "engineer", "agent",
	"help", "customer service", "conductoronce", "pylon",
}

var dateLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, Jan 2, 2006 at 3:04 PM",
	"Mon, Jan 2, 2006 3:04 PM",
	"Monday, January 2, 2006 3:04 PM",
	"Monday, January 2, 2006 at 3:04 PM",
	"Jan 2, 2006 at 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"January 2, 2006 3:04 PM",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006 3:04 PM",
	"1/2/2006",
}

// ParseThread splits a ticket body (HTML or plain text) into messages. Reply
// headers ("On ... wrote:", "From:") start a new message; separator rules end
// one. Dated messages are put in chronological order; undated ones keep their
// position.
func ParseThread(body string) []ParsedMessage {
	if strings.TrimSpace(body) == "" {
		return []ParsedMessage{}
	}
	text := cleanHTML(body)
	chunks := splitChunks(text)
	out := make([]ParsedMessage, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, parseChunk(chunk))
	}
	sortDated(out)
	return out
}

func cleanHTML(s string) string {
	s = ruleTags.ReplaceAllString(s, "\n---\n")
	s = breakTags.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return blankRuns.ReplaceAllString(s, "\n\n")
}

func isHeaderStart(line string) bool {
	return strings.HasPrefix(line, "From:") || onWroteLine.MatchString(line)
}

func isHeaderField(line string) bool {
	for _, p := range []string{"Sent:", "To:", "Cc:", "Subject:", "Date:"} {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

func splitChunks(text string) [][]string {
	var (
		chunks   [][]string
		current  []string
		inHeader bool
	)
	flush := func() {
		if hasContent(current) {
			chunks = append(chunks, current)
		}
		current = nil
	}
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case separatorLine.MatchString(line):
			flush()
			inHeader = false
		case isHeaderStart(line):
			flush()
			current = append(current, line)
			inHeader = true
		case isHeaderField(line):
			if !inHeader {
				flush()
			}
			current = append(current, line)
			inHeader = true
		case line == "":
			current = append(current, line)
		default:
			current = append(current, line)
			inHeader = false
		}
	}
	flush()
	return chunks
}

func hasContent(lines []string) bool {
	for _, l := range lines {
		if l != "" {
			return true
		}
	}
	return false
}

func parseChunk(lines []string) ParsedMessage {
	msg := ParsedMessage{ActorRole: "customer"}
	start := 0
header:
	for i := 0; i < len(lines) && i < 5; i++ {
		line := lines[i]
		if line == "" {
			continue
		}
		if m := onWroteLine.FindStringSubmatch(line); m != nil {
			msg.CreatedAt = parseDate(m[1])
			msg.ActorName = strings.TrimSpace(m[2])
			start = i + 1
			continue
		}
		switch {
		case strings.HasPrefix(line, "From:"):
			msg.ActorName = emailSuffix.ReplaceAllString(strings.TrimSpace(strings.TrimPrefix(line, "From:")), "")
			start = i + 1
		case strings.HasPrefix(line, "Sent:"), strings.HasPrefix(line, "Date:"):
			if msg.CreatedAt == nil {
				msg.CreatedAt = parseDate(strings.TrimSpace(line[strings.Index(line, ":")+1:]))
			}
			start = i + 1
		case isHeaderField(line):
			start = i + 1
		default:
			break header
		}
	}
	msg.Content = strings.TrimSpace(strings.Join(lines[start:], "\n"))
	if msg.Content == "" {
		msg.Content = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	if msg.ActorName != "" {
		lower := strings.ToLower(msg.ActorName)
		for _, p := range agentNamePatterns {
			if strings.Contains(lower, p) {
				msg.ActorRole = "agent"
				break
			}
		}
	}
	return msg
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func sortDated(msgs []ParsedMessage) {
	var (
		slots []int
		dated []ParsedMessage
	)
	for i, m := range msgs {
		if m.CreatedAt != nil {
			slots = append(slots, i)
			dated = append(dated, m)
		}
	}
	sort.SliceStable(dated, func(a, b int) bool { return dated[a].CreatedAt.Before(*dated[b].CreatedAt) })
	for i, slot := range slots {
		msgs[slot] = dated[i]
	}
}

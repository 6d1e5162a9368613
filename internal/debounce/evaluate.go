// File path: internal/debounce/evaluate.go
package debounce

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// OverlapThreshold is the share of known tokens at or above which a message
// is considered a repeat of existing context.
const OverlapThreshold = 0.7

const minContentLength = 10

// Decision is the verdict on a batch of customer messages.
type Decision struct {
	IsNew   bool    `json:"isNew"`
	Reason  string  `json:"reason"`
	Overlap float64 `json:"overlap"`
}

var stopwords = toSet(
	"the", "a", "an", "is", "are", "was", "were", "be", "been", "being",
	"have", "has", "had", "do", "does", "did", "will", "would", "could",
	"should", "may", "might", "can", "shall", "to", "of", "in", "for",
	"on", "with", "at", "by", "from", "as", "into", "through", "during",
	"before", "after", "above", "below", "and", "but", "or", "not", "no",
	"if", "then", "than", "too", "very", "just", "so", "it", "its",
	"this", "that", "these", "those", "i", "me", "my", "we", "our",
	"you", "your", "he", "she", "they", "them", "their", "what", "which",
	"who", "whom", "when", "where", "how", "all", "each", "every", "both",
	"few", "more", "most", "other", "some", "such", "only", "own", "same",
	"also", "about", "up", "out", "off", "over", "under", "again", "here",
	"there", "once", "hi", "hello", "hey", "thanks", "thank",
)

var indicatorPatterns = compileAll(
	`error\s*(log|message|code|trace)`,
	`stack\s*trace`,
	`reproduce|reproduction|repro\s*steps`,
	`screenshot|screen\s*shot|attached`,
	`log\s*(file|output|dump)`,
	`version\s*\d`,
	`environment|env\s*:`,
	`workaround|work\s*around`,
	`actually|correction|update:`,
	`additional\s*(info|context|detail)`,
	`forgot\s+to\s+mention`,
	`also\s+(wanted|need|should)`,
)

var noisePatterns = compileAll(
	`^(thanks|thank\s+you|ty|thx)\s*[.!]?\s*$`,
	`^(any\s+update|update\s*\?|bump|following\s+up)\b`,
	`^(ok|okay|sure|got\s+it|sounds\s+good)\b`,
	`^(hi|hello|hey)\s*[,.]?\s*$`,
)

var nonToken = regexp.MustCompile(`[^a-z0-9\s_-]`)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// Tokenize lowercases text, replaces everything outside [a-z0-9_-] and
// whitespace with spaces and drops stopwords and tokens of two characters or
// fewer.
func Tokenize(text string) []string {
	cleaned := nonToken.ReplaceAllString(strings.ToLower(text), " ")
	fields := strings.Fields(cleaned)
	out := fields[:0]
	for _, f := range fields {
		if len(f) <= 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Evaluate decides whether newContent carries information missing from
// existing. Checks run in order: length, token content, acknowledgement
// noise, technical indicators, then token overlap over unique tokens.
func Evaluate(newContent, existing string) Decision {
	trimmed := strings.TrimSpace(newContent)
	if len([]rune(trimmed)) < minContentLength {
		return Decision{Reason: "Message too short to contain new information"}
	}
	tokens := unique(Tokenize(newContent))
	if len(tokens) == 0 {
		return Decision{Reason: "No meaningful content in new messages"}
	}
	if matchesAny(noisePatterns, trimmed) {
		return Decision{Reason: "Message appears to be acknowledgment/follow-up only"}
	}
	if matchesAny(indicatorPatterns, newContent) {
		return Decision{IsNew: true, Reason: "Customer provided new technical details (error logs, reproduction steps, etc.)"}
	}

	known := toSet(Tokenize(existing)...)
	overlapping := 0
	for _, t := range tokens {
		if _, ok := known[t]; ok {
			overlapping++
		}
	}
	ratio := float64(overlapping) / float64(len(tokens))
	if ratio < OverlapThreshold {
		return Decision{
			IsNew:   true,
			Overlap: ratio,
			Reason:  fmt.Sprintf("Customer provided substantially new content (%d%% new tokens)", int(math.Round((1-ratio)*100))),
		}
	}
	return Decision{
		Overlap: ratio,
		Reason:  fmt.Sprintf("Message content overlaps %d%% with existing investigation", int(math.Round(ratio*100))),
	}
}

func unique(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

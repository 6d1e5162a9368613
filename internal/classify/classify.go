// File path: internal/classify/classify.go
package classify

import (
	"strings"

	"github.com/jacobaguon-blip/support-triage/internal/model"
)

// KnownConnectors lists connector names recognised in ticket text. Order
// matters: the first match wins.
var KnownConnectors = []string{
	"okta", "azure", "azure-ad", "salesforce", "google-workspace", "aws",
	"jira", "github", "slack", "servicenow", "zendesk", "crowdstrike",
	"duo", "jumpcloud", "bamboohr", "workday", "pagerduty", "datadog",
	"onelogin", "pingidentity", "cyberark", "google workspace",
}

var uiPlatformKeywords = []string{
	"dashboard", "workflow", "permissions", "policy", "blank", "display",
	"page", "screen", "ui", "interface", "review", "portal",
}

var featureRequestKeywords = []string{
	"can we", "is it possible", "would like", "would love",
	"trying to setup", "trying to set up", "feature request",
	"ability to", "request a feature", "like to have", "like there to be",
}

var productBugAreas = []string{
	"platform", "ui", "access profile", "access request", "access review",
	"api", "terraform", "automation", "notification", "polic", "rbac", "thomas",
}

var skipRequestTypes = []string{"meeting scheduling", "account management", "product incident"}

var (
	p1Keywords = []string{"urgent", "critical", "down", "outage", "blocking"}
	p2Keywords = []string{"regression", "broken", "error", "failing", "crash"}
)

// Input is the subset of ticket fields the heuristics look at.
type Input struct {
	RequestType string
	ProductArea string
	Body        string
	Tags        []string
}

// Result is the outcome of classifying one ticket.
type Result struct {
	Classification    model.Classification
	ConnectorName     *string
	ProductArea       string
	SuggestedPriority string
}

// Ticket runs every heuristic over in.
func Ticket(in Input) Result {
	class := Classification(in.RequestType, in.ProductArea, in.Body)
	connector := ConnectorName(in.Body)
	return Result{
		Classification:    class,
		ConnectorName:     connector,
		ProductArea:       ProductArea(class, in.Body, connector),
		SuggestedPriority: Priority(class, in.Body, in.Tags),
	}
}

// Classification maps the ticket's request type and product area to a
// category, falling back to keyword matching on the body.
func Classification(requestType, productArea, body string) model.Classification {
	rt := strings.ToLower(requestType)
	pa := strings.ToLower(productArea)
	text := strings.ToLower(body)

	switch {
	case strings.Contains(rt, "product request"):
		return model.ClassFeatureRequest
	case strings.Contains(rt, "documentation"):
		return model.ClassDocumentation
	case strings.Contains(rt, "general question"):
		return model.ClassGeneralQuestion
	case containsAny(rt, skipRequestTypes):
		return model.ClassSkip
	}

	if strings.Contains(rt, "defect") || strings.Contains(rt, "troubleshooting") {
		if strings.Contains(pa, "connector") {
			return model.ClassConnectorBug
		}
		if containsAny(pa, productBugAreas) {
			return model.ClassProductBug
		}
	}

	switch {
	case containsAny(text, featureRequestKeywords):
		return model.ClassFeatureRequest
	case containsAny(text, KnownConnectors):
		return model.ClassConnectorBug
	}
	return model.ClassProductBug
}

// ConnectorName returns the first known connector mentioned in text.
func ConnectorName(text string) *string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	for _, c := range KnownConnectors {
		if strings.Contains(lower, c) {
			name := strings.ReplaceAll(c, "google workspace", "google-workspace")
			return &name
		}
	}
	return nil
}

// Priority suggests P1..P4 from urgency keywords in the body and tags.
func Priority(class model.Classification, body string, tags []string) string {
	text := strings.ToLower(body + " " + strings.Join(tags, " "))
	switch {
	case containsAny(text, p1Keywords):
		return "P1"
	case containsAny(text, p2Keywords):
		return "P2"
	case class == model.ClassFeatureRequest:
		return "P4"
	}
	return "P3"
}

// ProductArea infers the product area label.
func ProductArea(class model.Classification, body string, connector *string) string {
	if connector != nil {
		return "Connectors"
	}
	text := strings.ToLower(body)
	switch {
	case strings.Contains(text, "policy"):
		return "Policies"
	case containsAny(text, []string{"access request", "request flow"}):
		return "Access Requests"
	case strings.Contains(text, "access review"):
		return "Access Reviews"
	case strings.Contains(text, "access profile"):
		return "Access Profiles"
	case containsAny(text, []string{"automation", "workflow"}):
		return "Automations"
	case strings.Contains(text, "notification"):
		return "Notifications"
	case containsAny(text, []string{"api", "terraform", "sdk"}):
		return "API / Terraform"
	case containsAny(text, []string{"rbac", "role"}):
		return "RBAC"
	case containsAny(text, []string{"thomas", "ai agent"}):
		return "Thomas - AI Agent"
	case class == model.ClassProductBug:
		return "Platform / UI"
	}
	return "Other"
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

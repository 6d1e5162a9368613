// File path: internal/ticket/source.go
package ticket

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/agent"
	"github.com/jacobaguon-blip/support-triage/internal/common"
)

// ErrUnavailable is returned when a source has no data for the ticket.
var ErrUnavailable = errors.New("ticket: data unavailable")

// Source fetches ticket data from the external ticketing system.
type Source interface {
	Fetch(ctx context.Context, ticketID int64) (*Data, error)
}

// DirSource reads <dir>/<ticketID>.json exports.
type DirSource struct {
	Dir string
}

// Fetch implements Source.
func (s DirSource) Fetch(_ context.Context, ticketID int64) (*Data, error) {
	if s.Dir == "" {
		return nil, ErrUnavailable
	}
	raw, err := os.ReadFile(filepath.Join(s.Dir, strconv.FormatInt(ticketID, 10)+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("ticket: read export: %w", err)
	}
	return Parse(raw)
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// AgentSource asks the agent to pull the ticket through its ticketing tools
// and reply with a JSON object.
type AgentSource struct {
	Runner agent.Runner
	// WorkDir is where the agent runs; it should hold the agent's tool config.
	WorkDir string
	Clock   func() time.Time
}

func (s AgentSource) prompt(ticketID int64) string {
	now := time.Now
	if s.Clock != nil {
		now = s.Clock
	}
	return fmt.Sprintf(`You are a data extraction tool. Using the Pylon MCP tools:
1. Call pylon_get_issue with id "%[1]d"
2. Call pylon_get_account with the account_id from step 1

Return ONLY a raw JSON object (no markdown, no code blocks):
{"ticket_id":%[1]d,"pylon_id":"<id>","title":"<title>","customer_name":"<account name>","account_id":"<acct id>","pylon_link":"<link>","source":"<source>","state":"<state>","created_at":"<created>","body":"<body text, max 500 chars>","tags":[],"fetched_at":"%[2]s"}`,
		ticketID, now().UTC().Format(time.RFC3339))
}

// Fetch implements Source.
func (s AgentSource) Fetch(ctx context.Context, ticketID int64) (*Data, error) {
	if s.Runner == nil {
		return nil, ErrUnavailable
	}
	out, err := s.Runner.Run(ctx, agent.Request{
		Prompt:          s.prompt(ticketID),
		Dir:             s.WorkDir,
		Phase:           "phase0",
		InvestigationID: ticketID,
	})
	if err != nil {
		return nil, err
	}
	match := jsonObject.FindString(out)
	if match == "" {
		return nil, fmt.Errorf("%w: agent returned no JSON object", ErrUnavailable)
	}
	return Parse([]byte(match))
}

// Chain tries each source in order until one returns data. Errors other than
// ErrUnavailable stop the chain.
type Chain []Source

// Fetch implements Source.
func (c Chain) Fetch(ctx context.Context, ticketID int64) (*Data, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		data, err := src.Fetch(ctx, ticketID)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		common.Logger().Debug("ticket: source unavailable", "ticket", ticketID, "source", fmt.Sprintf("%T", src))
	}
	return nil, ErrUnavailable
}

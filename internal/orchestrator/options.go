// File path: internal/orchestrator/options.go
package orchestrator

import (
	"github.com/jonboulle/clockwork"

	"github.com/jacobaguon-blip/support-triage/internal/agent"
	"github.com/jacobaguon-blip/support-triage/internal/ticket"
)

type Option func(*options)

type options struct {
	disablePoll bool
	agent       agent.Runner
	source      ticket.Source
	clock       clockwork.Clock
}

// WithPollDisabled prevents Start from launching the response poller.
// Primarily used in tests and one-shot CLI commands.
func WithPollDisabled() Option {
	return func(o *options) {
		o.disablePoll = true
	}
}

// WithAgent injects an agent runner in place of the configured backend.
func WithAgent(runner agent.Runner) Option {
	return func(o *options) {
		o.agent = runner
	}
}

// WithTicketSource injects the ticket source used by phase 0.
func WithTicketSource(source ticket.Source) Option {
	return func(o *options) {
		o.source = source
	}
}

// WithClock overrides the clock shared by the queue, debounce and poller.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

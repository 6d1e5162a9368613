// File path: internal/agent/runner.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/jacobaguon-blip/support-triage/internal/common/telemetry"
)

// AuthRemediation is shown to operators when the agent CLI lost its login.
const AuthRemediation = "Agent CLI is not authenticated. Run 'claude /login' in your terminal, then reset this investigation."

var (
	// ErrTimeout is returned when the agent does not answer before its deadline.
	ErrTimeout = errors.New("agent: timed out")
	// ErrAuthRequired is returned when the agent backend rejects the credentials.
	ErrAuthRequired = errors.New("agent: authentication required")
)

// ExitError reports a non-zero exit from the agent process.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	stderr := e.Stderr
	if len(stderr) > 500 {
		stderr = stderr[:500]
	}
	return fmt.Sprintf("Claude exited with code %d: %s", e.Code, stderr)
}

// Request is one prompt handed to the agent.
type Request struct {
	Prompt string
	// Dir is the investigation directory the agent works in.
	Dir string
	// Phase labels activity log entries.
	Phase string
	// InvestigationID scopes activity logging; zero disables it.
	InvestigationID int64
}

// Runner executes prompts against an agent backend.
type Runner interface {
	Run(ctx context.Context, req Request) (string, error)
}

// Health is the result of an agent readiness probe.
type Health struct {
	Authenticated bool   `json:"authenticated"`
	Message       string `json:"message"`
	Error         string `json:"error,omitempty"`
}

// Checker probes whether the backend is usable.
type Checker interface {
	Check(ctx context.Context) Health
}

// Limited wraps a runner so invocations wait on limiter before starting.
func Limited(r Runner, limiter *rate.Limiter) Runner {
	if limiter == nil {
		return r
	}
	return &limitedRunner{next: r, limiter: limiter}
}

type limitedRunner struct {
	next    Runner
	limiter *rate.Limiter
}

func (l *limitedRunner) Run(ctx context.Context, req Request) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("agent: rate limit wait: %w", err)
	}
	return l.next.Run(ctx, req)
}

func (l *limitedRunner) Check(ctx context.Context) Health {
	if c, ok := l.next.(Checker); ok {
		return c.Check(ctx)
	}
	return Health{Authenticated: true, Message: "Agent backend does not support health checks"}
}

// Outcome classifies a Run error for metrics and status reporting.
func Outcome(err error) string {
	var exitErr *ExitError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAuthRequired):
		return "auth"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &exitErr):
		return "exit"
	}
	return "error"
}

func record(backend string, err error) {
	telemetry.RecordAgentInvocation(backend, Outcome(err))
}

func isAuthFailure(output string) bool {
	return strings.Contains(output, "Not logged in") || strings.Contains(output, "Please run /login")
}

// File path: internal/agent/cli.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/common/process"
)

const (
	defaultBinary       = "claude"
	defaultTimeout      = 5 * time.Minute
	defaultCheckTimeout = 10 * time.Second
	healthPrompt        = "Respond with OK"
)

var defaultArgs = []string{"-p", "--output-format", "text"}

// ActivityLogger receives agent progress lines for an investigation.
type ActivityLogger interface {
	LogActivity(id int64, phase, kind, message string)
}

// CLIConfig configures the agent CLI runner.
type CLIConfig struct {
	Binary       string
	Args         []string
	Timeout      time.Duration
	CheckTimeout time.Duration
	Env          []string
}

// CLIRunner invokes the agent CLI with the prompt on stdin.
type CLIRunner struct {
	cfg      CLIConfig
	activity ActivityLogger
}

// NewCLIRunner applies defaults to cfg. activity may be nil.
func NewCLIRunner(cfg CLIConfig, activity ActivityLogger) *CLIRunner {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = defaultBinary
	}
	if len(cfg.Args) == 0 {
		cfg.Args = append([]string(nil), defaultArgs...)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = defaultCheckTimeout
	}
	return &CLIRunner{cfg: cfg, activity: activity}
}

func (r *CLIRunner) commandLine() string {
	return strings.TrimSpace(r.cfg.Binary + " " + strings.Join(r.cfg.Args, " "))
}

func (r *CLIRunner) log(req Request, kind, message string) {
	if r.activity == nil || req.InvestigationID == 0 {
		return
	}
	r.activity.LogActivity(req.InvestigationID, req.Phase, kind, message)
}

// Run sends req.Prompt to the CLI and returns its stdout.
func (r *CLIRunner) Run(ctx context.Context, req Request) (string, error) {
	if r == nil {
		return "", errors.New("agent runner not initialised")
	}
	logger := common.Logger()
	r.log(req, "command", r.commandLine())
	logger.Info("agent: invoking CLI", "investigation", req.InvestigationID, "phase", req.Phase, "dir", req.Dir)

	result, err := process.Run(ctx, process.Spec{
		Name:    "agent",
		Command: r.cfg.Binary,
		Args:    r.cfg.Args,
		Env:     r.cfg.Env,
		WorkDir: req.Dir,
		Stdin:   req.Prompt,
		Timeout: r.cfg.Timeout,
		OnLine: func(_ string, line string) {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				r.log(req, "output", trimmed)
			}
		},
	})
	err = r.interpret(req, result, err)
	record("cli", err)
	if err != nil {
		logger.Warn("agent: CLI failed", "investigation", req.InvestigationID, "phase", req.Phase, "error", err)
		return "", err
	}
	logger.Info("agent: CLI finished", "investigation", req.InvestigationID, "phase", req.Phase, "dur", result.Duration, "bytes", len(result.Stdout))
	return result.Stdout, nil
}

func (r *CLIRunner) interpret(req Request, result process.Result, err error) error {
	if err != nil {
		if errors.Is(err, process.ErrTimeout) {
			r.log(req, "error", fmt.Sprintf("Claude command timed out after %ds", int(r.cfg.Timeout.Seconds())))
			return fmt.Errorf("%w after %s", ErrTimeout, r.cfg.Timeout)
		}
		r.log(req, "error", fmt.Sprintf("Failed to start Claude: %v", err))
		return fmt.Errorf("agent: %w", err)
	}
	if result.ExitCode == 0 {
		return nil
	}
	if isAuthFailure(result.Stdout + result.Stderr) {
		r.log(req, "error", "Claude CLI authentication expired. Run 'claude /login' in your terminal, then reset this investigation.")
		return ErrAuthRequired
	}
	r.log(req, "error", fmt.Sprintf("Claude exited with code %d", result.ExitCode))
	return &ExitError{Code: result.ExitCode, Stderr: result.Stderr}
}

// Check sends a trivial prompt and reports whether the CLI is logged in.
func (r *CLIRunner) Check(ctx context.Context) Health {
	result, err := process.Run(ctx, process.Spec{
		Name:    "agent-health",
		Command: r.cfg.Binary,
		Args:    r.cfg.Args,
		Env:     r.cfg.Env,
		Stdin:   healthPrompt,
		Timeout: r.cfg.CheckTimeout,
	})
	switch {
	case err != nil:
		return Health{
			Authenticated: false,
			Error:         err.Error(),
			Message:       "Claude CLI check failed. Please verify your installation.",
		}
	case isAuthFailure(result.Stdout + result.Stderr):
		return Health{
			Authenticated: false,
			Message:       "Claude CLI is not authenticated. Run 'claude /login' to authenticate.",
		}
	case result.ExitCode == 0:
		return Health{Authenticated: true, Message: "Claude CLI is authenticated and ready"}
	}
	return Health{
		Authenticated: false,
		Error:         fmt.Sprintf("Claude exited with code %d", result.ExitCode),
		Message:       "Claude CLI check failed. Please verify your installation.",
	}
}

// File path: internal/agent/agent_test.go
package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jacobaguon-blip/support-triage/internal/model"
)

type recordedActivity struct {
	phase, kind, message string
}

type fakeActivity struct {
	mu      sync.Mutex
	entries []recordedActivity
}

func (f *fakeActivity) LogActivity(_ int64, phase, kind, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, recordedActivity{phase, kind, message})
}

func (f *fakeActivity) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.kind)
	}
	return out
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-agent")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestCLIRunnerReturnsStdout(t *testing.T) {
	script := writeScript(t, "cat")
	activity := &fakeActivity{}
	runner := NewCLIRunner(CLIConfig{Binary: script}, activity)

	out, err := runner.Run(context.Background(), Request{Prompt: "line one\nline two\n", Dir: t.TempDir(), Phase: "phase1", InvestigationID: 7})
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", out)
	assert.Equal(t, []string{"command", "output", "output"}, activity.kinds())
	assert.Equal(t, script+" -p --output-format text", activity.entries[0].message)
}

func TestCLIRunnerDetectsAuthFailure(t *testing.T) {
	script := writeScript(t, "echo 'Not logged in'\nexit 1")
	activity := &fakeActivity{}
	runner := NewCLIRunner(CLIConfig{Binary: script}, activity)

	_, err := runner.Run(context.Background(), Request{Prompt: "hi", InvestigationID: 1, Phase: "phase0"})
	require.ErrorIs(t, err, ErrAuthRequired)
	last := activity.entries[len(activity.entries)-1]
	assert.Equal(t, "error", last.kind)
	assert.Contains(t, last.message, "claude /login")
}

func TestCLIRunnerReportsExitCode(t *testing.T) {
	script := writeScript(t, "echo boom >&2\nexit 3")
	runner := NewCLIRunner(CLIConfig{Binary: script}, nil)

	_, err := runner.Run(context.Background(), Request{Prompt: "hi"})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "Claude exited with code 3: boom\n", exitErr.Error())
	assert.Equal(t, "exit", Outcome(err))
}

func TestCLIRunnerTimeout(t *testing.T) {
	script := writeScript(t, "exec sleep 5")
	activity := &fakeActivity{}
	runner := NewCLIRunner(CLIConfig{Binary: script, Timeout: 200 * time.Millisecond}, activity)

	start := time.Now()
	_, err := runner.Run(context.Background(), Request{Prompt: "hi", InvestigationID: 2})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, "timeout", Outcome(err))
}

func TestCLIRunnerCheck(t *testing.T) {
	ok := NewCLIRunner(CLIConfig{Binary: writeScript(t, "echo OK")}, nil)
	health := ok.Check(context.Background())
	assert.True(t, health.Authenticated)
	assert.Equal(t, "Claude CLI is authenticated and ready", health.Message)

	loggedOut := NewCLIRunner(CLIConfig{Binary: writeScript(t, "echo 'Please run /login' >&2\nexit 1")}, nil)
	health = loggedOut.Check(context.Background())
	assert.False(t, health.Authenticated)
	assert.Empty(t, health.Error)

	broken := NewCLIRunner(CLIConfig{Binary: writeScript(t, "exit 2")}, nil)
	health = broken.Check(context.Background())
	assert.False(t, health.Authenticated)
	assert.Equal(t, "Claude exited with code 2", health.Error)
}

func TestExitErrorTruncatesStderr(t *testing.T) {
	err := &ExitError{Code: 1, Stderr: strings.Repeat("x", 800)}
	assert.Len(t, err.Error(), len("Claude exited with code 1: ")+500)
}

type stubRunner struct{ calls int }

func (s *stubRunner) Run(context.Context, Request) (string, error) {
	s.calls++
	return "ok", nil
}

func TestLimitedRunnerHonoursContext(t *testing.T) {
	stub := &stubRunner{}
	limited := Limited(stub, rate.NewLimiter(rate.Every(time.Hour), 1))

	_, err := limited.Run(context.Background(), Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = limited.Run(ctx, Request{})
	require.Error(t, err)
	assert.Equal(t, 1, stub.calls)

	health := limited.(Checker).Check(context.Background())
	assert.True(t, health.Authenticated)
}

func TestSplitDocuments(t *testing.T) {
	output := "preamble\n=== summary.md ===\n# Summary\nbody\n\n=== customer-response.md ===\nHello\n=== empty.md ===\n   \n"
	got := SplitDocuments(output)
	want := map[string]string{
		"summary.md":           "# Summary\nbody",
		"customer-response.md": "Hello",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("SplitDocuments mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, SplitDocuments("no delimiters here"))
}

func TestExtractCitations(t *testing.T) {
	text := `See [Source: Linear ENG-42] and [Source: Pylon #1234], again [Source: pylon 1234].
Thread in [Source: Slack #support-escalations, 2024-05-01] and [Source: local/notes.md].
Also [Source: Linear ENG-42].`
	got := ExtractCitations(text)
	want := []model.Source{
		{Type: "linear", ID: "ENG-42", Label: "Linear ENG-42"},
		{Type: "pylon", ID: "1234", Label: "Pylon #1234"},
		{Type: "slack", ID: "support-escalations", Label: "Slack #support-escalations"},
		{Type: "file", ID: "notes.md", Label: "Local: notes.md"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExtractCitations mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, ExtractCitations("nothing cited"))
}

func TestNewOpenAIRunnerRequiresKey(t *testing.T) {
	_, err := NewOpenAIRunner(OpenAIConfig{})
	require.Error(t, err)

	runner, err := NewOpenAIRunner(OpenAIConfig{APIKey: "sk-test", Endpoint: "http://127.0.0.1:1/v1"})
	require.NoError(t, err)
	assert.Equal(t, defaultOpenAIModel, runner.model)
}

func TestOpenAIConfigFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", " key ")
	t.Setenv("OPENAI_MODEL", "gpt-test")
	t.Setenv("OPENAI_HTTP_TIMEOUT", "45s")
	t.Setenv("OPENAI_ENDPOINT", "")
	cfg := OpenAIConfigFromEnv()
	assert.Equal(t, OpenAIConfig{APIKey: "key", Model: "gpt-test", Timeout: 45 * time.Second}, cfg)
}

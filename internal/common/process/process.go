// File path: internal/common/process/process.go
package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/common"
)

// ErrTimeout is returned when the command exceeds its deadline.
var ErrTimeout = errors.New("process: timed out")

// Spec describes a one-shot command invocation.
type Spec struct {
	Name    string
	Command string
	Args    []string
	Env     []string
	WorkDir string
	Stdin   string
	Timeout time.Duration
	// OnLine receives each stdout line as it is produced.
	OnLine func(stream, line string)
	Logger *slog.Logger
}

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Run executes the command, feeding Stdin and streaming output lines to the
// logger and OnLine. A non-zero exit is reported through Result.ExitCode with
// a nil error; err is reserved for launch failures, cancellation and timeouts.
func Run(ctx context.Context, spec Spec) (Result, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return Result{}, errors.New("process: command required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := spec.Logger
	if logger == nil {
		logger = common.Logger()
	}
	runCtx := ctx
	cancel := func() {}
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
	}
	defer cancel()

	name := componentName(spec)
	logger.Debug("process: launching", "service", name, "command", spec.Command, "args", strings.Join(spec.Args, " "))

	cmd := exec.CommandContext(runCtx, spec.Command, spec.Args...)
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}
	cmd.WaitDelay = 2 * time.Second

	baseAttrs := []slog.Attr{
		slog.String("component", "process/"+strings.ReplaceAll(strings.ToLower(name), " ", "_")),
		slog.String("service", name),
	}
	var (
		stdout, stderr bytes.Buffer
		wg             sync.WaitGroup
	)
	forward := func(pipe io.Reader, stream string, buf *bytes.Buffer) {
		defer wg.Done()
		scanner := bufio.NewScanner(pipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		attrs := append(append([]slog.Attr(nil), baseAttrs...), slog.String("stream", stream))
		level := slog.LevelDebug
		if stream == "stderr" {
			level = slog.LevelWarn
		}
		for scanner.Scan() {
			line := scanner.Text()
			buf.WriteString(line)
			buf.WriteByte('\n')
			logger.LogAttrs(ctx, level, line, attrs...)
			if spec.OnLine != nil && stream == "stdout" {
				spec.OnLine(stream, line)
			}
		}
		if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			logger.LogAttrs(ctx, slog.LevelWarn, "process log stream error", append(attrs, slog.Any("error", err))...)
		}
		io.Copy(io.Discard, pipe)
	}
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	wg.Add(2)
	go forward(stdoutR, "stdout", &stdout)
	go forward(stderrR, "stderr", &stderr)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		wg.Wait()
		return Result{}, fmt.Errorf("process: start %s: %w", name, err)
	}
	waitErr := cmd.Wait()
	stdoutW.Close()
	stderrW.Close()
	wg.Wait()

	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return result, fmt.Errorf("%w after %s", ErrTimeout, spec.Timeout)
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			logger.Debug("process: exited", "service", name, "code", result.ExitCode, "dur", result.Duration)
			return result, nil
		}
		return result, fmt.Errorf("process: wait %s: %w", name, waitErr)
	}
	logger.Debug("process: finished", "service", name, "dur", result.Duration)
	return result, nil
}

func componentName(spec Spec) string {
	if name := strings.TrimSpace(spec.Name); name != "" {
		return name
	}
	if base := filepath.Base(strings.TrimSpace(spec.Command)); base != "" {
		return base
	}
	return "process"
}

// BinaryPath resolves an executable path using the system PATH.
func BinaryPath(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("process: binary name required")
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("process: locate %s: %w", name, err)
	}
	return filepath.Clean(path), nil
}

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout is used when a tool has no explicit timeout.
	DefaultTimeout = 5 * time.Minute

	// maxOutputSize is the maximum number of bytes kept from tool stdout/stderr (10MB).
	maxOutputSize = 10 * 1024 * 1024

	// waitDelay bounds how long Run waits for output pipes after the tool is killed.
	waitDelay = 2 * time.Second
)

// Runner executes one external tool command per call.
//
// Contract: the request is marshalled to JSON and written to the tool's stdin, which is
// then closed. The tool writes exactly one JSON object to stdout and exits 0.
type Runner struct {
	Command []string
	Timeout time.Duration
	log     zerolog.Logger
}

// NewRunner creates a runner. A zero timeout means DefaultTimeout.
func NewRunner(command []string, timeout time.Duration, log zerolog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{Command: command, Timeout: timeout, log: log}
}

// ExecError describes a tool process that ran but did not succeed.
type ExecError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%v: %s", e.Err, truncate(e.Stderr, 500))
	}
	return e.Err.Error()
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Run executes the tool in dir, feeding request and decoding the response into response.
func (r *Runner) Run(ctx context.Context, dir string, request, response any) error {
	if len(r.Command) == 0 {
		return fmt.Errorf("command array is empty")
	}

	input, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal tool input: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, r.Command[0], r.Command[1:]...)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(input)
	cmd.WaitDelay = waitDelay
	// Tools are often shell wrappers; a timeout must take their children down too.
	killProcessGroup(cmd)

	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	cmd.Stdout = &limitedWriter{w: stdoutBuf, limit: maxOutputSize}
	cmd.Stderr = &limitedWriter{w: stderrBuf, limit: maxOutputSize}

	start := time.Now()
	err = cmd.Run()
	r.log.Debug().
		Strs("command", r.Command).
		Str("dir", dir).
		Dur("duration", time.Since(start)).
		Msg("tool finished")

	if stdoutBuf.Len() >= maxOutputSize || stderrBuf.Len() >= maxOutputSize {
		return &ExecError{ExitCode: -1, Err: fmt.Errorf("tool output exceeded 10MB limit")}
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			return &ExecError{ExitCode: -1, Stderr: stderrBuf.String(), Err: fmt.Errorf("tool cancelled: %w", ctx.Err())}
		case errors.Is(execCtx.Err(), context.DeadlineExceeded):
			return &ExecError{ExitCode: -1, Stderr: stderrBuf.String(), Err: fmt.Errorf("tool execution timeout (%s)", r.Timeout)}
		case errors.As(err, &exitErr):
			return &ExecError{ExitCode: exitErr.ExitCode(), Stderr: stderrBuf.String(), Err: fmt.Errorf("process exited with code %d", exitErr.ExitCode())}
		default:
			return &ExecError{ExitCode: -1, Stderr: stderrBuf.String(), Err: err}
		}
	}

	if stdoutBuf.Len() == 0 {
		return fmt.Errorf("tool produced no output on stdout")
	}
	if err := json.Unmarshal(stdoutBuf.Bytes(), response); err != nil {
		return fmt.Errorf("invalid JSON from tool: %w (stdout=%s)", err, truncate(stdoutBuf.String(), 200))
	}
	return nil
}

// limitedWriter wraps a writer and enforces a size limit.
// Once the limit is reached, further writes are discarded.
type limitedWriter struct {
	w       io.Writer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return len(p), nil
	}

	toWrite := p
	if len(p) > remaining {
		toWrite = p[:remaining]
	}

	n, err = lw.w.Write(toWrite)
	lw.written += n
	return len(p), err
}

// truncate limits a string to maxLen characters, appending "..." if truncated
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

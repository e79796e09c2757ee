// Package process runs external programs (hook scripts and signers) on behalf
// of the pipeline. The pipeline never inspects stdout; only the exit status
// and captured stderr are reported back.
package process

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// maxStderr bounds how much stderr is retained for error reports.
const maxStderr = 4096

// Command describes a single process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env entries are appended to the current process environment.
	Env []string
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is what a finished process reports.
type Result struct {
	ExitCode int
	Stderr   string
}

// Runner executes commands. Implementations must honor ctx cancellation.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExitError is returned when a process exits with a non-zero status.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Command, e.ExitCode, e.Stderr)
}

// ExecRunner runs commands with os/exec. Stdout and stderr are streamed to
// the configured writers (os.Stdout/os.Stderr when nil); stderr is also
// captured for error reporting.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner returns a runner that streams child output to the terminal.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run starts cmd and waits for it to finish.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	// #nosec G204 -- command and arguments come from the user's own build configuration
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var captured tailWriter
	stdout, stderr := r.Stdout, r.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, &captured)

	err := cmd.Run()
	res := Result{Stderr: captured.String()}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	var ee *exec.ExitError
	if stderrors.As(err, &ee) {
		res.ExitCode = ee.ExitCode()
		return res, &ExitError{Command: c.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res, fmt.Errorf("failed to start %s: %w", c.Name, err)
}

// tailWriter keeps at most the last 2*maxStderr bytes written to it.
type tailWriter struct {
	buf       []byte
	truncated bool
}

func (w *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n > maxStderr {
		p = p[n-maxStderr:]
		w.truncated = true
	}
	w.buf = append(w.buf, p...)
	if len(w.buf) > 2*maxStderr {
		w.buf = append(w.buf[:0], w.buf[len(w.buf)-maxStderr:]...)
		w.truncated = true
	}
	return n, nil
}

func (w *tailWriter) String() string {
	s := tail(string(w.buf))
	if w.truncated && !strings.HasPrefix(s, "...") {
		s = "..." + s
	}
	return s
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxStderr {
		return s
	}
	return "..." + s[len(s)-maxStderr:]
}

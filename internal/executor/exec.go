package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

const (
	defaultTimeout = 15 * time.Second
	maxOutputBytes = 1 << 20 // 1 MB

	// waitDelay bounds how long Run waits for output pipes after the
	// process is killed; grandchildren may still hold them open.
	waitDelay = time.Second
)

// Result is the outcome of a command that was started.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner runs external commands. Implementations must be safe for
// concurrent use.
type Runner interface {
	// Run starts name with args and waits for it. A non-nil error means the
	// command could not be started or did not finish (timeout, cancel).
	// A finished command with a non-zero exit code is not an error here;
	// callers inspect Result.ExitCode.
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// Executor runs commands with a timeout and bounded output capture.
type Executor struct {
	timeout time.Duration
}

// New creates an Executor. A non-positive timeout selects the default.
func New(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Executor{timeout: timeout}
}

// Run implements Runner.
func (e *Executor) Run(ctx context.Context, name string, args ...string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay
	hideWindow(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxOutputBytes}

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	res.ExitCode = -1
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	return res, err
}

// limitedWriter wraps a buffer and stops writing after limit bytes.
type limitedWriter struct {
	w       *bytes.Buffer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return len(p), nil // Discard silently
	}
	n := len(p)
	if n > remaining {
		p = p[:remaining]
	}
	written, err := lw.w.Write(p)
	lw.written += written
	if err != nil {
		return written, err
	}
	return n, nil
}

// Package runner spawns child processes with a per-stream capture plan,
// optional workspace bounds and captured-output size limits.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Capture selects which output streams are collected instead of relayed.
type Capture uint8

const (
	// CaptureStdout collects the child's stdout.
	CaptureStdout Capture = 1 << iota
	// CaptureStderr collects the child's stderr.
	CaptureStderr

	// CaptureNone relays both streams.
	CaptureNone Capture = 0
)

// Has reports whether c includes all streams in other.
func (c Capture) Has(other Capture) bool {
	return c&other == other
}

func (c Capture) String() string {
	switch c {
	case CaptureNone:
		return "none"
	case CaptureStdout:
		return "stdout"
	case CaptureStderr:
		return "stderr"
	case CaptureStdout | CaptureStderr:
		return "stdout+stderr"
	}
	return fmt.Sprintf("Capture(%d)", uint8(c))
}

// Spec describes a single process invocation.
type Spec struct {
	Argv    []string
	Dir     string   // resolved against Runner.Workspace when set
	Env     []string // KEY=VALUE pairs appended to the parent environment
	Stdin   io.Reader
	Capture Capture

	// Relay targets for streams that are not captured. A nil writer
	// discards the stream.
	RelayStdout io.Writer
	RelayStderr io.Writer
}

// Runner executes commands, optionally within a workspace boundary.
type Runner struct {
	Workspace string // empty means no boundary
	MaxOutput int    // bytes per captured stream; 0 means unlimited
}

// Run executes spec.Argv and blocks until the process exits. A process that
// ran and exited with any status yields a Result and a nil error; failing to
// start yields a *StartError.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	dir, err := r.resolveDir(spec.Dir)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = dir
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), spec.Env...)
	}
	cmd.Stdin = spec.Stdin

	var stdout, stderr bytes.Buffer
	outW := &limitWriter{buf: &stdout, limit: r.MaxOutput}
	errW := &limitWriter{buf: &stderr, limit: r.MaxOutput}

	if spec.Capture.Has(CaptureStdout) {
		cmd.Stdout = outW
	} else {
		cmd.Stdout = spec.RelayStdout
	}
	if spec.Capture.Has(CaptureStderr) {
		cmd.Stderr = errW
	} else {
		cmd.Stderr = spec.RelayStderr
	}

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	status := ExitStatus{}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			if cmd.Process == nil {
				return nil, &StartError{Argv: spec.Argv, Err: runErr}
			}
			// Started, but waiting or copying output failed.
			return nil, fmt.Errorf("running %s: %w", spec.Argv[0], runErr)
		}
		status.Code = exitErr.ExitCode()
		status.Signal = signalName(exitErr)
	}

	res := &Result{
		RunID:     runID,
		Status:    status,
		Truncated: outW.truncated || errW.truncated,
		Duration:  elapsed,

		StdoutTruncated: outW.truncated,
		StderrTruncated: errW.truncated,
	}
	if spec.Capture.Has(CaptureStdout) {
		res.Stdout = stdout.Bytes()
	}
	if spec.Capture.Has(CaptureStderr) {
		res.Stderr = stderr.Bytes()
	}
	return res, nil
}

// resolveDir resolves dir relative to the workspace and validates it
// is within the workspace boundary.
func (r *Runner) resolveDir(dir string) (string, error) {
	if r.Workspace == "" {
		return dir, nil
	}
	if dir == "" {
		return r.Workspace, nil
	}

	var resolved string
	if filepath.IsAbs(dir) {
		resolved = filepath.Clean(dir)
	} else {
		resolved = filepath.Clean(filepath.Join(r.Workspace, dir))
	}

	rel, err := filepath.Rel(r.Workspace, resolved)
	if err != nil {
		return "", fmt.Errorf("resolving dir: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("dir %q is outside workspace %q", dir, r.Workspace)
	}
	return resolved, nil
}

// limitWriter writes up to limit bytes to buf, then silently discards the
// rest. A limit of zero or less means no limit.
type limitWriter struct {
	buf       *bytes.Buffer
	limit     int
	truncated bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.limit <= 0 {
		return w.buf.Write(p)
	}
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		if len(p) > 0 {
			w.truncated = true
		}
		return len(p), nil // discard
	}
	if len(p) > remaining {
		// Report all bytes as consumed to avoid short write errors
		// from the copying goroutine in os/exec.
		w.buf.Write(p[:remaining])
		w.truncated = true
		return len(p), nil
	}
	return w.buf.Write(p)
}

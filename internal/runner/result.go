package runner

import (
	"fmt"
	"strings"
	"time"
)

// Result holds the outcome of a finished process.
type Result struct {
	RunID     string        // unique identifier for this run
	Status    ExitStatus    // how the process terminated
	Stdout    []byte        // captured stdout; nil unless captured
	Stderr    []byte        // captured stderr; nil unless captured
	Truncated bool          // a captured stream exceeded MaxOutput
	Duration  time.Duration // wall time from start to exit

	// Per-stream truncation; Truncated is their union.
	StdoutTruncated bool
	StderrTruncated bool
}

// ExitStatus describes how a process terminated.
type ExitStatus struct {
	Code   int    // exit code; -1 when terminated by a signal
	Signal string // signal name when terminated by a signal
}

// Success reports whether the process exited normally with code 0.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == ""
}

func (s ExitStatus) String() string {
	if s.Signal != "" {
		return "terminated by signal " + s.Signal
	}
	return fmt.Sprintf("exited with exit code %d", s.Code)
}

// StartError is returned when the process could not be started, for
// example because the executable does not exist.
type StartError struct {
	Argv []string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("starting %s: %v", strings.Join(e.Argv, " "), e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Package report persists finished process runs so their captured output
// can be inspected after the call that produced them returned.
package report

import (
	"fmt"
	"time"
)

// Store persists and retrieves runs.
type Store interface {
	Save(run *Run) error
	Load(runID string) (*Run, error)
}

// Stream names accepted by Run.Stream.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Run is the record of one finished process.
type Run struct {
	ID        string        `json:"id"`
	Command   string        `json:"command"` // rendered argv, as in error messages
	Argv      []string      `json:"argv"`
	Dir       string        `json:"dir,omitempty"`
	Code      int           `json:"code"`
	Signal    string        `json:"signal,omitempty"`
	Stdout    []byte        `json:"stdout,omitempty"`
	Stderr    []byte        `json:"stderr,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Success reports whether the run exited normally with code 0.
func (r *Run) Success() bool {
	return r.Code == 0 && r.Signal == ""
}

// Stream returns the captured bytes of the named stream.
func (r *Run) Stream(name string) ([]byte, error) {
	switch name {
	case StreamStdout:
		return r.Stdout, nil
	case StreamStderr:
		return r.Stderr, nil
	}
	return nil, fmt.Errorf("unknown stream %q (want %s or %s)", name, StreamStdout, StreamStderr)
}

package procout

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deixis/procout/internal/runner"
)

// Output is a value that can be filled from the outcome of a process.
//
// The set of outputs is closed: StdoutTrimmed, StdoutUntrimmed, Stderr,
// StdoutBytes, StderrBytes, Status, Success and Meta. Pass pointers to them
// to Cmd.Run.
type Output interface {
	// configure records what the output needs before the process is
	// spawned: captured streams and the exit policy.
	configure(*config)
	// extract fills the output from the finished process.
	extract(*outcome) error
}

// outcome is a finished invocation, consumed once by the outputs.
type outcome struct {
	command string
	result  *runner.Result
}

// text decodes a captured stream. A stream cut at MaxOutput may end in
// the middle of a character; that partial character is dropped.
func (o *outcome) text(stream string, data []byte, truncated bool) (string, error) {
	if truncated {
		data = dropPartialRune(data)
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	offset := 0
	for offset < len(data) {
		r, size := utf8.DecodeRune(data[offset:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		offset += size
	}
	return "", &DecodingError{Command: o.command, Stream: stream, Offset: offset}
}

// dropPartialRune removes an incomplete multi-byte sequence from the end
// of data. Invalid bytes are left for validation to report.
func dropPartialRune(data []byte) []byte {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(data[i]) {
			continue
		}
		if data[i] >= utf8.RuneSelf && !utf8.FullRune(data[i:]) {
			return data[:i]
		}
		break
	}
	return data
}

// StdoutTrimmed is what the process wrote to stdout, decoded as utf-8 and
// trimmed of leading and trailing whitespace.
type StdoutTrimmed string

func (s *StdoutTrimmed) configure(c *config) { c.capture.stdout = true }

func (s *StdoutTrimmed) extract(o *outcome) error {
	text, err := o.text("stdout", o.result.Stdout, o.result.StdoutTruncated)
	if err != nil {
		return err
	}
	*s = StdoutTrimmed(strings.TrimSpace(text))
	return nil
}

// StdoutUntrimmed is what the process wrote to stdout, decoded as utf-8.
type StdoutUntrimmed string

func (s *StdoutUntrimmed) configure(c *config) { c.capture.stdout = true }

func (s *StdoutUntrimmed) extract(o *outcome) error {
	text, err := o.text("stdout", o.result.Stdout, o.result.StdoutTruncated)
	if err != nil {
		return err
	}
	*s = StdoutUntrimmed(text)
	return nil
}

// Stderr is what the process wrote to stderr, decoded as utf-8.
type Stderr string

func (s *Stderr) configure(c *config) { c.capture.stderr = true }

func (s *Stderr) extract(o *outcome) error {
	text, err := o.text("stderr", o.result.Stderr, o.result.StderrTruncated)
	if err != nil {
		return err
	}
	*s = Stderr(text)
	return nil
}

// StdoutBytes is what the process wrote to stdout, unmodified.
type StdoutBytes []byte

func (s *StdoutBytes) configure(c *config) { c.capture.stdout = true }

func (s *StdoutBytes) extract(o *outcome) error {
	*s = append(StdoutBytes{}, o.result.Stdout...)
	return nil
}

// StderrBytes is what the process wrote to stderr, unmodified.
type StderrBytes []byte

func (s *StderrBytes) configure(c *config) { c.capture.stderr = true }

func (s *StderrBytes) extract(o *outcome) error {
	*s = append(StderrBytes{}, o.result.Stderr...)
	return nil
}

// Status is how the process terminated. Requesting it disables the exit
// status check.
type Status struct {
	Code   int    // exit code; -1 when terminated by a signal
	Signal string // signal name when terminated by a signal
}

// Success reports whether the process exited normally with code 0.
func (s Status) Success() bool {
	return s.Code == 0 && s.Signal == ""
}

func (s Status) String() string {
	if s.Signal != "" {
		return "terminated by signal " + s.Signal
	}
	return fmt.Sprintf("exited with exit code %d", s.Code)
}

func (s *Status) configure(c *config) { c.policy = IgnoreExit }

func (s *Status) extract(o *outcome) error {
	*s = Status(o.result.Status)
	return nil
}

// Success is true when the process exited successfully. Requesting it
// disables the exit status check.
type Success bool

func (s *Success) configure(c *config) { c.policy = IgnoreExit }

func (s *Success) extract(o *outcome) error {
	*s = Success(o.result.Status.Success())
	return nil
}

// Meta describes the run itself. It captures nothing and leaves the exit
// policy alone.
type Meta struct {
	RunID     string
	Duration  time.Duration
	Truncated bool // a captured stream hit Runner.MaxOutput
}

func (m *Meta) configure(*config) {}

func (m *Meta) extract(o *outcome) error {
	*m = Meta{
		RunID:     o.result.RunID,
		Duration:  o.result.Duration,
		Truncated: o.result.Truncated,
	}
	return nil
}

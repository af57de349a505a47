package procout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/deixis/procout/internal/runner"
)

// Runner holds what commands share: where relayed output goes, limits and
// logging. The zero value relays to os.Stdout and os.Stderr.
type Runner struct {
	// Stdout and Stderr receive the streams no output captures. Nil means
	// os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer

	// MaxOutput caps every captured stream, in bytes. Zero means no cap.
	// Meta.Truncated reports when the cap was hit.
	MaxOutput int

	// Workspace, when set, confines Dir inputs to this directory tree and
	// is the default working directory.
	Workspace string

	Logger *slog.Logger
}

// DefaultRunner is used by Command, Run, Get and Get2.
var DefaultRunner = &Runner{}

// Command builds a command run by r. See Command for the accepted inputs.
func (r *Runner) Command(inputs ...any) *Cmd {
	return &Cmd{runner: r, inputs: inputs}
}

// Run spawns the process, waits for it to exit and fills outputs from its
// outcome, in order.
//
// It fails with ErrNoArguments for an empty command, *SpawnError when the
// process cannot be created, *NonZeroExitError when the process fails
// under the CheckExit policy, and *DecodingError when a text output
// receives invalid utf-8.
func (c *Cmd) Run(ctx context.Context, outputs ...Output) error {
	cfg, err := parseInputs(c.inputs)
	if err != nil {
		return err
	}
	for _, out := range outputs {
		if isNil(out) {
			return &InputError{Value: out}
		}
		out.configure(cfg)
	}
	if len(cfg.argv) == 0 {
		return ErrNoArguments
	}

	r := c.runner
	if r == nil {
		r = DefaultRunner
	}
	command := formatArgv(cfg.argv)
	relayOut, relayErr := r.relays()
	logger := r.logger()

	if cfg.logCommand {
		if _, err := fmt.Fprintf(relayErr, "+ %s\n", command); err != nil {
			return fmt.Errorf("%s: logging command: %w", command, err)
		}
	}

	spec := runner.Spec{
		Argv:        cfg.argv,
		Dir:         cfg.dir,
		Env:         cfg.env,
		Capture:     cfg.capture.mode(),
		RelayStdout: relayOut,
		RelayStderr: relayErr,
	}
	if len(cfg.stdin) > 0 {
		spec.Stdin = bytes.NewReader(cfg.stdin)
	}

	logger.DebugContext(ctx, "spawning", "command", command, "capture", spec.Capture.String(), "policy", cfg.policy.String())

	proc := &runner.Runner{Workspace: r.Workspace, MaxOutput: r.MaxOutput}
	res, err := proc.Run(ctx, spec)
	if err != nil {
		var startErr *runner.StartError
		if errors.As(err, &startErr) {
			return &SpawnError{Command: command, Err: startErr.Err}
		}
		return fmt.Errorf("%s: %w", command, err)
	}

	logger.DebugContext(ctx, "process exited",
		"run_id", res.RunID,
		"command", command,
		"code", res.Status.Code,
		"signal", res.Status.Signal,
		"duration", res.Duration,
	)

	if cfg.policy == CheckExit && !res.Status.Success() {
		return &NonZeroExitError{Command: command, Status: Status(res.Status)}
	}

	o := &outcome{command: command, result: res}
	for _, out := range outputs {
		if err := out.extract(o); err != nil {
			return err
		}
	}
	return nil
}

func (c captureSet) mode() runner.Capture {
	mode := runner.CaptureNone
	if c.stdout {
		mode |= runner.CaptureStdout
	}
	if c.stderr {
		mode |= runner.CaptureStderr
	}
	return mode
}

func (r *Runner) relays() (io.Writer, io.Writer) {
	stdout, stderr := r.Stdout, r.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Run runs a command built from inputs for its side effects.
func (r *Runner) Run(ctx context.Context, inputs ...any) error {
	return r.Command(inputs...).Run(ctx)
}

// Run runs a command built from inputs with DefaultRunner for its side
// effects. It fails unless the process exits successfully.
func Run(ctx context.Context, inputs ...any) error {
	return DefaultRunner.Run(ctx, inputs...)
}

// outputPtr is satisfied by pointers to output types.
type outputPtr[T any] interface {
	*T
	Output
}

// Get runs a command with DefaultRunner and returns a single output
// selected by its type:
//
//	out, err := procout.Get[procout.StdoutTrimmed](ctx, "echo", "foo")
func Get[T any, P outputPtr[T]](ctx context.Context, inputs ...any) (T, error) {
	var v T
	err := DefaultRunner.Command(inputs...).Run(ctx, P(&v))
	return v, err
}

// Get2 is like Get with two outputs:
//
//	out, status, err := procout.Get2[procout.StdoutUntrimmed, procout.Status](ctx, "ls", dir)
func Get2[A, B any, PA outputPtr[A], PB outputPtr[B]](ctx context.Context, inputs ...any) (A, B, error) {
	var a A
	var b B
	err := DefaultRunner.Command(inputs...).Run(ctx, PA(&a), PB(&b))
	return a, b, err
}

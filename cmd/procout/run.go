package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/deixis/procout"
	"github.com/deixis/procout/internal/config"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Run a command and report its output and status",
	Long: `Run a command. Streams that are not captured are passed through.

With --capture, the named streams are collected and printed once the
command exits; captured text must be valid utf-8. --trim captures stdout. A failing exit status
makes procout exit with the same code, unless --status is given, in which
case the status is reported and the command is considered handled.

Examples:
  procout run -- ls -l /tmp
  procout run --split -- "git log --oneline -n 3"
  procout run --trim -- git rev-parse HEAD
  procout run --status --json --capture stdout,stderr -- make test`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determining working directory: %w", err)
		}
		loaded, err := config.Load(wd)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return runProcess(ctx, loaded.Config, runOpts, args, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

type runOptions struct {
	split      bool
	capture    []string
	trim       bool
	status     bool
	dir        string
	env        []string
	stdinFile  string
	logCommand bool
	json       bool
	timeout    time.Duration
}

var runOpts runOptions

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runOpts.split, "split", false, "split every argument on whitespace")
	runCmd.Flags().StringSliceVar(&runOpts.capture, "capture", nil, "streams to capture (stdout, stderr)")
	runCmd.Flags().BoolVar(&runOpts.trim, "trim", false, "capture stdout and trim the whitespace around it")
	runCmd.Flags().BoolVar(&runOpts.status, "status", false, "report the exit status instead of failing on it")
	runCmd.Flags().StringVar(&runOpts.dir, "dir", "", "working directory of the command")
	runCmd.Flags().StringArrayVar(&runOpts.env, "env", nil, "set an environment variable (KEY=VALUE, repeatable)")
	runCmd.Flags().StringVar(&runOpts.stdinFile, "stdin", "", `file written to the command's stdin ("-" for procout's stdin)`)
	runCmd.Flags().BoolVar(&runOpts.logCommand, "log-command", false, "print the command to stderr before running it")
	runCmd.Flags().BoolVar(&runOpts.json, "json", false, "output the result as JSON")
	runCmd.Flags().DurationVar(&runOpts.timeout, "timeout", 0, "override configured timeout (e.g. 5m)")
}

// runRecord is the --json output.
type runRecord struct {
	Command   string  `json:"command"`
	RunID     string  `json:"run_id"`
	Code      int     `json:"code"`
	Signal    string  `json:"signal,omitempty"`
	Stdout    *string `json:"stdout,omitempty"`
	Stderr    *string `json:"stderr,omitempty"`
	Truncated bool    `json:"truncated,omitempty"`
	Duration  string  `json:"duration"`
}

// runProcess runs args and writes the requested results to stdout and
// stderr. Exit statuses to propagate are returned as *exitError.
func runProcess(ctx context.Context, cfg *config.Config, opts runOptions, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var captureOut, captureErr bool
	for _, name := range opts.capture {
		switch name {
		case "stdout":
			captureOut = true
		case "stderr":
			captureErr = true
		default:
			return fmt.Errorf("unknown stream %q (want stdout or stderr)", name)
		}
	}
	if opts.trim {
		captureOut = true
	}

	inputs, err := opts.inputs(cfg, args, stdin)
	if err != nil {
		return err
	}

	timeout := cfg.Timeout()
	if opts.timeout > 0 {
		timeout = opts.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r := &procout.Runner{
		Stdout:    stdout,
		Stderr:    stderr,
		MaxOutput: cfg.MaxOutputBytes(),
		Logger:    newLogger(stderr),
	}
	cmd := r.Command(inputs...)

	var (
		trimmed   procout.StdoutTrimmed
		untrimmed procout.StdoutUntrimmed
		errText   procout.Stderr
		status    procout.Status
		meta      procout.Meta
	)
	outputs := []procout.Output{&meta}
	switch {
	case captureOut && opts.trim:
		outputs = append(outputs, &trimmed)
	case captureOut:
		outputs = append(outputs, &untrimmed)
	}
	if captureErr {
		outputs = append(outputs, &errText)
	}
	if opts.status {
		outputs = append(outputs, &status)
	}

	if err := cmd.Run(ctx, outputs...); err != nil {
		return err
	}

	outText := string(untrimmed)
	if opts.trim {
		outText = string(trimmed)
	}

	if opts.json {
		rec := runRecord{
			Command:   cmd.String(),
			RunID:     meta.RunID,
			Code:      status.Code,
			Signal:    status.Signal,
			Truncated: meta.Truncated,
			Duration:  meta.Duration.String(),
		}
		if captureOut {
			rec.Stdout = &outText
		}
		if captureErr {
			s := string(errText)
			rec.Stderr = &s
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return err
		}
	} else {
		if captureOut {
			if opts.trim && outText != "" {
				outText += "\n"
			}
			if _, err := io.WriteString(stdout, outText); err != nil {
				return err
			}
		}
		if captureErr {
			if _, err := io.WriteString(stderr, string(errText)); err != nil {
				return err
			}
		}
		if opts.status && !status.Success() {
			fmt.Fprintf(stderr, "procout: %s: %s\n", cmd, status)
		}
	}

	if opts.status && !status.Success() {
		return &exitError{code: exitCode(status)}
	}
	return nil
}

// inputs converts the flags and positional arguments into command inputs.
func (o runOptions) inputs(cfg *config.Config, args []string, stdin io.Reader) ([]any, error) {
	var in []any
	if o.split {
		for _, a := range args {
			in = append(in, procout.Split(a))
		}
	} else {
		in = append(in, args)
	}
	if o.dir != "" {
		in = append(in, procout.Dir(o.dir))
	}
	for _, kv := range cfg.EnvPairs() {
		in = append(in, envInput(kv))
	}
	for _, kv := range o.env {
		if _, _, ok := cutEnv(kv); !ok {
			return nil, fmt.Errorf("invalid --env %q (want KEY=VALUE)", kv)
		}
		in = append(in, envInput(kv))
	}
	switch o.stdinFile {
	case "":
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		in = append(in, procout.Stdin(data))
	default:
		data, err := os.ReadFile(o.stdinFile)
		if err != nil {
			return nil, fmt.Errorf("reading stdin file: %w", err)
		}
		in = append(in, procout.Stdin(data))
	}
	if o.logCommand || cfg.LogCommand {
		in = append(in, procout.LogCommand)
	}
	return in, nil
}

func envInput(kv string) procout.Env {
	k, v, _ := cutEnv(kv)
	return procout.SetEnv(k, v)
}

func cutEnv(kv string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(kv, "=")
	return key, value, ok && key != ""
}

// exitCode maps a failing child status to procout's own exit code.
// Signals map to 1.
func exitCode(s procout.Status) int {
	if s.Signal != "" || s.Code <= 0 {
		return 1
	}
	return s.Code
}

package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deixis/procout"
	"github.com/deixis/procout/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// previewLimit bounds each stream shown inline in a proc_run result.
const previewLimit = 4 << 10

type runParams struct {
	Argv       []string          `json:"argv,omitempty" jsonschema:"arguments taken verbatim, appended after split"`
	Split      string            `json:"split,omitempty" jsonschema:"command words separated by whitespace, e.g. 'git log --oneline'; no quoting is recognised"`
	Dir        string            `json:"dir,omitempty" jsonschema:"working directory, relative to the workspace"`
	Env        map[string]string `json:"env,omitempty" jsonschema:"extra environment variables"`
	Stdin      string            `json:"stdin,omitempty" jsonschema:"data written to the process's standard input"`
	Trim       bool              `json:"trim,omitempty" jsonschema:"trim leading and trailing whitespace from the stdout preview"`
	IgnoreExit bool              `json:"ignore_exit,omitempty" jsonschema:"report a failing exit status instead of returning an error"`
}

// inputs converts params into procout command inputs. Config env comes
// first so per-call values win.
func (p runParams) inputs(configEnv []string) []any {
	var in []any
	if p.Split != "" {
		in = append(in, procout.Split(p.Split))
	}
	if len(p.Argv) > 0 {
		in = append(in, p.Argv)
	}
	if p.Dir != "" {
		in = append(in, procout.Dir(p.Dir))
	}
	for _, kv := range configEnv {
		k, v, _ := strings.Cut(kv, "=")
		in = append(in, procout.SetEnv(k, v))
	}
	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		in = append(in, procout.SetEnv(k, p.Env[k]))
	}
	if p.Stdin != "" {
		in = append(in, procout.Stdin(p.Stdin))
	}
	if p.IgnoreExit {
		in = append(in, procout.IgnoreExit)
	}
	return in
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if params.Split == "" && len(params.Argv) == 0 {
		return errorResult("argv or split is required")
	}
	cfg, r := h.current()

	timeout := cfg.ServeTimeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := r.Command(params.inputs(cfg.EnvPairs())...)
	var (
		stdout procout.StdoutBytes
		stderr procout.StderrBytes
		meta   procout.Meta
		status procout.Status
	)
	outputs := []procout.Output{&stdout, &stderr, &meta}
	if params.IgnoreExit {
		outputs = append(outputs, &status)
	}

	started := time.Now()
	if err := cmd.Run(ctx, outputs...); err != nil {
		return errorResult(formatRunError(err, ctx.Err(), timeout))
	}

	run := &report.Run{
		ID:        meta.RunID,
		Command:   cmd.String(),
		Argv:      append(strings.Fields(params.Split), params.Argv...),
		Dir:       params.Dir,
		Code:      status.Code,
		Signal:    status.Signal,
		Stdout:    stdout,
		Stderr:    stderr,
		Truncated: meta.Truncated,
		TimedOut:  errors.Is(ctx.Err(), context.DeadlineExceeded),
		StartedAt: started,
		Duration:  meta.Duration,
	}
	if err := h.store.Save(run); err != nil {
		r.Logger.WarnContext(ctx, "saving run", "run_id", run.ID, "error", err)
	}

	return textResult(formatRun(run, params.Trim))
}

// formatRunError renders a failed call. Typed errors already name the
// command. A deadline kills the child, so it is checked before the exit
// status.
func formatRunError(err, ctxErr error, timeout time.Duration) string {
	var exitErr *procout.NonZeroExitError
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return fmt.Sprintf("%v (timed out after %s)", err, timeout)
	case errors.As(err, &exitErr):
		return fmt.Sprintf("%v\nSet ignore_exit=true to get the status and output of failing commands.", err)
	}
	return err.Error()
}

func formatRun(run *report.Run, trim bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Command: %s\n", run.Command)
	fmt.Fprintf(&b, "Run: %s\n", run.ID)
	fmt.Fprintf(&b, "Status: %s\n", procout.Status{Code: run.Code, Signal: run.Signal})
	fmt.Fprintf(&b, "Duration: %s\n", run.Duration.Round(time.Millisecond))
	if run.TimedOut {
		fmt.Fprintln(&b, "Timed out: the process was killed at the deadline")
	}
	if run.Truncated {
		fmt.Fprintln(&b, "Truncated: output exceeded the capture limit")
	}

	stdout := run.Stdout
	if trim {
		stdout = []byte(strings.TrimSpace(string(stdout)))
	}
	writeStream(&b, report.StreamStdout, stdout)
	writeStream(&b, report.StreamStderr, run.Stderr)

	fmt.Fprintf(&b, "\nInspect with proc_inspect(run_id=%q, stream=\"stdout|stderr\").\n", run.ID)
	return b.String()
}

func writeStream(b *strings.Builder, name string, data []byte) {
	fmt.Fprintln(b)
	switch {
	case len(data) == 0:
		fmt.Fprintf(b, "%s: (empty)\n", name)
		return
	case !utf8.Valid(data):
		fmt.Fprintf(b, "%s: %d bytes, not valid utf-8\n", name, len(data))
		return
	}
	fmt.Fprintf(b, "%s:\n", name)
	text := string(data)
	if len(text) > previewLimit {
		text = strings.ToValidUTF8(text[:previewLimit], "")
		fmt.Fprintln(b, text)
		fmt.Fprintf(b, "... (%d more bytes)\n", len(data)-len(text))
		return
	}
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteByte('\n')
	}
}

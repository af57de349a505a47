package procout

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRunner returns a runner whose relayed output lands in the returned
// buffers instead of the test binary's own streams.
func testRunner(t *testing.T) (*Runner, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	return &Runner{Stdout: &stdout, Stderr: &stderr}, &stdout, &stderr
}

func sh(script string) []string {
	return []string{"sh", "-c", script}
}

func TestRun_NoOutputs(t *testing.T) {
	r, stdout, _ := testRunner(t)
	err := r.Command("echo", "foo").Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "foo\n", stdout.String(), "uncaptured stdout is relayed")
}

func TestRun_SideEffects(t *testing.T) {
	r, _, _ := testRunner(t)
	file := filepath.Join(t.TempDir(), "touched")
	require.NoError(t, r.Run(context.Background(), "touch", file))
	require.FileExists(t, file)
}

func TestRun_NonZeroExit(t *testing.T) {
	r, _, _ := testRunner(t)
	err := r.Command("false").Run(context.Background())

	var exitErr *NonZeroExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, "false", exitErr.Command)
	assert.Equal(t, 1, exitErr.Status.Code)
	assert.EqualError(t, err, "false: exited with exit code 1")
}

func TestRun_NonZeroExitIncludesFullCommand(t *testing.T) {
	r, _, _ := testRunner(t)
	err := r.Command(sh("exit 42"), "ignored arg").Run(context.Background())
	require.EqualError(t, err, "sh -c 'exit 42' 'ignored arg': exited with exit code 42")
}

func TestRun_NonZeroExitWithOtherOutputs(t *testing.T) {
	r, _, _ := testRunner(t)
	var out StdoutTrimmed
	err := r.Command(sh("echo foo; exit 3")).Run(context.Background(), &out)
	var exitErr *NonZeroExitError
	require.ErrorAs(t, err, &exitErr)
	require.Empty(t, out, "outputs are not filled on failure")
}

func TestRun_StatusDisablesCheck(t *testing.T) {
	r, _, _ := testRunner(t)
	var status Status
	err := r.Command(sh("exit 42")).Run(context.Background(), &status)
	require.NoError(t, err)
	assert.Equal(t, 42, status.Code)
	assert.False(t, status.Success())
	assert.Equal(t, "exited with exit code 42", status.String())
}

func TestRun_StatusOnSuccess(t *testing.T) {
	r, _, _ := testRunner(t)
	var status Status
	require.NoError(t, r.Command("true").Run(context.Background(), &status))
	require.True(t, status.Success())
	require.Equal(t, 0, status.Code)
}

func TestRun_StatusSignal(t *testing.T) {
	r, _, _ := testRunner(t)
	var status Status
	require.NoError(t, r.Command(sh("kill -TERM $$")).Run(context.Background(), &status))
	assert.Equal(t, "terminated", status.Signal)
	assert.False(t, status.Success())

	err := r.Command(sh("kill -TERM $$")).Run(context.Background())
	require.EqualError(t, err, "sh -c 'kill -TERM $$': terminated by signal terminated")
}

func TestRun_Success(t *testing.T) {
	r, _, _ := testRunner(t)
	var ok Success
	require.NoError(t, r.Command("false").Run(context.Background(), &ok))
	require.False(t, bool(ok))

	require.NoError(t, r.Command("true").Run(context.Background(), &ok))
	require.True(t, bool(ok))
}

func TestRun_IgnoreExitPolicy(t *testing.T) {
	r, _, _ := testRunner(t)
	var out StdoutTrimmed
	err := r.Command(sh("echo partial; exit 1"), IgnoreExit).Run(context.Background(), &out)
	require.NoError(t, err)
	require.Equal(t, StdoutTrimmed("partial"), out)
}

func TestRun_StdoutTrimmed(t *testing.T) {
	r, stdout, _ := testRunner(t)
	var out StdoutTrimmed
	require.NoError(t, r.Command("printf", "  hi\n").Run(context.Background(), &out))
	require.Equal(t, StdoutTrimmed("hi"), out)
	require.Empty(t, stdout.String(), "captured stdout is not relayed")
}

func TestRun_StdoutTrimmedKeepsInteriorWhitespace(t *testing.T) {
	r, _, _ := testRunner(t)
	var out StdoutTrimmed
	require.NoError(t, r.Command("printf", "\n foo  bar \n\n").Run(context.Background(), &out))
	require.Equal(t, StdoutTrimmed("foo  bar"), out)
}

func TestRun_StdoutUntrimmed(t *testing.T) {
	r, stdout, _ := testRunner(t)
	var out StdoutUntrimmed
	require.NoError(t, r.Command("printf", "  hi\n").Run(context.Background(), &out))
	require.Equal(t, StdoutUntrimmed("  hi\n"), out)
	require.Empty(t, stdout.String())
}

func TestRun_EmptyOutput(t *testing.T) {
	r, _, _ := testRunner(t)
	var trimmed StdoutTrimmed
	var untrimmed StdoutUntrimmed
	var stderr Stderr
	require.NoError(t, r.Command("true").Run(context.Background(), &trimmed, &untrimmed, &stderr))
	require.Equal(t, StdoutTrimmed(""), trimmed)
	require.Equal(t, StdoutUntrimmed(""), untrimmed)
	require.Equal(t, Stderr(""), stderr)
}

func TestRun_StdoutAndStderrIndependent(t *testing.T) {
	r, relayOut, relayErr := testRunner(t)
	var out StdoutUntrimmed
	var errOut Stderr
	err := r.Command(sh("printf out; printf err >&2")).Run(context.Background(), &out, &errOut)
	require.NoError(t, err)
	assert.Equal(t, StdoutUntrimmed("out"), out)
	assert.Equal(t, Stderr("err"), errOut)
	assert.Empty(t, relayOut.String())
	assert.Empty(t, relayErr.String())
}

func TestRun_StderrRelayedUnlessCaptured(t *testing.T) {
	r, _, relayErr := testRunner(t)
	var out StdoutTrimmed
	require.NoError(t, r.Command(sh("echo out; echo err >&2")).Run(context.Background(), &out))
	require.Equal(t, StdoutTrimmed("out"), out)
	require.Equal(t, "err\n", relayErr.String())
}

func TestRun_StderrOnFailure(t *testing.T) {
	r, _, _ := testRunner(t)
	var errOut Stderr
	var status Status
	err := r.Command("ls", "/does-not-exist-procout").Run(context.Background(), &errOut, &status)
	require.NoError(t, err)
	require.NotEqual(t, 0, status.Code)
	require.Contains(t, string(errOut), "No such file or directory")
}

func TestRun_InvalidUTF8Stdout(t *testing.T) {
	r, _, _ := testRunner(t)
	var out StdoutTrimmed
	err := r.Command("printf", `ok\200`).Run(context.Background(), &out)

	var decErr *DecodingError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "stdout", decErr.Stream)
	assert.Equal(t, 2, decErr.Offset)
	assert.EqualError(t, err, `printf ok\200: invalid utf-8 written to stdout`)
}

func TestRun_InvalidUTF8Stderr(t *testing.T) {
	r, _, _ := testRunner(t)
	var errOut Stderr
	err := r.Command(sh(`printf '\200' >&2`)).Run(context.Background(), &errOut)

	var decErr *DecodingError
	require.ErrorAs(t, err, &decErr)
	require.Equal(t, "stderr", decErr.Stream)
}

func TestRun_InvalidUTF8AllowedWhenNotDecoded(t *testing.T) {
	r, relayOut, _ := testRunner(t)
	require.NoError(t, r.Command("printf", `\200`).Run(context.Background()))
	require.Equal(t, []byte{0x80}, relayOut.Bytes())

	var raw StdoutBytes
	require.NoError(t, r.Command("printf", `a\200`).Run(context.Background(), &raw))
	require.Equal(t, StdoutBytes{'a', 0x80}, raw)
}

func TestRun_StderrBytes(t *testing.T) {
	r, _, _ := testRunner(t)
	var raw StderrBytes
	require.NoError(t, r.Command(sh(`printf '\377' >&2`)).Run(context.Background(), &raw))
	require.Equal(t, StderrBytes{0xff}, raw)
}

func TestRun_SpawnErrorNotFound(t *testing.T) {
	r, _, _ := testRunner(t)
	err := r.Command(Split("does-not-exist-procout foo bar")).Run(context.Background())

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "does-not-exist-procout foo bar", spawnErr.Command)
	assert.True(t, errors.Is(err, exec.ErrNotFound))
	assert.True(t, strings.HasPrefix(err.Error(), "does-not-exist-procout foo bar: "))
}

func TestRun_SpawnErrorPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can execute files without the execute bit")
	}
	r, _, _ := testRunner(t)
	script := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho hi\n"), 0o644))

	err := r.Command(script).Run(context.Background())
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	require.True(t, errors.Is(err, fs.ErrPermission))
}

func TestRun_NoArguments(t *testing.T) {
	r, _, _ := testRunner(t)
	err := r.Command([]string{}).Run(context.Background())
	require.ErrorIs(t, err, ErrNoArguments)
	require.EqualError(t, err, "no arguments given")
}

func TestRun_NilOutput(t *testing.T) {
	r, stdout, _ := testRunner(t)
	var out StdoutTrimmed

	err := r.Command("echo", "foo").Run(context.Background(), &out, (*Status)(nil))
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	require.EqualError(t, err, "nil *procout.Status")

	err = r.Command("echo", "foo").Run(context.Background(), nil)
	require.EqualError(t, err, "nil input")
	require.Empty(t, stdout.String(), "nothing is spawned")
}

func TestRun_UnsupportedInput(t *testing.T) {
	r, _, _ := testRunner(t)
	err := r.Command("echo", struct{}{}).Run(context.Background())
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
}

func TestRun_Dir(t *testing.T) {
	r, _, _ := testRunner(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), []byte("here"), 0o644))

	var out StdoutTrimmed
	require.NoError(t, r.Command("cat", "marker", Dir(dir)).Run(context.Background(), &out))
	require.Equal(t, StdoutTrimmed("here"), out)
}

func TestRun_Workspace(t *testing.T) {
	r, _, _ := testRunner(t)
	r.Workspace = t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(r.Workspace, "sub"), 0o755))

	var out StdoutTrimmed
	require.NoError(t, r.Command("pwd", Dir("sub")).Run(context.Background(), &out))
	require.Equal(t, "sub", filepath.Base(string(out)))

	err := r.Command("pwd", Dir("..")).Run(context.Background())
	require.ErrorContains(t, err, "outside workspace")
}

func TestRun_Env(t *testing.T) {
	r, _, _ := testRunner(t)
	t.Setenv("PROCOUT_INHERITED", "parent")

	var out StdoutTrimmed
	err := r.Command(
		sh(`printf '%s-%s-%s' "$PROCOUT_INHERITED" "$PROCOUT_A" "$PROCOUT_EMPTY"`),
		SetEnv("PROCOUT_A", "a"),
		SetEnv("PROCOUT_A", "b"),
		SetEnv("PROCOUT_EMPTY", ""),
	).Run(context.Background(), &out)
	require.NoError(t, err)
	require.Equal(t, StdoutTrimmed("parent-b-"), out)
}

func TestRun_EnvOverridesParent(t *testing.T) {
	r, _, _ := testRunner(t)
	t.Setenv("PROCOUT_OVERRIDE", "parent")

	var out StdoutTrimmed
	err := r.Command(sh(`printf %s "$PROCOUT_OVERRIDE"`), SetEnv("PROCOUT_OVERRIDE", "child")).Run(context.Background(), &out)
	require.NoError(t, err)
	require.Equal(t, StdoutTrimmed("child"), out)
}

func TestRun_Stdin(t *testing.T) {
	r, _, _ := testRunner(t)
	var out StdoutUntrimmed
	require.NoError(t, r.Command("cat", Stdin("foo"), Stdin([]byte{'b', 'a', 'r'})).Run(context.Background(), &out))
	require.Equal(t, StdoutUntrimmed("foobar"), out)
}

func TestRun_StdinClosedByDefault(t *testing.T) {
	r, _, _ := testRunner(t)
	var out StdoutUntrimmed
	require.NoError(t, r.Command("cat").Run(context.Background(), &out))
	require.Equal(t, StdoutUntrimmed(""), out)
}

func TestRun_LogCommand(t *testing.T) {
	r, _, relayErr := testRunner(t)
	var out StdoutTrimmed
	require.NoError(t, r.Command("echo", "foo bar", "", LogCommand).Run(context.Background(), &out))
	require.Equal(t, "+ echo 'foo bar' ''\n", relayErr.String())
}

func TestRun_MultipleOutputsInOrder(t *testing.T) {
	r, _, _ := testRunner(t)
	var (
		trimmed   StdoutTrimmed
		untrimmed StdoutUntrimmed
		status    Status
		meta      Meta
	)
	err := r.Command(sh("echo foo; exit 7")).Run(context.Background(), &trimmed, &untrimmed, &status, &meta)
	require.NoError(t, err)
	assert.Equal(t, StdoutTrimmed("foo"), trimmed)
	assert.Equal(t, StdoutUntrimmed("foo\n"), untrimmed)
	assert.Equal(t, 7, status.Code)
	assert.NotEmpty(t, meta.RunID)
	assert.False(t, meta.Truncated)
}

func TestRun_MetaKeepsCheck(t *testing.T) {
	r, _, _ := testRunner(t)
	var meta Meta
	err := r.Command("false").Run(context.Background(), &meta)
	var exitErr *NonZeroExitError
	require.ErrorAs(t, err, &exitErr)
}

func TestRun_MaxOutput(t *testing.T) {
	r, _, _ := testRunner(t)
	r.MaxOutput = 4
	var out StdoutUntrimmed
	var meta Meta
	require.NoError(t, r.Command("printf", "abcdefgh").Run(context.Background(), &out, &meta))
	require.Equal(t, StdoutUntrimmed("abcd"), out)
	require.True(t, meta.Truncated)
}

func TestRun_MaxOutputSplitsCharacter(t *testing.T) {
	r, _, _ := testRunner(t)
	r.MaxOutput = 4
	var out StdoutUntrimmed
	var meta Meta
	require.NoError(t, r.Command("printf", "abc\303\251").Run(context.Background(), &out, &meta))
	require.Equal(t, StdoutUntrimmed("abc"), out, "the partial character at the cut is dropped")
	require.True(t, meta.Truncated)
}

func TestRun_MaxOutputKeepsInvalidUTF8Error(t *testing.T) {
	r, _, _ := testRunner(t)
	r.MaxOutput = 4
	var out StdoutUntrimmed
	err := r.Command("printf", "ab\377cdef").Run(context.Background(), &out)
	var decErr *DecodingError
	require.ErrorAs(t, err, &decErr)
	require.Equal(t, 2, decErr.Offset)
}

func TestRun_TruncatedStderrDoesNotMaskStdout(t *testing.T) {
	r, _, _ := testRunner(t)
	r.MaxOutput = 4
	var out StdoutUntrimmed
	var errText Stderr
	err := r.Command(sh(`printf 'ab\303'; printf 'long stderr' >&2`)).Run(context.Background(), &out, &errText)
	var decErr *DecodingError
	require.ErrorAs(t, err, &decErr, "stdout was not cut, so its trailing byte is invalid")
	require.Equal(t, "stdout", decErr.Stream)
}

func TestRun_Logger(t *testing.T) {
	r, _, _ := testRunner(t)
	var logs bytes.Buffer
	r.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	require.NoError(t, r.Command("true").Run(context.Background()))
	assert.Contains(t, logs.String(), "msg=spawning")
	assert.Contains(t, logs.String(), "msg=\"process exited\"")
	assert.Contains(t, logs.String(), "command=true")
}

func TestRun_Cancelled(t *testing.T) {
	r, _, _ := testRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Command("sleep", "10").Run(ctx)
	require.Error(t, err)
}

func TestRunner_Reusable(t *testing.T) {
	r, _, _ := testRunner(t)
	cmd := r.Command(sh("echo $$"))
	var first, second StdoutTrimmed
	require.NoError(t, cmd.Run(context.Background(), &first))
	require.NoError(t, cmd.Run(context.Background(), &second))
	require.NotEqual(t, first, second, "each run spawns a new process")
}

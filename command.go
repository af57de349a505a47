package procout

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// Cmd is a command ready to run. It is built from a list of inputs by
// Command or Runner.Command and can be run any number of times.
type Cmd struct {
	runner *Runner
	inputs []any
}

// Command builds a command run by DefaultRunner.
//
// Inputs can be:
//
//   - string: a single argument, never split
//   - []string: one argument per element, never split
//   - Split: whitespace-separated words, one argument each
//   - Dir: the working directory
//   - Env: an environment variable added to the inherited environment
//   - Stdin: bytes written to the child's stdin
//   - LogCommand: print "+ <command>" to the relay stderr before running
//   - ExitPolicy: CheckExit or IgnoreExit
//   - *Cmd or []any: nested inputs
//
// The first argument is the executable. Unsupported inputs are reported
// by Run as an *InputError.
func Command(inputs ...any) *Cmd {
	return DefaultRunner.Command(inputs...)
}

// Split is a string that is split on whitespace into separate arguments.
// No quoting or escaping is recognised.
type Split string

// Dir sets the working directory of the child process.
type Dir string

// Env is an environment variable set for the child process. Later values
// for the same key win.
type Env struct {
	Key   string
	Value string
}

// SetEnv returns an Env input.
func SetEnv(key, value string) Env {
	return Env{Key: key, Value: value}
}

// Stdin is written to the child's standard input. Multiple Stdin inputs are
// concatenated in order. Without one, the child's stdin is empty.
type Stdin []byte

// Flag is a boolean command option.
type Flag uint8

const (
	// LogCommand writes "+ <command>" to the relay stderr before spawning.
	LogCommand Flag = iota + 1
)

// ExitPolicy decides whether a failure exit status fails the call.
type ExitPolicy uint8

const (
	// CheckExit fails the call with *NonZeroExitError unless the process
	// exits successfully. It is the default.
	CheckExit ExitPolicy = iota
	// IgnoreExit returns normally whatever the exit status.
	IgnoreExit
)

func (p ExitPolicy) String() string {
	switch p {
	case CheckExit:
		return "check"
	case IgnoreExit:
		return "ignore"
	}
	return fmt.Sprintf("ExitPolicy(%d)", uint8(p))
}

// config is the parsed form of a command's inputs plus the needs declared
// by the requested outputs.
type config struct {
	argv       []string
	dir        string
	env        []string
	stdin      []byte
	logCommand bool
	policy     ExitPolicy
	capture    captureSet
}

type captureSet struct {
	stdout bool
	stderr bool
}

func (c *config) add(input any) error {
	switch v := input.(type) {
	case string:
		c.argv = append(c.argv, v)
	case []string:
		c.argv = append(c.argv, v...)
	case Split:
		c.argv = append(c.argv, strings.Fields(string(v))...)
	case Dir:
		c.dir = string(v)
	case Env:
		c.env = append(c.env, v.Key+"="+v.Value)
	case Stdin:
		c.stdin = append(c.stdin, v...)
	case Flag:
		if v != LogCommand {
			return &InputError{Value: input}
		}
		c.logCommand = true
	case ExitPolicy:
		if v == IgnoreExit {
			c.policy = IgnoreExit
		}
	case *Cmd:
		if v == nil {
			return &InputError{Value: input}
		}
		for _, in := range v.inputs {
			if err := c.add(in); err != nil {
				return err
			}
		}
	case []any:
		for _, in := range v {
			if err := c.add(in); err != nil {
				return err
			}
		}
	default:
		return &InputError{Value: input}
	}
	return nil
}

// isNil reports whether v is nil or a nil pointer.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func parseInputs(inputs []any) (*config, error) {
	c := &config{}
	for _, in := range inputs {
		if err := c.add(in); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// String renders the command's arguments the way they appear in logs and
// error messages.
func (c *Cmd) String() string {
	cfg, err := parseInputs(c.inputs)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return formatArgv(cfg.argv)
}

// formatArgv joins argv with spaces, single-quoting arguments that are
// empty or contain whitespace or quotes.
func formatArgv(argv []string) string {
	var b strings.Builder
	for i, arg := range argv {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(quoteArg(arg))
	}
	return b.String()
}

func quoteArg(arg string) string {
	if arg != "" && !strings.ContainsFunc(arg, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\'' || r == '"'
	}) {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

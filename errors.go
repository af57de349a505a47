package procout

import (
	"errors"
	"fmt"
)

// ErrNoArguments is returned when a command has no executable.
var ErrNoArguments = errors.New("no arguments given")

// InputError reports an input of a type Command does not understand, or a
// nil input or output.
type InputError struct {
	Value any
}

func (e *InputError) Error() string {
	if e.Value == nil {
		return "nil input"
	}
	if isNil(e.Value) {
		return fmt.Sprintf("nil %T", e.Value)
	}
	if f, ok := e.Value.(Flag); ok {
		return fmt.Sprintf("unsupported flag %d", uint8(f))
	}
	return fmt.Sprintf("unsupported input of type %T", e.Value)
}

// SpawnError is returned when the process could not be created, for example
// because the executable was not found or is not executable. It unwraps to
// the underlying system error.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// NonZeroExitError is returned when the process did not exit successfully
// and no requested output asked for the exit status.
type NonZeroExitError struct {
	Command string
	Status  Status
}

func (e *NonZeroExitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Status)
}

// DecodingError is returned when a captured stream requested as text is not
// valid utf-8.
type DecodingError struct {
	Command string
	Stream  string // "stdout" or "stderr"
	Offset  int    // byte offset of the first invalid sequence
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("%s: invalid utf-8 written to %s", e.Command, e.Stream)
}

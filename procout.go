// Package procout runs child processes and decomposes their outcome into
// typed values chosen by the caller.
//
// A call names the command and lists the outputs it wants:
//
//	var out procout.StdoutTrimmed
//	err := procout.Command(procout.Split("git --version")).Run(ctx, &out)
//
// Each output declares which streams have to be captured and whether the
// exit status is checked. Streams nobody asked for are relayed to the
// parent's stdout and stderr while the child runs.
//
// # Exit status policy
//
// By default a process that does not exit successfully makes the call fail
// with a *NonZeroExitError. Requesting a *Status or *Success output, or
// passing IgnoreExit as an input, switches the check off so the caller can
// branch on the status explicitly:
//
//	var status procout.Status
//	err := procout.Command("false").Run(ctx, &status)
//	// err == nil, status.Code == 1
//
// # Shortcuts
//
// Run executes a command for its side effects. Get and Get2 select the
// outputs through type parameters:
//
//	version, err := procout.Get[procout.StdoutTrimmed](ctx, procout.Split("go version"))
package procout

// Version is the procout version.
const Version = "0.3.0"

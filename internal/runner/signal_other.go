//go:build !unix

package runner

import "os/exec"

func signalName(*exec.ExitError) string { return "" }

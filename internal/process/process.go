// Package process runs the external downloader and relocator with their output captured
// into a task log. Runs are not bounded in time; a hung tool blocks its caller until it exits.
package process

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"autodl/internal/command"
)

// Runner executes one external command, streaming stdout and stderr into sink.
type Runner interface {
	Run(executable string, args []string, sink io.Writer) error
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct{}

// Run writes a trace line naming the command to sink, then runs it to completion with
// both output streams redirected into sink.
func (ExecRunner) Run(executable string, args []string, sink io.Writer) error {
	if _, err := fmt.Fprintf(sink, "\n$ %s\n", command.String(executable, args)); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	cmd := exec.Command(executable, args...) //nolint:gosec // executable comes from validated configuration
	cmd.Stdout = sink
	cmd.Stderr = sink
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", executable, err)
	}
	return nil
}

// ExitCode extracts the exit status from a Run error, or -1 when the process never
// produced one (spawn failure, signal).
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// CheckRunnable runs the downloader's version query and returns its trimmed output.
// Callers treat a failure as fatal at startup.
func CheckRunnable(executable string) (string, error) {
	out, err := exec.Command(executable, command.VersionArgs()...).CombinedOutput() //nolint:gosec // executable comes from configuration
	if err != nil {
		return "", fmt.Errorf("downloader could not be run from path %s: %w", executable, err)
	}
	return strings.TrimSpace(string(out)), nil
}

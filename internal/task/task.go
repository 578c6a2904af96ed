// Package task wraps external process execution: supervised runs that
// block until exit, and detached spawns that outlive the parent.
package task

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// Run executes an external command to completion, wiring its output to the
// given writers. The context cancels the process.
func Run(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Spawn starts a detached process in its own session so it survives the
// spawning process. Output is inherited; the child is expected to redirect
// its own logging. Returns the child pid.
func Spawn(name string, args ...string) (int, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawn %s: %w", name, err)
	}
	pid := cmd.Process.Pid
	// Detach: the child's exit status is collected by init, not us.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release %s: %w", name, err)
	}
	return pid, nil
}

//go:build unix

package command

import (
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// applyPlatformAttrs puts the child in its own process group and asks the
// kernel to kill it if this process dies first, matching
// processmgr/process.go's newProcess.
func applyPlatformAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

// shellCmd returns the POSIX shell invocation prefix for shell=True.
func shellCmd() []string { return []string{"/bin/sh", "-c"} }

// scriptInterpreter never fires on unix: the kernel's #! handling already
// makes scripts directly executable.
func scriptInterpreter(path string) (string, bool) { return "", false }

// Signal delivers sig to the child's entire process group, matching
// processmgr/process.go's use of syscall.Kill(-pid, ...).
func (c *Command) Signal(sig syscall.Signal) error {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return fmt.Errorf("command: Signal called before Start")
	}
	return syscall.Kill(-cmd.Process.Pid, sig)
}

// Terminate asks the child's process group to exit via SIGTERM.
func (c *Command) Terminate() error { return c.Signal(syscall.SIGTERM) }

// Kill forces the child's process group to exit via SIGKILL.
func (c *Command) Kill() error { return c.Signal(syscall.SIGKILL) }

// Stop sends SIGTERM and escalates to SIGKILL if the child hasn't exited
// within grace, mirroring processmgr/process.go's Close().
func (c *Command) Stop(grace time.Duration) error {
	if err := c.Terminate(); err != nil {
		return err
	}
	if _, err := c.Wait(grace); err == nil {
		return nil
	}
	return c.Kill()
}

//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// detachFromTerminal puts the spawned server in its own process group so it
// survives the CLI exiting and ignores the terminal's signals
func detachFromTerminal(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

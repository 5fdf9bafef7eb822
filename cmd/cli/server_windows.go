//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// detachFromTerminal puts the spawned server in its own process group so it
// survives the CLI exiting and ignores the console's ctrl events
func detachFromTerminal(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

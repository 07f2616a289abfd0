//go:build windows

package tactile

import (
	"fmt"
	"os/exec"
	"syscall"
)

// killProcessGroup kills the process and attempts to terminate child processes.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	// On Windows, use taskkill to kill process tree
	killCmd := exec.Command("taskkill", "/F", "/T", "/PID", fmt.Sprintf("%d", cmd.Process.Pid))
	killCmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}

	if err := killCmd.Run(); err != nil {
		// Fall back to direct kill
		return cmd.Process.Kill()
	}

	return nil
}

// setupProcessGroup hides the console window; the tree is killed by taskkill.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
}

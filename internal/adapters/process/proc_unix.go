//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

// killProcessTree starts cmd in its own process group and signals the group on cancel.
func killProcessTree(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

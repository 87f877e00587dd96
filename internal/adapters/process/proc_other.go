//go:build !unix

package process

import "os/exec"

// killProcessTree keeps the default cancel behaviour, which kills the direct child.
func killProcessTree(cmd *exec.Cmd) {}

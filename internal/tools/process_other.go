//go:build !unix

package tools

import "os/exec"

// killProcessGroup leaves the default kill of the direct child in place; WaitDelay
// still bounds the wait for pipes held open by grandchildren.
func killProcessGroup(cmd *exec.Cmd) {}

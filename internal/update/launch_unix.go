// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

//go:build !windows

package update

import (
	"fmt"
	"os/exec"
	"syscall"
)

// Launch starts the update script detached from the host process.
func Launch(script string) error {
	cmd := exec.Command("/bin/sh", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", script, err)
	}
	return cmd.Process.Release()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

//go:build windows

package update

import (
	"fmt"
	"os/exec"
	"syscall"
)

const createNewConsole = 0x00000010

// Launch starts the update script in its own console.
func Launch(script string) error {
	cmd := exec.Command("cmd", "/c", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: createNewConsole | syscall.CREATE_NEW_PROCESS_GROUP,
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", script, err)
	}
	return cmd.Process.Release()
}

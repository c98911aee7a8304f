//go:build windows

package executor

import (
	"os/exec"
	"syscall"
)

// createNoWindow keeps powercfg from flashing a console when the tray
// process was started without one.
const createNoWindow = 0x08000000

func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow,
	}
}

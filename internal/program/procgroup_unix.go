//go:build unix

package program

import (
	"errors"
	"os/exec"
	"syscall"
)

// setGroup starts cmd as the leader of a new process group so that signals
// reach the programs it spawns.
func setGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// signalGroup sends sig to cmd's process group, or to cmd alone when it
// leads none.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	if cmd.SysProcAttr != nil && cmd.SysProcAttr.Setpgid {
		err := syscall.Kill(-cmd.Process.Pid, sig)
		if !errors.Is(err, syscall.ESRCH) {
			return err
		}
	}
	return cmd.Process.Signal(sig)
}

//go:build !unix

package relay

import (
	"errors"
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// killGroup only reaches the direct child here; descendants are handled by
// the straggler pass in Kill.
func killGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func signalCode(*os.ProcessState) (int, bool) { return 0, false }

func isGone(err error) bool { return errors.Is(err, os.ErrProcessDone) }

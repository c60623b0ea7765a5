package relay

import (
	"errors"
	"os/exec"
)

// Status is the exit label used by the relay exit counter.
func (e Exit) Status() string {
	switch e.Kind {
	case NaturalEnd:
		return "success"
	case Killed:
		return "killed"
	}
	switch e.Code {
	case 0:
		return "success"
	case 1:
		return "generic_error"
	case 2:
		return "invalid_argument"
	case 137:
		return "out_of_memory"
	case 139:
		return "segmentation_fault"
	}
	return "unknown_error"
}

// exitFromWait maps the result of exec.Cmd.Wait onto an Exit. Code 0 wins
// over a racing Kill.
func exitFromWait(err error, killed bool) Exit {
	if err == nil {
		return Exit{Kind: NaturalEnd}
	}
	code := -1
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code = ee.ExitCode()
		if code == -1 {
			if sc, ok := signalCode(ee.ProcessState); ok {
				code = sc
			}
		}
	}
	if killed {
		return Exit{Kind: Killed, Code: code}
	}
	return Exit{Kind: Failed, Code: code}
}

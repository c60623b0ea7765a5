// Package relay owns the ffmpeg processes that push a local file to the
// downstream sink. A Channel role holds at most one live process.
package relay

import "fmt"

// Channel is the role a relay process plays on the single output.
type Channel int

const (
	Filler Channel = iota
	Content
)

func (c Channel) String() string {
	switch c {
	case Filler:
		return "filler"
	case Content:
		return "content"
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// ExitKind classifies how a relay process ended.
type ExitKind int

const (
	// NaturalEnd means the process exited 0 on its own.
	NaturalEnd ExitKind = iota
	// Killed means Kill was called on the handle.
	Killed
	// Failed covers every other exit; Exit.Code holds the code.
	Failed
)

func (k ExitKind) String() string {
	switch k {
	case NaturalEnd:
		return "natural_end"
	case Killed:
		return "killed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Exit is the normalized result of waiting on a relay process. Code is the
// process exit code, or 128+n for termination by signal n.
type Exit struct {
	Kind ExitKind
	Code int
}

func (e Exit) Natural() bool { return e.Kind == NaturalEnd }

func (e Exit) String() string {
	if e.Kind == Failed {
		return fmt.Sprintf("failed(%d)", e.Code)
	}
	return e.Kind.String()
}

// Handle is a running relay process.
type Handle interface {
	PID() int
	// Wait blocks until the process has exited.
	Wait() Exit
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Kill terminates the process and its descendants. Killing an exited
	// process is a no-op.
	Kill() error
}

// Spawner starts relay processes.
type Spawner interface {
	Spawn(path string, loop bool) (Handle, error)
}

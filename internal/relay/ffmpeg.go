package relay

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	psproc "github.com/shirou/gopsutil/v4/process"
)

// DefaultBinary is looked up on PATH.
const DefaultBinary = "ffmpeg"

// FFmpegConfig configures the ffmpeg spawner.
type FFmpegConfig struct {
	Binary string
	// Sink is the downstream RTMP URL every process publishes to.
	Sink string
	// Verbose forwards ffmpeg output to this process's stderr.
	Verbose bool
	Logger  zerolog.Logger
}

// FFmpeg spawns ffmpeg relays against a fixed sink.
type FFmpeg struct {
	bin     string
	sink    string
	verbose bool
	log     zerolog.Logger

	commandFn func(name string, args ...string) *exec.Cmd
}

func NewFFmpeg(cfg FFmpegConfig) *FFmpeg {
	bin := strings.TrimSpace(cfg.Binary)
	if bin == "" {
		bin = DefaultBinary
	}
	return &FFmpeg{bin: bin, sink: cfg.Sink, verbose: cfg.Verbose, log: cfg.Logger, commandFn: exec.Command}
}

// Args builds the ffmpeg command line for path. Looping replays the input
// inside ffmpeg without restarting the process.
func (f *FFmpeg) Args(path string, loop bool) []string {
	args := []string{"-re"}
	if loop {
		args = append(args, "-stream_loop", "-1")
	}
	return append(args,
		"-i", path,
		"-vf", "scale=640:360",
		"-c:v", "libx264", "-preset", "veryfast", "-tune", "zerolatency",
		"-c:a", "aac", "-ar", "44100",
		"-f", "flv", f.sink,
	)
}

// Spawn starts ffmpeg in its own process group.
func (f *FFmpeg) Spawn(path string, loop bool) (Handle, error) {
	cmd := f.commandFn(f.bin, f.Args(path, loop)...)
	setProcessGroup(cmd)
	if f.verbose {
		if cmd.Stdout == nil {
			cmd.Stdout = os.Stderr
		}
		if cmd.Stderr == nil {
			cmd.Stderr = os.Stderr
		}
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", f.bin, err)
	}
	p := &proc{
		cmd:  cmd,
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
		log:  f.log.With().Int("pid", cmd.Process.Pid).Logger(),
	}
	go p.reap()
	return p, nil
}

type proc struct {
	cmd    *exec.Cmd
	pid    int
	log    zerolog.Logger
	killed atomic.Bool
	done   chan struct{}
	exit   Exit
	killMu sync.Mutex
}

func (p *proc) PID() int { return p.pid }

func (p *proc) reap() {
	err := p.cmd.Wait()
	p.exit = exitFromWait(err, p.killed.Load())
	close(p.done)
}

func (p *proc) Wait() Exit {
	<-p.done
	return p.exit
}

func (p *proc) Done() <-chan struct{} { return p.done }

// Kill collects the descendants first, since they are reparented once the
// group leader dies, then kills the group and any descendant that left it.
func (p *proc) Kill() error {
	p.killMu.Lock()
	defer p.killMu.Unlock()
	select {
	case <-p.done:
		return nil
	default:
	}
	p.killed.Store(true)
	victims := descendants(p.pid)

	var errs []error
	if err := killGroup(p.pid); err != nil && !isGone(err) {
		errs = append(errs, fmt.Errorf("kill group %d: %w", p.pid, err))
	}
	for _, v := range victims {
		if err := v.Kill(); err != nil && !isGone(err) && !errors.Is(err, psproc.ErrorProcessNotRunning) {
			if ok, _ := psproc.PidExists(v.Pid); ok {
				errs = append(errs, fmt.Errorf("kill descendant %d: %w", v.Pid, err))
			}
		}
	}
	p.log.Debug().Str("event", "relay_kill").Int("descendants", len(victims)).Msg("killed relay process tree")
	return errors.Join(errs...)
}

// descendants walks the process tree below pid. Lookup failures just end
// that branch.
func descendants(pid int) []*psproc.Process {
	root, err := psproc.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	var out []*psproc.Process
	queue := []*psproc.Process{root}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		children, err := next.Children()
		if err != nil {
			continue
		}
		out = append(out, children...)
		queue = append(queue, children...)
	}
	return out
}

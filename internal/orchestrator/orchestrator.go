package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"relayd/internal/cache"
	"relayd/internal/content"
	"relayd/internal/relay"
)

// defaultFillerRetry paces filler restarts after a failed spawn or an
// unexpected exit.
const defaultFillerRetry = 2 * time.Second

// defaultFillerStopTimeout bounds the wait for a killed filler to exit before
// a session gives up the gate.
const defaultFillerStopTimeout = 10 * time.Second

// Config wires an Orchestrator to its collaborators.
type Config struct {
	// FillerPath is looped whenever no content holds the channel. Empty
	// disables the filler.
	FillerPath string
	Cache      *cache.Cache
	Fetcher    content.Fetcher
	Relay      *relay.Manager
	Publisher  EventPublisher
	Logger     zerolog.Logger
	// SnapshotPath receives the cache index on Close. Empty, or
	// ClearCacheOnClose, clears the cache instead.
	SnapshotPath      string
	ClearCacheOnClose bool
	FillerRetry       time.Duration
	FillerStopTimeout time.Duration
}

// Session describes the content holding the channel.
type Session struct {
	Ref       content.Ref
	Title     string
	Thumbnail string
	Source    string
	Playlist  *PlaylistProgress
	Loop      bool
	StartedAt time.Time
}

// PlaylistProgress locates the current item within a playlist traversal.
type PlaylistProgress struct {
	ID    string
	Title string
	Index int
	Len   int
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Playlist != nil {
		p := *s.Playlist
		c.Playlist = &p
	}
	return &c
}

// Orchestrator owns the channel: the filler loop, content sessions and the
// gate between them. All methods are safe for concurrent use.
type Orchestrator struct {
	cache        *cache.Cache
	fetcher      content.Fetcher
	relay        *relay.Manager
	pub          EventPublisher
	log          zerolog.Logger
	fillerPath   string
	fillerRetry  time.Duration
	fillerStop   time.Duration
	snapshotPath string
	clearOnClose bool
	startTime    time.Time

	mu   sync.RWMutex
	cond *sync.Cond
	// held is set while a content session owns the gate.
	held    bool
	filler  relay.Handle
	content relay.Handle
	session *Session
	cancel  context.CancelFunc
	started bool
	closed  bool

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New constructs an Orchestrator. Call Start to launch the filler loop.
func New(cfg Config) *Orchestrator {
	ctx, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		cache:        cfg.Cache,
		fetcher:      cfg.Fetcher,
		relay:        cfg.Relay,
		pub:          cfg.Publisher,
		log:          cfg.Logger,
		fillerPath:   cfg.FillerPath,
		fillerRetry:  cfg.FillerRetry,
		fillerStop:   cfg.FillerStopTimeout,
		snapshotPath: cfg.SnapshotPath,
		clearOnClose: cfg.ClearCacheOnClose,
		startTime:    time.Now(),
		ctx:          ctx,
		stop:         stop,
	}
	if o.pub == nil {
		o.pub = noopPublisher{}
	}
	if o.fillerRetry <= 0 {
		o.fillerRetry = defaultFillerRetry
	}
	if o.fillerStop <= 0 {
		o.fillerStop = defaultFillerStopTimeout
	}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// Start launches the filler loop when a filler is configured. It is a no-op
// after the first call.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.started {
		return nil
	}
	o.started = true
	if o.fillerPath == "" {
		o.log.Info().Str("event", "filler_disabled").Msg("no interlude configured")
		return nil
	}
	o.wg.Add(1)
	go o.fillerLoop()
	return nil
}

// Ready reports whether the orchestrator accepts requests.
func (o *Orchestrator) Ready() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.started && !o.closed
}

// Close stops accepting requests, kills both relays, waits for every
// playback goroutine and then either snapshots or clears the cache.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	if o.cancel != nil {
		o.cancel()
	}
	o.stop()
	o.cond.Broadcast()
	o.mu.Unlock()

	o.relay.KillAll()
	o.wg.Wait()

	var err error
	if o.snapshotPath != "" && !o.clearOnClose {
		err = o.cache.Snapshot(o.snapshotPath)
	} else {
		o.cache.Clear()
	}
	o.publish(EventShutdown, "", nil)
	o.log.Info().Str("event", "shutdown").Msg("orchestrator closed")
	return err
}

func (o *Orchestrator) publish(name string, ref content.Ref, fields map[string]any) {
	o.pub.Publish(Event{Name: name, Ref: string(ref), Fields: fields})
}

package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"relayd/internal/cache"
	"relayd/internal/content"
	"relayd/internal/relay"
)

const fillerPath = "/media/interlude.mp4"

// fakeHandle is a relay process whose exit the test controls.
type fakeHandle struct {
	pid   int
	path  string
	loop  bool
	sp    *fakeSpawner
	once  sync.Once
	done  chan struct{}
	exit  relay.Exit
	// stuck handles refuse to die: Kill fails and the process keeps running.
	stuck bool
}

func (h *fakeHandle) PID() int              { return h.pid }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) Wait() relay.Exit      { <-h.done; return h.exit }
func (h *fakeHandle) Kill() error {
	if h.stuck {
		return syscall.EPERM
	}
	h.finish(relay.Exit{Kind: relay.Killed})
	return nil
}

func (h *fakeHandle) finish(e relay.Exit) {
	h.once.Do(func() {
		h.exit = e
		h.sp.live.Add(-1)
		close(h.done)
	})
}

func (h *fakeHandle) isFiller() bool { return h.path == fillerPath }

func (h *fakeHandle) killed(t *testing.T) bool {
	t.Helper()
	select {
	case <-h.done:
		return h.exit.Kind == relay.Killed
	case <-time.After(5 * time.Second):
		return false
	}
}

// fakeSpawner records every spawn and flags any moment with two live relays.
type fakeSpawner struct {
	live       atomic.Int32
	violations atomic.Int32
	pids       atomic.Int32
	spawned    chan *fakeHandle
	failNext   atomic.Bool
	stuckNext  atomic.Bool
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{spawned: make(chan *fakeHandle, 128)}
}

func (s *fakeSpawner) Spawn(path string, loop bool) (relay.Handle, error) {
	if s.failNext.CompareAndSwap(true, false) {
		return nil, errors.New("spawn failed")
	}
	if s.live.Add(1) > 1 {
		s.violations.Add(1)
	}
	h := &fakeHandle{pid: int(s.pids.Add(1)) + 1000, path: path, loop: loop, sp: s, done: make(chan struct{})}
	h.stuck = s.stuckNext.CompareAndSwap(true, false)
	s.spawned <- h
	return h, nil
}

func (s *fakeSpawner) expect(t *testing.T) *fakeHandle {
	t.Helper()
	select {
	case h := <-s.spawned:
		return h
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a relay spawn")
		return nil
	}
}

func (s *fakeSpawner) expectFiller(t *testing.T) *fakeHandle {
	t.Helper()
	h := s.expect(t)
	if !h.isFiller() || !h.loop {
		t.Fatalf("expected looping filler, got path=%s loop=%v", h.path, h.loop)
	}
	return h
}

func (s *fakeSpawner) expectContent(t *testing.T) *fakeHandle {
	t.Helper()
	h := s.expect(t)
	if h.isFiller() {
		t.Fatalf("expected content relay, got filler")
	}
	return h
}

func (s *fakeSpawner) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case h := <-s.spawned:
		t.Fatalf("unexpected spawn of %s", h.path)
	case <-time.After(d):
	}
}

// fakeFetcher serves videos by id. Sources prefixed "list:" are playlists.
type fakeFetcher struct {
	mu           sync.Mutex
	sizes        map[string]uint64
	age          map[string]bool
	failDL       map[string]bool
	playlists    map[string][]string
	downloads    map[string]int
	// failOnce fails the first download of an id, later ones succeed.
	failOnce     map[string]bool
	// holdOnce makes the first download of an id block until its context
	// ends, then take the given time to unwind.
	holdOnce     map[string]time.Duration
	resolveDelay map[string]time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		sizes:        map[string]uint64{},
		age:          map[string]bool{},
		failDL:       map[string]bool{},
		playlists:    map[string][]string{},
		downloads:    map[string]int{},
		failOnce:     map[string]bool{},
		holdOnce:     map[string]time.Duration{},
		resolveDelay: map[string]time.Duration{},
	}
}

func (f *fakeFetcher) Classify(source string) content.Kind {
	if strings.HasPrefix(source, "list:") {
		return content.KindPlaylist
	}
	return content.KindVideo
}

func (f *fakeFetcher) Ref(source string) (content.Ref, error) {
	if source == "" || strings.HasPrefix(source, "bad") {
		return "", content.NewError(content.Malformed, source, errors.New("bad reference"))
	}
	return content.Ref(source), nil
}

func (f *fakeFetcher) Resolve(_ context.Context, source string) (content.Resolution, error) {
	f.mu.Lock()
	d := f.resolveDelay[source]
	f.mu.Unlock()
	time.Sleep(d)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.age[source] {
		return content.Resolution{}, content.NewError(content.AgeRestricted, source, errors.New("sign in"))
	}
	size, ok := f.sizes[source]
	if !ok {
		return content.Resolution{}, content.NewError(content.NotFound, source, errors.New("gone"))
	}
	return content.Resolution{
		Ref:      content.Ref(source),
		Source:   source,
		Metadata: content.Metadata{Title: "Title " + source, Thumbnail: "thumb/" + source, SizeBytes: size},
	}, nil
}

func (f *fakeFetcher) Download(ctx context.Context, res content.Resolution, dir string) (string, error) {
	f.mu.Lock()
	f.downloads[res.Source]++
	fail := f.failDL[res.Source] || f.failOnce[res.Source]
	delete(f.failOnce, res.Source)
	hold, held := f.holdOnce[res.Source]
	delete(f.holdOnce, res.Source)
	f.mu.Unlock()
	if held {
		<-ctx.Done()
		time.Sleep(hold)
		return "", ctx.Err()
	}
	if fail {
		return "", content.NewError(content.Network, res.Source, errors.New("reset"))
	}
	out, err := os.CreateTemp(dir, string(res.Ref)+"-*.part")
	if err != nil {
		return "", err
	}
	return out.Name(), out.Close()
}

func (f *fakeFetcher) Playlist(_ context.Context, source string) (content.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, ok := f.playlists[source]
	if !ok {
		return content.Playlist{}, content.NewError(content.NotFound, source, errors.New("no playlist"))
	}
	pl := content.Playlist{ID: source, Title: "Playlist " + source}
	for _, id := range ids {
		pl.Items = append(pl.Items, content.PlaylistItem{Ref: content.Ref(id), Source: id, Title: "Title " + id})
	}
	return pl, nil
}

func (f *fakeFetcher) downloadCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[id]
}

func (f *fakeFetcher) video(id string, size uint64) {
	f.mu.Lock()
	f.sizes[id] = size
	f.mu.Unlock()
}

type harness struct {
	o       *Orchestrator
	sp      *fakeSpawner
	fetcher *fakeFetcher
	cache   *cache.Cache
	pub     *MemoryPublisher
}

func newHarness(t *testing.T, budget uint64, mutate ...func(*Config)) *harness {
	t.Helper()
	sp := newFakeSpawner()
	f := newFakeFetcher()
	c := cache.New(cache.Config{Dir: t.TempDir(), BudgetBytes: budget, Logger: zerolog.Nop()}, f)
	pub := NewMemoryPublisher(0)
	cfg := Config{
		FillerPath:  fillerPath,
		Cache:       c,
		Fetcher:     f,
		Relay:       relay.NewManager(sp, zerolog.Nop()),
		Publisher:   pub,
		Logger:      zerolog.Nop(),
		FillerRetry: 20 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	h := &harness{o: New(cfg), sp: sp, fetcher: f, cache: c, pub: pub}
	t.Cleanup(func() {
		_ = h.o.Close()
		if v := sp.violations.Load(); v != 0 {
			t.Errorf("filler and content were live at the same time %d time(s)", v)
		}
	})
	return h
}

// start launches the orchestrator and returns the first filler relay.
func (h *harness) start(t *testing.T) *fakeHandle {
	t.Helper()
	if err := h.o.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return h.sp.expectFiller(t)
}

func (h *harness) contentRef(t *testing.T, fh *fakeHandle) content.Ref {
	t.Helper()
	for _, e := range h.cache.Entries() {
		if e.Path == fh.path {
			return e.Ref
		}
	}
	t.Fatalf("relay path %s is not a cache entry", filepath.Base(fh.path))
	return ""
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

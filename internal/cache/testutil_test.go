package cache

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"relayd/internal/content"
)

// fakeFetcher treats the source string as the ref and serves sizes from a map.
type fakeFetcher struct {
	mu        sync.Mutex
	sizes     map[string]uint64
	failOn    map[string]error
	gate      chan struct{} // when non-nil, downloads block until closed
	started   chan string
	downloads atomic.Int32
}

func newFakeFetcher(sizes map[string]uint64) *fakeFetcher {
	return &fakeFetcher{sizes: sizes, failOn: map[string]error{}}
}

func (f *fakeFetcher) Classify(string) content.Kind { return content.KindVideo }

func (f *fakeFetcher) Ref(source string) (content.Ref, error) {
	if source == "" {
		return "", content.NewError(content.Malformed, source, errors.New("empty"))
	}
	return content.Ref(source), nil
}

func (f *fakeFetcher) Resolve(_ context.Context, source string) (content.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.sizes[source]
	if !ok {
		return content.Resolution{}, content.NewError(content.NotFound, source, errors.New("unknown"))
	}
	return content.Resolution{
		Ref:      content.Ref(source),
		Source:   source,
		Metadata: content.Metadata{Title: "title " + source, Thumbnail: "thumb " + source, SizeBytes: size},
	}, nil
}

func (f *fakeFetcher) Download(ctx context.Context, res content.Resolution, destDir string) (string, error) {
	f.downloads.Add(1)
	if f.started != nil {
		f.started <- string(res.Ref)
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	err := f.failOn[res.Source]
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	out, err := os.CreateTemp(destDir, string(res.Ref)+"-*.part")
	if err != nil {
		return "", err
	}
	_, _ = out.WriteString(res.Source)
	return out.Name(), out.Close()
}

func (f *fakeFetcher) Playlist(context.Context, string) (content.Playlist, error) {
	return content.Playlist{}, errors.New("not a playlist")
}

func newTestCache(t *testing.T, budget uint64, f content.Fetcher) *Cache {
	t.Helper()
	return New(Config{Dir: t.TempDir(), BudgetBytes: budget, Logger: zerolog.Nop()}, f)
}

// seed inserts an entry backed by a real file, bypassing the fetcher.
func seed(t *testing.T, c *Cache, ref string, size uint64) Entry {
	t.Helper()
	f, err := os.CreateTemp(c.Dir(), ref+"-*.mp4")
	if err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	e := Entry{Ref: content.Ref(ref), Metadata: content.Metadata{Title: ref, SizeBytes: size}, Path: f.Name()}
	c.mu.Lock()
	c.insertLocked(e)
	c.mu.Unlock()
	return e
}

func refs(entries []Entry) []content.Ref {
	out := make([]content.Ref, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Ref)
	}
	return out
}

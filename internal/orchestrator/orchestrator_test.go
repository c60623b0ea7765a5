package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relayd/internal/cache"
	"relayd/internal/content"
	"relayd/internal/relay"
)

func TestPlayItemPreemptsFillerAndResumesIt(t *testing.T) {
	h := newHarness(t, 1000)
	h.fetcher.video("A", 100)
	filler := h.start(t)
	assert.Equal(t, StateInterlude, h.o.State().Channel)

	sess, err := h.o.PlayItem(context.Background(), "A", false)
	require.NoError(t, err)
	assert.Equal(t, content.Ref("A"), sess.Ref)
	assert.Equal(t, "Title A", sess.Title)

	c := h.sp.expectContent(t)
	assert.True(t, filler.killed(t), "filler must be killed before content starts")
	assert.False(t, c.loop)
	assert.Equal(t, content.Ref("A"), h.contentRef(t, c))
	st := h.o.State()
	assert.Equal(t, StatePlaying, st.Channel)
	require.NotNil(t, st.Session)
	assert.Equal(t, content.Ref("A"), st.Session.Ref)

	c.finish(relay.Exit{Kind: relay.NaturalEnd})
	h.sp.expectFiller(t)
	waitFor(t, func() bool { return h.o.State().Session == nil })
	assert.Contains(t, h.pub.Names(), EventContentEnd)
	assert.Contains(t, h.pub.Names(), EventSessionEnd)
}

func TestPlayWhileBusyIsRejected(t *testing.T) {
	h := newHarness(t, 1000)
	h.fetcher.video("A", 100)
	h.fetcher.video("B", 100)
	h.start(t)

	_, err := h.o.PlayItem(context.Background(), "A", true)
	require.NoError(t, err)
	c := h.sp.expectContent(t)
	assert.True(t, c.loop)

	_, err = h.o.PlayItem(context.Background(), "B", false)
	require.ErrorIs(t, err, ErrBusy)
	assert.True(t, IsBusy(err))
	_, err = h.o.PlayPlaylist(context.Background(), "list:x", false)
	require.ErrorIs(t, err, ErrBusy)

	h.sp.expectNone(t, 50*time.Millisecond)
	assert.Equal(t, content.Ref("A"), h.o.State().Session.Ref)
	select {
	case <-c.Done():
		t.Fatal("existing session must be unaffected")
	default:
	}
}

func TestPlayItemErrorsLeaveStateAlone(t *testing.T) {
	h := newHarness(t, 1000)
	h.fetcher.video("huge", 5000)
	h.fetcher.age["adult"] = true
	h.start(t)

	_, err := h.o.PlayItem(context.Background(), "bad-ref", false)
	assert.True(t, content.IsMalformed(err))
	_, err = h.o.PlayItem(context.Background(), "missing", false)
	assert.True(t, content.IsNotFound(err))
	_, err = h.o.PlayItem(context.Background(), "adult", false)
	assert.True(t, content.IsAgeRestricted(err))
	_, err = h.o.PlayItem(context.Background(), "huge", false)
	assert.ErrorIs(t, err, cache.ErrTooLarge)

	h.sp.expectNone(t, 50*time.Millisecond)
	assert.Equal(t, StateInterlude, h.o.State().Channel)
	assert.Zero(t, h.cache.Len())
}

func TestPlayItemDownloadFailureResumesFiller(t *testing.T) {
	h := newHarness(t, 1000)
	h.fetcher.video("A", 100)
	h.fetcher.failDL["A"] = true
	filler := h.start(t)

	_, err := h.o.PlayItem(context.Background(), "A", false)
	require.NoError(t, err)
	assert.True(t, filler.killed(t))
	h.sp.expectFiller(t)
	assert.Contains(t, h.pub.Names(), EventFetchError)
	assert.Zero(t, h.cache.Len())
}

func TestStop(t *testing.T) {
	h := newHarness(t, 1000)
	h.fetcher.video("A", 100)
	filler := h.start(t)

	assert.False(t, h.o.Stop(), "stop with only filler is a no-op")
	select {
	case <-filler.Done():
		t.Fatal("stop must not touch the filler")
	default:
	}

	_, err := h.o.PlayItem(context.Background(), "A", true)
	require.NoError(t, err)
	c := h.sp.expectContent(t)

	assert.True(t, h.o.Stop())
	assert.True(t, c.killed(t))
	h.sp.expectFiller(t)
	waitFor(t, func() bool { return !h.o.busy() })
	assert.False(t, h.o.Stop())
}

func TestWithoutFillerNothingRuns(t *testing.T) {
	h := newHarness(t, 1000, func(c *Config) { c.FillerPath = "" })
	h.fetcher.video("A", 100)
	require.NoError(t, h.o.Start())
	h.sp.expectNone(t, 30*time.Millisecond)
	assert.Equal(t, StateIdle, h.o.State().Channel)

	_, err := h.o.PlayItem(context.Background(), "A", false)
	require.NoError(t, err)
	h.sp.expectContent(t).finish(relay.Exit{Kind: relay.NaturalEnd})
	h.sp.expectNone(t, 30*time.Millisecond)
}

func TestFillerRestartsAfterSpawnFailure(t *testing.T) {
	h := newHarness(t, 1000)
	h.sp.failNext.Store(true)
	require.NoError(t, h.o.Start())
	h.sp.expectFiller(t)
	assert.Contains(t, h.pub.Names(), EventFillerError)
}

func TestPlayCached(t *testing.T) {
	h := newHarness(t, 1000)
	h.fetcher.video("A", 100)
	h.start(t)
	_, err := h.cache.Add(context.Background(), "A")
	require.NoError(t, err)

	_, err = h.o.PlayCached("nope", false)
	require.ErrorIs(t, err, ErrNotCached)

	sess, err := h.o.PlayCached("A", true)
	require.NoError(t, err)
	assert.Equal(t, "Title A", sess.Title)
	c := h.sp.expectContent(t)
	assert.True(t, c.loop)
	c.finish(relay.Exit{Kind: relay.NaturalEnd})
	h.sp.expectFiller(t)
	assert.Equal(t, 1, h.fetcher.downloads["A"])
}

func TestPlayAllCachedStopsOnKill(t *testing.T) {
	h := newHarness(t, 1000)
	_, err := h.o.PlayAllCached()
	require.ErrorIs(t, err, ErrNotCached)
	for _, id := range []string{"A", "B", "C"} {
		h.fetcher.video(id, 100)
		_, err := h.cache.Add(context.Background(), id)
		require.NoError(t, err)
	}

	h.start(t)
	_, err = h.o.PlayAllCached()
	require.NoError(t, err)

	a := h.sp.expectContent(t)
	assert.Equal(t, content.Ref("A"), h.contentRef(t, a))
	a.finish(relay.Exit{Kind: relay.NaturalEnd})
	b := h.sp.expectContent(t)
	assert.Equal(t, content.Ref("B"), h.contentRef(t, b))
	require.True(t, h.o.Stop())
	h.sp.expectFiller(t)
}

func TestCloseSnapshotsCache(t *testing.T) {
	snap := filepath.Join(t.TempDir(), "cache.json")
	h := newHarness(t, 1000, func(c *Config) { c.SnapshotPath = snap })
	h.fetcher.video("A", 100)
	h.start(t)
	_, err := h.o.PlayItem(context.Background(), "A", true)
	require.NoError(t, err)
	c := h.sp.expectContent(t)

	require.NoError(t, h.o.Close())
	assert.True(t, c.killed(t))
	assert.FileExists(t, snap)
	assert.Equal(t, 1, h.cache.Len(), "preserve policy keeps files")
	assert.False(t, h.o.Ready())

	_, err = h.o.PlayItem(context.Background(), "A", false)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, h.o.Close())
}

func TestCloseClearsCacheWhenAsked(t *testing.T) {
	snap := filepath.Join(t.TempDir(), "cache.json")
	h := newHarness(t, 1000, func(c *Config) {
		c.SnapshotPath = snap
		c.ClearCacheOnClose = true
	})
	h.fetcher.video("A", 100)
	h.start(t)
	e, err := h.cache.Add(context.Background(), "A")
	require.NoError(t, err)

	require.NoError(t, h.o.Close())
	assert.Zero(t, h.cache.Len())
	assert.NoFileExists(t, e.Path)
	assert.NoFileExists(t, snap)
}

func TestStatus(t *testing.T) {
	h := newHarness(t, 1000)
	h.fetcher.video("A", 100)
	filler := h.start(t)
	assert.True(t, h.o.Ready())

	st := h.o.Status()
	assert.Equal(t, "interlude", st.State)
	assert.Equal(t, filler.PID(), st.FillerPID)
	assert.Nil(t, st.NowPlaying)
	assert.Equal(t, uint64(1000), st.CacheBudgetBytes)

	_, err := h.o.PlayItem(context.Background(), "A", false)
	require.NoError(t, err)
	c := h.sp.expectContent(t)
	st = h.o.Status()
	assert.Equal(t, "playing", st.State)
	assert.Equal(t, c.PID(), st.ContentPID)
	require.NotNil(t, st.NowPlaying)
	assert.Equal(t, "A", st.NowPlaying.ID)
	assert.Equal(t, 1, st.CacheEntries)
	assert.Equal(t, uint64(100), st.CacheBytes)

	entries := h.o.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "A", entries[0].ID)
	assert.Equal(t, c.path, entries[0].Path)
}

func TestPlayDispatchesByKind(t *testing.T) {
	h := newHarness(t, 1000)
	h.fetcher.video("A", 100)
	h.fetcher.playlists["list:p"] = []string{"A"}
	h.start(t)

	_, err := h.o.Play(context.Background(), "bad-ref", false)
	assert.True(t, content.IsMalformed(err))

	sess, err := h.o.Play(context.Background(), "list:p", false)
	require.NoError(t, err)
	require.NotNil(t, sess.Playlist)
	assert.Equal(t, "list:p", sess.Playlist.ID)
	h.sp.expectContent(t).finish(relay.Exit{Kind: relay.NaturalEnd})
	h.sp.expectFiller(t)
	waitFor(t, func() bool { return h.o.State().Session == nil })

	sess, err = h.o.Play(context.Background(), "A", false)
	require.NoError(t, err)
	assert.Nil(t, sess.Playlist)
	h.sp.expectContent(t)
}

func TestConcurrentPlayAcceptsOne(t *testing.T) {
	h := newHarness(t, 1000)
	h.fetcher.video("A", 100)
	h.start(t)

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := h.o.PlayItem(context.Background(), "A", false)
			errs <- err
		}()
	}
	accepted := 0
	for i := 0; i < n; i++ {
		if err := <-errs; err == nil {
			accepted++
		} else {
			assert.ErrorIs(t, err, ErrBusy)
		}
	}
	assert.Equal(t, 1, accepted)
	h.sp.expectContent(t)
	h.sp.expectNone(t, 50*time.Millisecond)
}

func TestStuckFillerAbandonsSession(t *testing.T) {
	h := newHarness(t, 1000, func(c *Config) { c.FillerStopTimeout = 50 * time.Millisecond })
	h.fetcher.video("A", 100)
	h.sp.stuckNext.Store(true)
	filler := h.start(t)
	t.Cleanup(func() { filler.finish(relay.Exit{Kind: relay.Killed}) })

	_, err := h.o.PlayItem(context.Background(), "A", false)
	require.NoError(t, err)
	h.sp.expectNone(t, 150*time.Millisecond)
	waitFor(t, func() bool { return h.o.State().Session == nil })
	assert.False(t, h.o.busy())
	assert.Contains(t, h.pub.Names(), EventFillerError)
	assert.Equal(t, 0, h.fetcher.downloadCount("A"), "nothing is fetched while the filler holds the channel")
}

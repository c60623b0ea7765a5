package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"relayd/internal/cache"
	"relayd/internal/content"
	"relayd/internal/metrics"
	"relayd/internal/relay"
)

// Play dispatches source to PlayPlaylist or PlayItem by its kind.
func (o *Orchestrator) Play(ctx context.Context, source string, loop bool) (Session, error) {
	switch o.fetcher.Classify(source) {
	case content.KindPlaylist:
		return o.PlayPlaylist(ctx, source, loop)
	case content.KindVideo:
		return o.PlayItem(ctx, source, loop)
	}
	return Session{}, content.NewError(content.Malformed, source, errors.New("not a video or playlist reference"))
}

// PlayItem starts relaying one video. Metadata is resolved before the
// request is accepted so bad references, unavailable videos and videos that
// can never be cached fail the call. The download itself runs on the session
// goroutine after the filler has been stopped.
func (o *Orchestrator) PlayItem(ctx context.Context, source string, loop bool) (Session, error) {
	ref, err := o.fetcher.Ref(source)
	if err != nil {
		return Session{}, err
	}
	if o.busy() {
		return Session{}, ErrBusy
	}
	s := &Session{Ref: ref, Source: source, Loop: loop}
	var res *content.Resolution
	if e, ok := o.cache.Peek(ref); ok {
		s.Title, s.Thumbnail = e.Title, e.Thumbnail
	} else {
		r, err := o.fetcher.Resolve(ctx, source)
		if err != nil {
			return Session{}, err
		}
		if !o.cache.Fits(r.SizeBytes) {
			return Session{}, fmt.Errorf("%w: %s is %s", cache.ErrTooLarge, ref, humanize.Bytes(r.SizeBytes))
		}
		s.Title, s.Thumbnail = r.Title, r.Thumbnail
		res = &r
	}
	sess, err := o.begin(s, "item", func(ctx context.Context) {
		e, err := o.fetchResolved(ctx, source, res)
		if err != nil {
			o.fetchFailed(ctx, ref, err)
			return
		}
		_, _ = o.playEntry(ctx, s, e, loop)
	})
	if err == nil {
		metrics.PlayRequests.WithLabelValues("item").Inc()
	}
	return sess, err
}

// PlayCached relays an entry that is already in the cache.
func (o *Orchestrator) PlayCached(ref content.Ref, loop bool) (Session, error) {
	e, ok := o.cache.Find(ref)
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrNotCached, ref)
	}
	s := &Session{Ref: e.Ref, Title: e.Title, Thumbnail: e.Thumbnail, Loop: loop}
	sess, err := o.begin(s, "cached", func(ctx context.Context) {
		_, _ = o.playEntry(ctx, s, e, loop)
	})
	if err == nil {
		metrics.PlayRequests.WithLabelValues("cached").Inc()
	}
	return sess, err
}

// PlayAllCached relays every cached entry from least to most recently used,
// stopping at the first relay that does not end naturally.
func (o *Orchestrator) PlayAllCached() (Session, error) {
	entries := o.cache.Entries()
	if len(entries) == 0 {
		return Session{}, fmt.Errorf("%w: cache is empty", ErrNotCached)
	}
	first := entries[0]
	s := &Session{
		Ref:       first.Ref,
		Title:     first.Title,
		Thumbnail: first.Thumbnail,
		Playlist:  &PlaylistProgress{ID: "cache", Title: "cache", Len: len(entries)},
	}
	sess, err := o.begin(s, "cache", func(ctx context.Context) {
		for i, e := range entries {
			if ctx.Err() != nil {
				return
			}
			cur, ok := o.cache.Find(e.Ref)
			if !ok {
				o.skip(e.Ref, "evicted")
				continue
			}
			o.setItem(s, i, cur.Ref, cur.Title, cur.Thumbnail)
			exit, err := o.playEntry(ctx, s, cur, false)
			if err != nil || !exit.Natural() {
				return
			}
		}
	})
	if err == nil {
		metrics.PlayRequests.WithLabelValues("cache").Inc()
	}
	return sess, err
}

// Stop ends the content session, if any. The filler resumes once the
// session goroutine releases the gate. Stop reports false when only the
// filler was running.
func (o *Orchestrator) Stop() bool {
	o.mu.Lock()
	if !o.held {
		o.mu.Unlock()
		return false
	}
	if o.cancel != nil {
		o.cancel()
	}
	h := o.content
	ref := o.session.Ref
	o.mu.Unlock()

	if h != nil {
		_ = o.relay.Kill(h)
	}
	o.log.Info().Str("event", "stop").Str("ref", string(ref)).Msg("content stopped")
	o.publish(EventStop, ref, nil)
	return true
}

func (o *Orchestrator) busy() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.held
}

// fetchResolved brings a resolved item into the cache, reusing an entry that
// appeared since resolution.
func (o *Orchestrator) fetchResolved(ctx context.Context, source string, res *content.Resolution) (cache.Entry, error) {
	if res == nil {
		return o.cache.Fetch(ctx, source)
	}
	if e, ok := o.cache.Find(res.Ref); ok {
		return e, nil
	}
	return o.cache.Store(ctx, *res)
}

// fetchFailed reports a failed fetch unless the session itself was cancelled.
func (o *Orchestrator) fetchFailed(ctx context.Context, ref content.Ref, err error) {
	if ctx.Err() != nil {
		return
	}
	o.log.Error().Err(err).Str("event", "fetch_error").Str("ref", string(ref)).Msg("fetch content")
	o.publish(EventFetchError, ref, map[string]any{"error": err.Error()})
}

// playEntry relays e on the content channel and waits for it to exit. The
// context is checked under o.mu so a concurrent Stop either sees the new
// handle or prevents the start.
func (o *Orchestrator) playEntry(ctx context.Context, s *Session, e cache.Entry, loop bool) (relay.Exit, error) {
	return o.playEntryThen(ctx, s, e, loop, nil)
}

// playEntryThen is playEntry with started run once the relay is live. The
// entry stays pinned in the cache while it plays.
func (o *Orchestrator) playEntryThen(ctx context.Context, s *Session, e cache.Entry, loop bool, started func()) (relay.Exit, error) {
	o.cache.Pin(e.Ref)
	defer o.cache.Unpin(e.Ref)
	o.mu.Lock()
	if err := ctx.Err(); err != nil {
		o.mu.Unlock()
		return relay.Exit{Kind: relay.Killed}, err
	}
	h, err := o.relay.Start(relay.Content, e.Path, loop)
	if err != nil {
		o.mu.Unlock()
		o.log.Error().Err(err).Str("event", "content_error").Str("ref", string(e.Ref)).Msg("start content relay")
		return relay.Exit{}, err
	}
	o.content = h
	o.mu.Unlock()
	o.publish(EventContentStart, e.Ref, map[string]any{"pid": h.PID(), "title": e.Title})
	if started != nil {
		started()
	}

	exit := h.Wait()
	o.mu.Lock()
	if o.content == h {
		o.content = nil
	}
	o.mu.Unlock()
	o.publish(EventContentEnd, e.Ref, map[string]any{"exit": exit.String()})
	return exit, nil
}

func (o *Orchestrator) setItem(s *Session, index int, ref content.Ref, title, thumb string) {
	o.mu.Lock()
	s.Ref, s.Title, s.Thumbnail = ref, title, thumb
	if s.Playlist != nil {
		s.Playlist.Index = index
	}
	o.mu.Unlock()
}

func (o *Orchestrator) skip(ref content.Ref, reason string) {
	metrics.PlaylistSkips.WithLabelValues(reason).Inc()
	o.log.Info().Str("event", "playlist_skip").Str("ref", string(ref)).Str("reason", reason).Msg("skipping item")
	o.publish(EventPlaylistSkip, ref, map[string]any{"reason": reason})
}

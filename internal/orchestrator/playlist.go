package orchestrator

import (
	"context"
	"errors"

	"relayd/internal/cache"
	"relayd/internal/content"
	"relayd/internal/metrics"
)

// PlayPlaylist traverses a playlist in order, prefetching the next item once
// the current one is playing. With loop set the traversal wraps to the first item
// and continues until stopped.
func (o *Orchestrator) PlayPlaylist(ctx context.Context, source string, loop bool) (Session, error) {
	if o.busy() {
		return Session{}, ErrBusy
	}
	pl, err := o.fetcher.Playlist(ctx, source)
	if err != nil {
		return Session{}, err
	}
	if pl.Len() == 0 {
		return Session{}, ErrEmptyPlaylist
	}
	first := pl.Items[0]
	s := &Session{
		Ref:      first.Ref,
		Title:    first.Title,
		Source:   source,
		Loop:     loop,
		Playlist: &PlaylistProgress{ID: pl.ID, Title: pl.Title, Len: pl.Len()},
	}
	sess, err := o.begin(s, "playlist", func(ctx context.Context) {
		o.traverse(ctx, s, pl, loop)
	})
	if err == nil {
		metrics.PlayRequests.WithLabelValues("playlist").Inc()
	}
	return sess, err
}

// traverse ends when the list is exhausted without loop, when an item does
// not end naturally, when the current item cannot be fetched, when the
// session is cancelled, or after a looping pass that played nothing.
func (o *Orchestrator) traverse(ctx context.Context, s *Session, pl content.Playlist, loop bool) {
	n := pl.Len()
	played := false
	for idx := 0; ; {
		if ctx.Err() != nil {
			return
		}
		item := pl.Items[idx]
		e, reason, err := o.fetchItem(ctx, item)
		switch {
		case err != nil:
			o.fetchFailed(ctx, item.Ref, err)
			return
		case reason != "":
			o.skip(item.Ref, reason)
		default:
			o.setItem(s, idx, e.Ref, e.Title, e.Thumbnail)
			// The next item is prefetched only once this one is cached and
			// pinned, so the prefetch can never take its room.
			var prefetchNext func()
			if next := idx + 1; next < n || (loop && n > 1) {
				nextItem := pl.Items[next%n]
				prefetchNext = func() { o.prefetch(ctx, nextItem) }
			}
			exit, err := o.playEntryThen(ctx, s, e, false, prefetchNext)
			if err != nil {
				return
			}
			played = true
			if !exit.Natural() {
				o.log.Info().Str("event", "playlist_end").Str("ref", string(e.Ref)).Stringer("exit", exit).Msg("item did not finish, ending playlist")
				return
			}
		}

		idx++
		if idx == n {
			if !loop || !played {
				return
			}
			idx, played = 0, false
		}
	}
}

// fetchItem returns the cache entry for item, or a skip reason for items
// that must not be played. Errors abort the traversal.
func (o *Orchestrator) fetchItem(ctx context.Context, item content.PlaylistItem) (cache.Entry, string, error) {
	if e, ok := o.cache.Find(item.Ref); ok {
		return e, "", nil
	}
	res, err := o.fetcher.Resolve(ctx, item.Source)
	switch {
	case content.IsAgeRestricted(err):
		return cache.Entry{}, "age_restricted", nil
	case err != nil:
		return cache.Entry{}, "", err
	}
	e, err := o.cache.Store(ctx, res)
	if errors.Is(err, cache.ErrTooLarge) {
		return cache.Entry{}, "too_large", nil
	}
	return e, "", err
}

// prefetch brings item into the cache on its own goroutine. Failures are
// logged and otherwise ignored; the traversal fetches on demand.
func (o *Orchestrator) prefetch(ctx context.Context, item content.PlaylistItem) {
	if _, ok := o.cache.Peek(item.Ref); ok {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.cache.Fetch(ctx, item.Source); err != nil && ctx.Err() == nil {
			o.log.Debug().Err(err).Str("event", "prefetch_error").Str("ref", string(item.Ref)).Msg("prefetch failed")
			o.publish(EventPrefetchError, item.Ref, map[string]any{"error": err.Error()})
		}
	}()
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"relayd/internal/content"
	"relayd/internal/metrics"
)

// Fetch returns the cached entry for source, downloading it on a miss.
func (c *Cache) Fetch(ctx context.Context, source string) (Entry, error) {
	ref, err := c.fetcher.Ref(source)
	if err != nil {
		return Entry{}, err
	}
	if e, ok := c.Find(ref); ok {
		return e, nil
	}
	return c.Add(ctx, source)
}

// Add resolves source and stores it.
func (c *Cache) Add(ctx context.Context, source string) (Entry, error) {
	res, err := c.fetcher.Resolve(ctx, source)
	if err != nil {
		return Entry{}, err
	}
	return c.Store(ctx, res)
}

// Store downloads a resolved item into the cache. Items larger than the
// whole budget return ErrTooLarge and leave the cache untouched. Concurrent
// stores of one ref share a single download.
func (c *Cache) Store(ctx context.Context, res content.Resolution) (Entry, error) {
	if !c.Fits(res.SizeBytes) {
		c.log.Info().
			Str("event", "too_large").
			Str("ref", string(res.Ref)).
			Str("size", humanize.Bytes(res.SizeBytes)).
			Str("budget", humanize.Bytes(c.budget)).
			Msg("item too large to cache")
		return Entry{}, fmt.Errorf("%w: %s is %s", ErrTooLarge, res.Ref, humanize.Bytes(res.SizeBytes))
	}
	for attempt := 0; ; attempt++ {
		v, err, shared := c.flight.Do(string(res.Ref), func() (any, error) {
			return c.store(ctx, res)
		})
		if err != nil {
			// A joined download dies with the context of whoever started it.
			if shared && attempt < maxJoinRetries && isCancellation(err) && ctx.Err() == nil {
				c.log.Debug().Str("event", "download_retry").Str("ref", string(res.Ref)).Msg("joined download was cancelled, retrying")
				continue
			}
			return Entry{}, err
		}
		if shared {
			c.log.Debug().Str("event", "download_joined").Str("ref", string(res.Ref)).Msg("joined in-flight download")
		}
		return v.(Entry), nil
	}
}

// maxJoinRetries bounds restarts of a shared download cancelled by another caller.
const maxJoinRetries = 3

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Cache) store(ctx context.Context, res content.Resolution) (Entry, error) {
	size := res.SizeBytes
	c.mu.Lock()
	if el, ok := c.index[res.Ref]; ok {
		c.order.MoveToFront(el)
		e := *el.Value.(*Entry)
		c.mu.Unlock()
		return e, nil
	}
	if !c.reserveLocked(size) {
		c.mu.Unlock()
		metrics.Downloads.WithLabelValues("no_room").Inc()
		return Entry{}, ErrNoRoom
	}
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		c.releaseLocked(size)
		c.mu.Unlock()
	}

	start := time.Now()
	tmp, err := c.fetcher.Download(ctx, res, c.dir)
	if err != nil {
		release()
		metrics.Downloads.WithLabelValues("error").Inc()
		c.log.Warn().Err(err).Str("event", "download").Str("ref", string(res.Ref)).Msg("download failed")
		return Entry{}, err
	}
	final := filepath.Join(c.dir, uuid.NewString()+".mp4")
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		release()
		metrics.Downloads.WithLabelValues("error").Inc()
		return Entry{}, fmt.Errorf("store %s: %w", res.Ref, err)
	}
	metrics.Downloads.WithLabelValues("ok").Inc()
	metrics.DownloadedBytes.Add(float64(size))
	metrics.DownloadDuration.Observe(time.Since(start).Seconds())

	e := Entry{Ref: res.Ref, Metadata: res.Metadata, Path: final}
	c.mu.Lock()
	c.releaseLocked(size)
	c.insertLocked(e)
	c.mu.Unlock()

	c.log.Info().
		Str("event", "cached").
		Str("ref", string(res.Ref)).
		Str("title", res.Title).
		Str("size", humanize.Bytes(size)).
		Dur("took", time.Since(start)).
		Msg("video cached")
	return e, nil
}

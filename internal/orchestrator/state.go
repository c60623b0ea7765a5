package orchestrator

import (
	"time"

	"relayd/internal/cache"
	"relayd/pkg/types"
)

// ChannelState is what the channel is relaying.
type ChannelState string

const (
	StateInterlude ChannelState = types.StateInterlude
	StatePlaying   ChannelState = types.StatePlaying
	// StateIdle covers the gaps between stopping one relay and starting
	// the other, including content downloads.
	StateIdle ChannelState = types.StateIdle
)

// State is a point-in-time view of the channel.
type State struct {
	Channel ChannelState
	// Session is nil when no content holds the channel.
	Session *Session
}

// State reports the channel role and the current session.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return State{Channel: o.channelLocked(), Session: o.session.clone()}
}

func (o *Orchestrator) channelLocked() ChannelState {
	switch {
	case o.content != nil:
		return StatePlaying
	case o.filler != nil && !o.held:
		return StateInterlude
	}
	return StateIdle
}

// Status builds the detailed response for /status.
func (o *Orchestrator) Status() types.StatusResponse {
	o.mu.RLock()
	resp := types.StatusResponse{
		State:      string(o.channelLocked()),
		NowPlaying: NowPlaying(o.session),
	}
	if o.filler != nil {
		resp.FillerPID = o.filler.PID()
	}
	if o.content != nil {
		resp.ContentPID = o.content.PID()
	}
	o.mu.RUnlock()

	resp.CacheEntries = o.cache.Len()
	resp.CacheBytes = o.cache.SizeBytes()
	resp.CacheBudgetBytes = o.cache.Budget()
	resp.UptimeSeconds = int64(time.Since(o.startTime).Seconds())
	resp.ServerTimeUnix = time.Now().Unix()
	return resp
}

// Entries lists the cache from least to most recently used.
func (o *Orchestrator) Entries() []types.CacheEntry {
	return CacheEntries(o.cache.Entries())
}

// NowPlaying converts a session to its wire form. Nil stays nil.
func NowPlaying(s *Session) *types.NowPlaying {
	if s == nil {
		return nil
	}
	np := &types.NowPlaying{
		ID:        string(s.Ref),
		Title:     s.Title,
		Thumbnail: s.Thumbnail,
		Source:    s.Source,
		Loop:      s.Loop,
		StartedAt: s.StartedAt.Unix(),
	}
	if p := s.Playlist; p != nil {
		np.Playlist = &types.PlaylistProgress{ID: p.ID, Title: p.Title, Index: p.Index, Len: p.Len}
	}
	return np
}

func CacheEntries(entries []cache.Entry) []types.CacheEntry {
	out := make([]types.CacheEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.CacheEntry{
			ID:        string(e.Ref),
			Title:     e.Title,
			Thumbnail: e.Thumbnail,
			Path:      e.Path,
			SizeBytes: e.SizeBytes,
		})
	}
	return out
}

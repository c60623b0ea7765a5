package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: relay busy: content is already playing
	Error string `json:"error" example:"relay busy: content is already playing"`
	// HTTP status code.
	// example: 409
	Code int `json:"code" example:"409"`
}

// PlayRequest is the optional JSON body of POST /play. Query parameters
// take precedence when both are given.
type PlayRequest struct {
	// Video or playlist URL.
	// example: https://www.youtube.com/watch?v=dQw4w9WgXcQ
	URL string `json:"url" example:"https://www.youtube.com/watch?v=dQw4w9WgXcQ"`
	// Replay the video, or wrap the playlist, until stopped.
	// example: false
	Loop bool `json:"loop,omitempty" example:"false"`
}

// StateResponse is returned by GET /state.
type StateResponse struct {
	// What the channel is relaying: interlude, playing or idle.
	// example: playing
	State string `json:"state" example:"playing"`
	// Present while a content session holds the channel.
	NowPlaying *NowPlaying `json:"now_playing,omitempty"`
}

// PlayResponse acknowledges an accepted play request.
type PlayResponse struct {
	// example: accepted
	Status string `json:"status" example:"accepted"`
	// Session that was started.
	Session NowPlaying `json:"session"`
}

// StopResponse is returned by POST /stop.
type StopResponse struct {
	// True when a content session was stopped; false when only the interlude was running.
	// example: true
	Stopped bool `json:"stopped" example:"true"`
}

// ListResponse wraps the cached entries returned by GET /list.
type ListResponse struct {
	// Entries ordered from least to most recently used.
	Entries []CacheEntry `json:"entries"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// example: interlude
	State      string      `json:"state" example:"interlude"`
	NowPlaying *NowPlaying `json:"now_playing,omitempty"`
	// PID of the interlude relay, when running.
	// example: 4242
	FillerPID int `json:"filler_pid,omitempty" example:"4242"`
	// PID of the content relay, when running.
	// example: 4243
	ContentPID int `json:"content_pid,omitempty" example:"4243"`
	// Number of cached videos.
	// example: 3
	CacheEntries int `json:"cache_entries" example:"3"`
	// Bytes used by cached videos.
	// example: 734003200
	CacheBytes uint64 `json:"cache_bytes" example:"734003200"`
	// Configured cache budget in bytes.
	// example: 2000000000
	CacheBudgetBytes uint64 `json:"cache_budget_bytes" example:"2000000000"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

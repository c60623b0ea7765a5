package types

// NowPlaying describes the content session holding the channel.
type NowPlaying struct {
	// Content identifier (video id).
	// example: dQw4w9WgXcQ
	ID string `json:"id" example:"dQw4w9WgXcQ"`
	// example: Never Gonna Give You Up
	Title string `json:"title" example:"Never Gonna Give You Up"`
	// example: https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg
	Thumbnail string `json:"thumbnail,omitempty" example:"https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg"`
	// Source URL of the request.
	Source string `json:"source,omitempty"`
	// Playlist progress, when a playlist is being traversed.
	Playlist *PlaylistProgress `json:"playlist,omitempty"`
	// example: false
	Loop bool `json:"loop" example:"false"`
	// Unix seconds when the session started.
	// example: 1700000000
	StartedAt int64 `json:"started_at_unix" example:"1700000000"`
}

// PlaylistProgress is the position within a playlist traversal.
type PlaylistProgress struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	// Zero-based index of the current item.
	Index int `json:"index"`
	Len   int `json:"len"`
}

// CacheEntry is one cached video as listed by GET /list.
type CacheEntry struct {
	// example: dQw4w9WgXcQ
	ID string `json:"id" example:"dQw4w9WgXcQ"`
	// example: Never Gonna Give You Up
	Title     string `json:"title" example:"Never Gonna Give You Up"`
	Thumbnail string `json:"thumbnail,omitempty"`
	// Local file backing the entry.
	// example: /var/cache/relayd/0b9c1e5e-8d8b-4b8e-9a55-0f5d1e6a2c11.mp4
	Path string `json:"file_path" example:"/var/cache/relayd/0b9c1e5e-8d8b-4b8e-9a55-0f5d1e6a2c11.mp4"`
	// example: 24589312
	SizeBytes uint64 `json:"size_bytes" example:"24589312"`
}

package content

// Ref is a stable identifier for a piece of remote content, derived from its
// source URL (for YouTube, the video id). It is the cache key.
type Ref string

func (r Ref) String() string { return string(r) }

// Kind classifies a source reference.
type Kind string

const (
	KindVideo    Kind = "video"
	KindPlaylist Kind = "playlist"
	KindUnknown  Kind = "unknown"
)

// Metadata is the display and sizing information attached to a Ref once resolved.
type Metadata struct {
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	SizeBytes uint64 `json:"size_bytes"`
}

// Resolution is the result of resolving a source: the ref, its metadata and
// an opaque handle the same Fetcher accepts in Download.
type Resolution struct {
	Ref    Ref
	Source string
	Metadata
	Handle any
}

// PlaylistItem is one entry of a resolved playlist.
type PlaylistItem struct {
	Ref    Ref
	Source string
	Title  string
}

// Playlist is an ordered list of items.
type Playlist struct {
	ID    string
	Title string
	Items []PlaylistItem
}

// Len returns the number of items.
func (p Playlist) Len() int { return len(p.Items) }

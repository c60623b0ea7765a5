// Package content defines the content model shared by the cache and the
// orchestrator, and the Fetcher capability that turns a source URL into
// metadata and a local file.
package content

import "context"

// Fetcher resolves remote sources and retrieves their bytes.
//
// Resolve and Playlist fail with a *FetchError whose Kind is NotFound,
// AgeRestricted, Malformed or Network. Download writes the content into
// destDir under a name of the fetcher's choosing and returns the path; the
// caller owns the file afterwards. A failed Download leaves nothing behind.
type Fetcher interface {
	Classify(source string) Kind
	Ref(source string) (Ref, error)
	Resolve(ctx context.Context, source string) (Resolution, error)
	Download(ctx context.Context, res Resolution, destDir string) (string, error)
	Playlist(ctx context.Context, source string) (Playlist, error)
}

// Package youtube implements content.Fetcher on top of github.com/kkdai/youtube/v2.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	yt "github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"

	"relayd/internal/content"
)

// DefaultQuality is the progressive stream quality preferred for relaying.
const DefaultQuality = "360p"

const watchURL = "https://www.youtube.com/watch?v="

// Config tunes the fetcher.
type Config struct {
	Quality    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Fetcher resolves YouTube videos and playlists.
type Fetcher struct {
	client  *yt.Client
	quality string
	log     zerolog.Logger
}

// New constructs a Fetcher.
func New(cfg Config) *Fetcher {
	q := strings.TrimSpace(cfg.Quality)
	if q == "" {
		q = DefaultQuality
	}
	c := &yt.Client{}
	if cfg.HTTPClient != nil {
		c.HTTPClient = cfg.HTTPClient
	}
	return &Fetcher{client: c, quality: q, log: cfg.Logger}
}

type handle struct {
	video  *yt.Video
	format *yt.Format
}

// Classify reports whether source names a playlist, a single video, or neither.
// A watch URL carrying a list parameter is treated as a playlist.
func (f *Fetcher) Classify(source string) content.Kind {
	u, err := url.Parse(strings.TrimSpace(source))
	if err == nil && u.Query().Get("list") != "" {
		return content.KindPlaylist
	}
	if _, err := yt.ExtractVideoID(source); err == nil {
		return content.KindVideo
	}
	return content.KindUnknown
}

// Ref extracts the video id.
func (f *Fetcher) Ref(source string) (content.Ref, error) {
	id, err := yt.ExtractVideoID(strings.TrimSpace(source))
	if err != nil {
		return "", content.NewError(content.Malformed, source, err)
	}
	return content.Ref(id), nil
}

// Resolve fetches video metadata and picks a progressive mp4 format.
func (f *Fetcher) Resolve(ctx context.Context, source string) (content.Resolution, error) {
	ref, err := f.Ref(source)
	if err != nil {
		return content.Resolution{}, err
	}
	video, err := f.client.GetVideoContext(ctx, source)
	if err != nil {
		return content.Resolution{}, classify(source, err)
	}
	format := f.pickFormat(video)
	if format == nil {
		return content.Resolution{}, content.NewError(content.NotFound, source, errors.New("no progressive mp4 format"))
	}
	res := content.Resolution{
		Ref:    ref,
		Source: source,
		Metadata: content.Metadata{
			Title:     video.Title,
			Thumbnail: thumbnailURL(video),
			SizeBytes: estimateSize(video, format),
		},
		Handle: handle{video: video, format: format},
	}
	f.log.Debug().Str("event", "resolve").Str("ref", string(ref)).Str("quality", format.QualityLabel).Uint64("size_bytes", res.SizeBytes).Msg("resolved video")
	return res, nil
}

// Download streams the chosen format into a temporary file under destDir.
func (f *Fetcher) Download(ctx context.Context, res content.Resolution, destDir string) (string, error) {
	h, ok := res.Handle.(handle)
	if !ok || h.video == nil || h.format == nil {
		return "", content.NewError(content.Malformed, res.Source, errors.New("resolution was not produced by this fetcher"))
	}
	stream, _, err := f.client.GetStreamContext(ctx, h.video, h.format)
	if err != nil {
		return "", classify(res.Source, err)
	}
	defer stream.Close()

	out, err := os.CreateTemp(destDir, string(res.Ref)+"-*.part")
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	if _, err := io.Copy(out, stream); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", content.NewError(content.Network, res.Source, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("close download file: %w", err)
	}
	return out.Name(), nil
}

// Playlist lists the videos of a playlist.
func (f *Fetcher) Playlist(ctx context.Context, source string) (content.Playlist, error) {
	pl, err := f.client.GetPlaylistContext(ctx, source)
	if err != nil {
		return content.Playlist{}, classify(source, err)
	}
	out := content.Playlist{ID: pl.ID, Title: pl.Title, Items: make([]content.PlaylistItem, 0, len(pl.Videos))}
	for _, v := range pl.Videos {
		if v == nil || v.ID == "" {
			continue
		}
		out.Items = append(out.Items, content.PlaylistItem{
			Ref:    content.Ref(v.ID),
			Source: watchURL + v.ID,
			Title:  v.Title,
		})
	}
	return out, nil
}

func (f *Fetcher) pickFormat(video *yt.Video) *yt.Format {
	formats := video.Formats.WithAudioChannels().Type("video/mp4")
	if len(formats) == 0 {
		return nil
	}
	for i := range formats {
		if formats[i].QualityLabel == f.quality {
			return &formats[i]
		}
	}
	return &formats[0]
}

func thumbnailURL(video *yt.Video) string {
	if n := len(video.Thumbnails); n > 0 {
		return video.Thumbnails[n-1].URL
	}
	return ""
}

// estimateSize prefers the advertised content length and falls back to
// bitrate times duration when the listing omits it.
func estimateSize(video *yt.Video, format *yt.Format) uint64 {
	if format.ContentLength > 0 {
		return uint64(format.ContentLength)
	}
	if format.Bitrate > 0 && video.Duration > 0 {
		return uint64(float64(format.Bitrate) / 8 * video.Duration.Seconds())
	}
	return 0
}

// classify maps client errors onto content error kinds.
func classify(source string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch {
	case errors.Is(err, yt.ErrLoginRequired):
		return content.NewError(content.AgeRestricted, source, err)
	case errors.Is(err, yt.ErrVideoPrivate), errors.Is(err, yt.ErrNotPlayableInEmbed):
		return content.NewError(content.NotFound, source, err)
	case errors.Is(err, yt.ErrInvalidCharactersInVideoID), errors.Is(err, yt.ErrVideoIDMinLength), errors.Is(err, yt.ErrInvalidPlaylist):
		return content.NewError(content.Malformed, source, err)
	}
	var ps yt.ErrPlayabiltyStatus
	if errors.As(err, &ps) {
		if ps.Status == "LOGIN_REQUIRED" || strings.Contains(strings.ToLower(ps.Reason), "age") {
			return content.NewError(content.AgeRestricted, source, err)
		}
		return content.NewError(content.NotFound, source, err)
	}
	var sc yt.ErrUnexpectedStatusCode
	if errors.As(err, &sc) && int(sc) == http.StatusNotFound {
		return content.NewError(content.NotFound, source, err)
	}
	return content.NewError(content.Network, source, err)
}

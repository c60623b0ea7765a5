//go:build unix

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"relayd/internal/cache"
	"relayd/internal/content"
	"relayd/internal/httpapi"
	"relayd/internal/orchestrator"
	"relayd/internal/relay"
	"relayd/pkg/types"
)

// fakeFFmpeg stands in for the encoder: looping relays run until killed,
// others sleep for $RELAYD_E2E_CONTENT_SECS (default 0.3s) and exit 0.
const fakeFFmpeg = `#!/bin/sh
case "$*" in
*-stream_loop*) exec sleep 60 ;;
esac
exec sleep "${RELAYD_E2E_CONTENT_SECS:-0.3}"
`

// videoFetcher serves fixed-size videos for any source starting with "vid".
type videoFetcher struct{}

func (videoFetcher) Classify(string) content.Kind { return content.KindVideo }

func (videoFetcher) Ref(source string) (content.Ref, error) {
	if !strings.HasPrefix(source, "vid") {
		return "", content.NewError(content.Malformed, source, errors.New("not a video"))
	}
	return content.Ref(source), nil
}

func (f videoFetcher) Resolve(_ context.Context, source string) (content.Resolution, error) {
	ref, err := f.Ref(source)
	if err != nil {
		return content.Resolution{}, err
	}
	return content.Resolution{Ref: ref, Source: source, Metadata: content.Metadata{Title: "Video " + source, SizeBytes: 10}}, nil
}

func (videoFetcher) Download(_ context.Context, res content.Resolution, dir string) (string, error) {
	p := filepath.Join(dir, string(res.Ref)+".part")
	return p, os.WriteFile(p, []byte("0123456789"), 0o644)
}

func (videoFetcher) Playlist(_ context.Context, source string) (content.Playlist, error) {
	return content.Playlist{}, content.NewError(content.NotFound, source, errors.New("no playlists"))
}

// newServer wires the real cache, relay manager and orchestrator behind the
// HTTP API, relaying through the fake encoder script.
func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(bin, []byte(fakeFFmpeg), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	filler := filepath.Join(dir, "interlude.mp4")
	if err := os.WriteFile(filler, nil, 0o644); err != nil {
		t.Fatalf("write filler: %v", err)
	}
	videos := filepath.Join(dir, "videos")
	if err := os.Mkdir(videos, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	log := zerolog.Nop()
	f := videoFetcher{}
	c := cache.New(cache.Config{Dir: videos, BudgetBytes: 1000, Logger: log}, f)
	ff := relay.NewFFmpeg(relay.FFmpegConfig{Binary: bin, Sink: "rtmp://127.0.0.1/live/test", Logger: log})
	orch := orchestrator.New(orchestrator.Config{
		FillerPath:        filler,
		Cache:             c,
		Fetcher:           f,
		Relay:             relay.NewManager(ff, log),
		Logger:            log,
		ClearCacheOnClose: true,
	})
	if err := orch.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(orch))
	t.Cleanup(func() {
		srv.Close()
		_ = orch.Close()
	})
	return srv
}

func do(t *testing.T, method, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func play(t *testing.T, srv *httptest.Server, source string) int {
	t.Helper()
	resp, _ := do(t, http.MethodPost, srv.URL+"/play?url="+url.QueryEscape(source))
	return resp.StatusCode
}

func state(t *testing.T, srv *httptest.Server) types.StateResponse {
	t.Helper()
	resp, body := do(t, http.MethodGet, srv.URL+"/state")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /state: %d %s", resp.StatusCode, body)
	}
	var st types.StateResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return st
}

// waitState polls /state until it reports want.
func waitState(t *testing.T, srv *httptest.Server, want string) types.StateResponse {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		st := state(t, srv)
		if st.State == want {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("state=%s, want %s", st.State, want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

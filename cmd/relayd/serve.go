package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"relayd/internal/cache"
	"relayd/internal/common/fsutil"
	"relayd/internal/config"
	"relayd/internal/content/youtube"
	"relayd/internal/httpapi"
	"relayd/internal/orchestrator"
	"relayd/internal/relay"
)

const shutdownTimeout = 5 * time.Second

var _ httpapi.Service = (*orchestrator.Orchestrator)(nil)

func serve(parent context.Context, cfg config.Config, log zerolog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir, err := fsutil.EnsureDir(cfg.VideoDir)
	if err != nil {
		return fmt.Errorf("video dir: %w", err)
	}
	budget, err := cfg.BudgetBytes()
	if err != nil {
		return err
	}
	snapshotPath := cacheFilePath(dir, cfg.CacheFile)

	fetcher := youtube.New(youtube.Config{Quality: cfg.Quality, Logger: log.With().Str("component", "youtube").Logger()})
	c := cache.New(cache.Config{Dir: dir, BudgetBytes: budget, Logger: log.With().Str("component", "cache").Logger()}, fetcher)
	if snapshotPath != "" {
		n, err := c.Restore(snapshotPath)
		if err != nil {
			log.Warn().Err(err).Str("path", snapshotPath).Msg("cache snapshot unreadable; starting empty")
		} else {
			log.Info().Int("entries", n).Str("size", humanize.Bytes(c.SizeBytes())).Msg("cache restored")
		}
	}
	var cp *cache.Checkpointer
	if cfg.SnapshotSchedule != "" && snapshotPath != "" && !cfg.ClearCacheOnExit {
		if cp, err = cache.NewCheckpointer(c, snapshotPath, cfg.SnapshotSchedule, log.With().Str("component", "checkpoint").Logger()); err != nil {
			return err
		}
	}

	relayLog := log.With().Str("component", "relay").Logger()
	ff := relay.NewFFmpeg(relay.FFmpegConfig{Binary: cfg.FFmpegBin, Sink: cfg.RTMPURL, Verbose: cfg.FFmpegVerbose, Logger: relayLog})
	orch := orchestrator.New(orchestrator.Config{
		FillerPath:        cfg.Interlude,
		Cache:             c,
		Fetcher:           fetcher,
		Relay:             relay.NewManager(ff, relayLog),
		Logger:            log.With().Str("component", "orchestrator").Logger(),
		SnapshotPath:      snapshotPath,
		ClearCacheOnClose: cfg.ClearCacheOnExit,
	})
	if err := orch.Start(); err != nil {
		return err
	}
	var checkpoints stopper
	if cp != nil {
		cp.Start()
		checkpoints = cp
	}

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetRequestLogLevel(cfg.LogLevel)
	httpapi.SetCORSOptions(len(cfg.CORSOrigins) > 0, cfg.CORSOrigins, nil, nil)
	httpapi.SetBaseContext(ctx)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(orch),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("video_dir", dir).Str("budget", humanize.Bytes(budget)).Msg("relayd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("server error")
	}

	shutdown(srv, checkpoints, orch, log)
	return serveErr
}

type (
	shutdowner interface {
		Shutdown(ctx context.Context) error
	}
	stopper interface{ Stop() }
	closer  interface{ Close() error }
)

// shutdown drains HTTP, stops scheduled checkpoints and then closes the
// orchestrator, whose final snapshot must be the last write of the index.
// checkpoints may be nil.
func shutdown(srv shutdowner, checkpoints stopper, orch closer, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	if checkpoints != nil {
		checkpoints.Stop()
	}
	if err := orch.Close(); err != nil {
		log.Warn().Err(err).Msg("orchestrator close")
	}
}

// cacheFilePath resolves a relative cache file against the video directory.
func cacheFilePath(dir, file string) string {
	if file == "" {
		return ""
	}
	if p, err := fsutil.ExpandHome(file); err == nil {
		file = p
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

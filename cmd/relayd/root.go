package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"relayd/internal/config"
)

// newRootCmd builds the relayd command. Settings resolve in the order
// flag > RELAYD_* environment > config file > built-in default.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "relayd",
		Short:         "Relay a filler loop and requested videos to one RTMP channel",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, cfgFile)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}

	d := config.Default()
	f := cmd.Flags()
	f.StringVarP(&cfgFile, "config", "c", "", "config file (.yaml, .json or .toml)")
	f.String("addr", d.Addr, "HTTP listen address")
	f.String("video-dir", d.VideoDir, "directory holding downloaded videos")
	f.String("interlude", d.Interlude, "filler video looped between requests (empty disables the filler)")
	f.String("rtmp-url", d.RTMPURL, "RTMP ingest URL to relay to")
	f.String("cache-budget", d.CacheBudget, "total size of cached videos, e.g. 2GB")
	f.String("cache-file", d.CacheFile, "cache index snapshot, relative to video-dir unless absolute")
	f.Bool("clear-cache-on-exit", d.ClearCacheOnExit, "delete cached videos on shutdown instead of keeping them")
	f.String("snapshot-schedule", d.SnapshotSchedule, "cron schedule for periodic cache snapshots, e.g. @every 5m")
	f.String("log-level", d.LogLevel, "log level (trace, debug, info, warn, error)")
	f.String("log-format", d.LogFormat, "log format (console, json)")
	f.StringSlice("cors-origins", nil, "allowed CORS origins; empty disables CORS")
	f.String("ffmpeg-bin", d.FFmpegBin, "ffmpeg executable")
	f.Bool("ffmpeg-verbose", d.FFmpegVerbose, "forward ffmpeg output to stderr")
	f.String("quality", d.Quality, "preferred stream quality label")
	return cmd
}

// resolveConfig layers the config file, environment and changed flags over
// the defaults and validates the result.
func resolveConfig(cmd *cobra.Command, cfgFile string) (config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		fileCfg, err := config.Load(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = cfg.Merge(fileCfg)
	}
	v := config.NewViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return cfg, err
	}
	cfg = cfg.Overlay(v)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newLogger(cfg config.Config, out io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), err
	}
	w := out
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "relayd").Logger(), nil
}

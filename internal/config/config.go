// Package config loads relayd settings from a file, the environment and
// command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config holds runtime parameters for the service. Zero values mean
// "unspecified" and are replaced by Default values.
type Config struct {
	Addr             string   `json:"addr" yaml:"addr" toml:"addr"`
	// VideoDir holds downloaded videos.
	VideoDir         string   `json:"video_dir" yaml:"video_dir" toml:"video_dir"`
	// Interlude is the filler video looped between requests.
	Interlude        string   `json:"interlude" yaml:"interlude" toml:"interlude"`
	RTMPURL          string   `json:"rtmp_url" yaml:"rtmp_url" toml:"rtmp_url"`
	// CacheBudget accepts human sizes such as "2GB" or "500 MiB".
	CacheBudget      string   `json:"cache_budget" yaml:"cache_budget" toml:"cache_budget"`
	CacheFile        string   `json:"cache_file" yaml:"cache_file" toml:"cache_file"`
	ClearCacheOnExit bool     `json:"clear_cache_on_exit" yaml:"clear_cache_on_exit" toml:"clear_cache_on_exit"`
	SnapshotSchedule string   `json:"snapshot_schedule" yaml:"snapshot_schedule" toml:"snapshot_schedule"`
	LogLevel         string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat        string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	CORSOrigins      []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	FFmpegBin        string   `json:"ffmpeg_bin" yaml:"ffmpeg_bin" toml:"ffmpeg_bin"`
	FFmpegVerbose    bool     `json:"ffmpeg_verbose" yaml:"ffmpeg_verbose" toml:"ffmpeg_verbose"`
	Quality          string   `json:"quality" yaml:"quality" toml:"quality"`
}

var (
	ErrMissingRTMPURL   = errors.New("rtmp_url is required")
	ErrMissingVideoDir  = errors.New("video_dir is required")
	ErrInvalidBudget    = errors.New("invalid cache_budget")
	ErrInvalidSchedule  = errors.New("invalid snapshot_schedule")
	ErrInvalidLogFormat = errors.New("log_format must be console or json")
	ErrInvalidLogLevel  = errors.New("invalid log_level")
)

// EnvPrefix prefixes environment overrides, e.g. RELAYD_RTMP_URL.
const EnvPrefix = "RELAYD"

var envReplacer = strings.NewReplacer("-", "_")

// NewViper returns a viper instance that resolves flag-named keys from
// RELAYD_* variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()
	return v
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:        ":5001",
		VideoDir:    "./videos",
		CacheBudget: "2GB",
		CacheFile:   "cache.json",
		LogLevel:    "info",
		LogFormat:   "console",
		FFmpegBin:   "ffmpeg",
		Quality:     "360p",
	}
}

// Merge returns c with every non-zero field of o applied on top.
func (c Config) Merge(o Config) Config {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Addr, o.Addr)
	set(&c.VideoDir, o.VideoDir)
	set(&c.Interlude, o.Interlude)
	set(&c.RTMPURL, o.RTMPURL)
	set(&c.CacheBudget, o.CacheBudget)
	set(&c.CacheFile, o.CacheFile)
	set(&c.SnapshotSchedule, o.SnapshotSchedule)
	set(&c.LogLevel, o.LogLevel)
	set(&c.LogFormat, o.LogFormat)
	set(&c.FFmpegBin, o.FFmpegBin)
	set(&c.Quality, o.Quality)
	if o.ClearCacheOnExit {
		c.ClearCacheOnExit = true
	}
	if o.FFmpegVerbose {
		c.FFmpegVerbose = true
	}
	if len(o.CORSOrigins) > 0 {
		c.CORSOrigins = append([]string(nil), o.CORSOrigins...)
	}
	return c
}

// Overlay applies every key v reports as explicitly set (a changed flag or
// a RELAYD_* variable). Keys use the flag names.
func (c Config) Overlay(v *viper.Viper) Config {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	str("addr", &c.Addr)
	str("video-dir", &c.VideoDir)
	str("interlude", &c.Interlude)
	str("rtmp-url", &c.RTMPURL)
	str("cache-budget", &c.CacheBudget)
	str("cache-file", &c.CacheFile)
	str("snapshot-schedule", &c.SnapshotSchedule)
	str("log-level", &c.LogLevel)
	str("log-format", &c.LogFormat)
	str("ffmpeg-bin", &c.FFmpegBin)
	str("quality", &c.Quality)
	if v.IsSet("clear-cache-on-exit") {
		c.ClearCacheOnExit = v.GetBool("clear-cache-on-exit")
	}
	if v.IsSet("ffmpeg-verbose") {
		c.FFmpegVerbose = v.GetBool("ffmpeg-verbose")
	}
	if v.IsSet("cors-origins") {
		c.CORSOrigins = SplitCSV(strings.Join(v.GetStringSlice("cors-origins"), ","))
	}
	return c
}

// BudgetBytes parses CacheBudget.
func (c Config) BudgetBytes() (uint64, error) {
	n, err := humanize.ParseBytes(c.CacheBudget)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBudget, c.CacheBudget)
	}
	return n, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RTMPURL) == "" {
		return ErrMissingRTMPURL
	}
	if strings.TrimSpace(c.VideoDir) == "" {
		return ErrMissingVideoDir
	}
	if _, err := c.BudgetBytes(); err != nil {
		return err
	}
	if c.SnapshotSchedule != "" {
		if _, err := cron.ParseStandard(c.SnapshotSchedule); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return ErrInvalidLogFormat
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return nil
}

// SplitCSV splits a comma separated list, trimming blanks.
func SplitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

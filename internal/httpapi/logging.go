package httpapi

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// defaultLogLevel is read once from RELAYD_HTTP_LOG.
var defaultLogLevel = parseLevel(os.Getenv("RELAYD_HTTP_LOG"))

// SetRequestLogLevel overrides the default request log level.
func SetRequestLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

func logf(lvl LogLevel, format string, args ...any) {
	if zlog == nil {
		log.Printf(format, args...)
		return
	}
	ev := zlog.Info()
	if lvl == LevelError {
		ev = zlog.Error()
	} else if lvl == LevelDebug {
		ev = zlog.Debug()
	}
	ev.Msg(fmt.Sprintf(format, args...))
}

// requestLogger logs one line per request at the request's log level.
// Failed requests are logged from LevelError up; everything else from
// LevelInfo up.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lvl := requestLogLevel(r)
		if lvl == LevelOff {
			next.ServeHTTP(w, r)
			return
		}
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)
		failed := sr.status >= http.StatusBadRequest
		if !failed && lvl < LevelInfo {
			return
		}
		rid := middleware.GetReqID(r.Context())
		if zlog == nil {
			log.Printf("http method=%s path=%s status=%d dur=%s request_id=%s", r.Method, r.URL.Path, sr.status, time.Since(start), rid)
			return
		}
		ev := zlog.Info()
		if failed {
			ev = zlog.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sr.status).
			Dur("dur", time.Since(start)).
			Str("request_id", rid).
			Msg("http request")
	})
}

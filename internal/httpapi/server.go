package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relayd/internal/content"
	"relayd/internal/orchestrator"
	"relayd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	State() orchestrator.State
	Status() types.StatusResponse
	Entries() []types.CacheEntry
	Play(ctx context.Context, source string, loop bool) (orchestrator.Session, error)
	PlayCached(ref content.Ref, loop bool) (orchestrator.Session, error)
	PlayAllCached() (orchestrator.Session, error)
	Stop() bool
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: orDefault(corsAllowedOrigins, []string{"*"}),
			AllowedMethods: orDefault(corsAllowedMethods, []string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			AllowedHeaders: orDefault(corsAllowedHeaders, []string{"Accept", "Content-Type", "X-Request-ID"}),
			MaxAge:         300,
		}))
	}

	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		st := svc.State()
		writeJSON(w, http.StatusOK, types.StateResponse{
			State:      string(st.Channel),
			NowPlaying: orchestrator.NowPlaying(st.Session),
		})
	})

	r.Post("/play", func(w http.ResponseWriter, r *http.Request) {
		req, err := decodePlayRequest(r, w)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(req.URL) == "" {
			writeJSONError(w, http.StatusBadRequest, "url is required")
			return
		}
		ctx, cancel := resolveContext(r)
		defer cancel()
		sess, err := svc.Play(ctx, req.URL, req.Loop)
		if err != nil {
			writePlayError(w, err)
			return
		}
		writeAccepted(w, sess)
	})

	r.Post("/play/cached", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			writeJSONError(w, http.StatusBadRequest, "id is required")
			return
		}
		loop, err := parseLoop(r.URL.Query().Get("loop"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		sess, err := svc.PlayCached(content.Ref(id), loop)
		if err != nil {
			writePlayError(w, err)
			return
		}
		writeAccepted(w, sess)
	})

	r.Post("/play/cache", func(w http.ResponseWriter, r *http.Request) {
		sess, err := svc.PlayAllCached()
		if err != nil {
			writePlayError(w, err)
			return
		}
		writeAccepted(w, sess)
	})

	r.Post("/stop", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.StopResponse{Stopped: svc.Stop()})
	})

	r.Get("/list", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.ListResponse{Entries: svc.Entries()})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// decodePlayRequest reads url and loop from the query string, falling back
// to a JSON body for fields the query leaves out.
func decodePlayRequest(r *http.Request, w http.ResponseWriter) (types.PlayRequest, error) {
	var req types.PlayRequest
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if r.Body != nil && strings.HasPrefix(ct, "application/json") {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, errors.New("invalid JSON body")
		}
	}
	q := r.URL.Query()
	if v := q.Get("url"); v != "" {
		req.URL = v
	}
	if v := q.Get("loop"); v != "" {
		loop, err := parseLoop(v)
		if err != nil {
			return req, err
		}
		req.Loop = loop
	}
	return req, nil
}

func parseLoop(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New("loop must be a boolean")
	}
	return b, nil
}

func writeAccepted(w http.ResponseWriter, sess orchestrator.Session) {
	writeJSON(w, http.StatusAccepted, types.PlayResponse{Status: "accepted", Session: *orchestrator.NowPlaying(&sess)})
}

func writePlayError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	switch {
	case orchestrator.IsBusy(err):
		countRejection("busy")
	case content.IsAgeRestricted(err):
		countRejection("age_restricted")
	case status == http.StatusInsufficientStorage:
		countRejection("too_large")
	}
	writeJSONError(w, status, err.Error())
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

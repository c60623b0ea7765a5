package orchestrator

import (
	"errors"
	"net/http"
)

type statusError struct {
	msg    string
	status int
}

func (e *statusError) Error() string   { return e.msg }
func (e *statusError) StatusCode() int { return e.status }

var (
	// ErrBusy rejects a play request while a content session holds the channel.
	ErrBusy error = &statusError{"relay busy: content is already playing", http.StatusConflict}
	// ErrEmptyPlaylist rejects a playlist with no playable items.
	ErrEmptyPlaylist error = &statusError{"playlist is empty", http.StatusBadRequest}
	// ErrClosed is returned once Close has been called.
	ErrClosed error = &statusError{"orchestrator is shutting down", http.StatusServiceUnavailable}
	// ErrNotCached is returned by cached playback for unknown entries.
	ErrNotCached error = &statusError{"not in cache", http.StatusNotFound}
)

// IsBusy reports whether err rejected a request because content is playing.
func IsBusy(err error) bool { return errors.Is(err, ErrBusy) }

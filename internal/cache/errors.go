package cache

import "net/http"

// Error is a cache admission failure carrying the HTTP status it maps to.
type Error struct {
	msg    string
	status int
}

func (e *Error) Error() string { return e.msg }

// StatusCode lets the HTTP layer map the error without importing this package.
func (e *Error) StatusCode() int { return e.status }

var (
	// ErrTooLarge means the item is bigger than the whole budget and is
	// never downloaded.
	ErrTooLarge = &Error{msg: "cache: item exceeds cache budget", status: http.StatusInsufficientStorage}
	// ErrNoRoom means eviction could not free enough space because the rest
	// of the budget is held by downloads in flight.
	ErrNoRoom = &Error{msg: "cache: no room while other downloads are in flight", status: http.StatusServiceUnavailable}
)

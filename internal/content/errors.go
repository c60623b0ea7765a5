package content

import (
	"errors"
	"net/http"
)

// ErrorKind classifies fetch failures.
type ErrorKind int

const (
	NotFound ErrorKind = iota + 1
	AgeRestricted
	Malformed
	Network
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case AgeRestricted:
		return "age_restricted"
	case Malformed:
		return "malformed"
	case Network:
		return "network"
	default:
		return "unknown"
	}
}

// FetchError is returned by Fetcher implementations.
type FetchError struct {
	Kind   ErrorKind
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	msg := "fetch " + e.Kind.String()
	if e.Source != "" {
		msg += " " + e.Source
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// StatusCode maps the failure onto an HTTP status for the control surface.
func (e *FetchError) StatusCode() int {
	switch e.Kind {
	case NotFound:
		return http.StatusNotFound
	case AgeRestricted, Malformed:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// NewError constructs a *FetchError.
func NewError(kind ErrorKind, source string, err error) error {
	return &FetchError{Kind: kind, Source: source, Err: err}
}

func hasKind(err error, kind ErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

// IsNotFound reports whether err is an unavailable-content failure.
func IsNotFound(err error) bool { return hasKind(err, NotFound) }

// IsAgeRestricted reports whether err is an age-restriction failure.
func IsAgeRestricted(err error) bool { return hasKind(err, AgeRestricted) }

// IsMalformed reports whether err is a malformed-reference failure.
func IsMalformed(err error) bool { return hasKind(err, Malformed) }

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool { return hasKind(err, Network) }

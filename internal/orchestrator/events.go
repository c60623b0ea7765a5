package orchestrator

// Event is an orchestrator lifecycle event: a name, the content it concerns
// (if any) and optional fields.
type Event struct {
	Name   string
	Ref    string
	Fields map[string]any
}

// Event names.
const (
	EventFillerStart   = "filler_start"
	EventFillerExit    = "filler_exit"
	EventFillerError   = "filler_error"
	EventSessionStart  = "session_start"
	EventSessionEnd    = "session_end"
	EventContentStart  = "content_start"
	EventContentEnd    = "content_end"
	EventFetchError    = "fetch_error"
	EventPrefetchError = "prefetch_error"
	EventPlaylistSkip  = "playlist_skip"
	EventStop          = "stop"
	EventShutdown      = "shutdown"
)

// EventPublisher receives events. Publish must be cheap and must not block
// or panic; it is called from playback goroutines.
type EventPublisher interface {
	Publish(Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

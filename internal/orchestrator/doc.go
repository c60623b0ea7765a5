// Package orchestrator decides what the single relay channel is playing.
// It is structured into small files by concern:
//
//   - orchestrator.go: Orchestrator type, Config, Start/Close lifecycle.
//   - gate.go: the content/filler gate and the perpetual filler loop.
//   - play.go: single item, cached playback and Stop.
//   - playlist.go: playlist traversal with read-ahead prefetch.
//   - state.go: State/Status/Entries reporting.
//   - errors.go: caller-facing errors (ErrBusy, ErrEmptyPlaylist, ...).
//   - events.go, eventpub_memory.go: lifecycle events.
//
// Filler and content never relay at the same time. A content session takes
// the gate, kills the filler and waits for it to exit before starting its own
// relay. Releasing the gate wakes the filler loop, which restarts the filler.
package orchestrator

// Package types holds the JSON shapes served by the HTTP API.
package types

// Channel states reported in StateResponse.State.
const (
	StateInterlude = "interlude"
	StatePlaying   = "playing"
	StateIdle      = "idle"
)

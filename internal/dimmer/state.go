// Package dimmer models the remote MQTT dimmer's observable state, parses
// its two wire dialects, and serializes commands to it.
package dimmer

import "time"

// State is the dimmer's observable state. Equality is by (IsOn,
// BrightnessPercent) only — UpdatedAt never participates in comparisons, so
// a republish of the same state is not a change.
type State struct {
	IsOn              bool
	BrightnessPercent int
	UpdatedAt         time.Time
}

// Equal reports whether s and other describe the same dimmer state,
// ignoring UpdatedAt.
func (s State) Equal(other State) bool {
	return s.IsOn == other.IsOn && s.BrightnessPercent == other.BrightnessPercent
}

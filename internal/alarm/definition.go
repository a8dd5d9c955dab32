// Package alarm implements the alarm lifecycle state machine and the
// per-trigger executor that drives one brightness ramp end to end, per
// spec.md §3, §4.5, §4.6.
package alarm

import (
	"time"

	"github.com/google/uuid"
)

const (
	defaultStartBrightnessPercent  = 20
	defaultTargetBrightnessPercent = 100
	defaultRampDuration            = 30 * time.Minute

	minRampDuration = time.Second
	maxRampDuration = 24 * time.Hour
)

// Definition is a frozen alarm definition for the duration of one execution,
// per spec.md §3.
type Definition struct {
	ID                      uuid.UUID
	Name                    string
	Enabled                 bool
	StartBrightnessPercent  int
	TargetBrightnessPercent int
	RampDuration            time.Duration
	TimeZoneID              string
}

// NewDefinition returns a Definition with the default start brightness
// (20), target brightness (100) and ramp duration (30 min); TimeZoneID is
// left empty.
func NewDefinition(id uuid.UUID, name string, enabled bool) Definition {
	return Definition{
		ID:                      id,
		Name:                    name,
		Enabled:                 enabled,
		StartBrightnessPercent:  defaultStartBrightnessPercent,
		TargetBrightnessPercent: defaultTargetBrightnessPercent,
		RampDuration:            defaultRampDuration,
	}
}

// ClampedRampDuration clamps RampDuration to [1s, 24h], per spec.md §3.
func (d Definition) ClampedRampDuration() time.Duration {
	switch {
	case d.RampDuration < minRampDuration:
		return minRampDuration
	case d.RampDuration > maxRampDuration:
		return maxRampDuration
	default:
		return d.RampDuration
	}
}

// EffectiveTarget returns TargetBrightnessPercent, except when it is below
// StartBrightnessPercent: per spec.md §3's invariant, the executor then
// treats the alarm as a constant-brightness segment with no downward ramp,
// i.e. the effective target is clamped up to the start value.
func (d Definition) EffectiveTarget() int {
	if d.StartBrightnessPercent > d.TargetBrightnessPercent {
		return d.StartBrightnessPercent
	}
	return d.TargetBrightnessPercent
}

// Package schedule defines the shape-only persisted types of spec.md §6.3.
// Their owner (relational persistence, the alarm-CRUD HTTP surface, the
// "sync alarm rows -> recurring job registry" reconciler) is explicitly out
// of scope; this package exists so the executor's Definition has a
// documented, compilable origin and so the cron expressions that origin
// carries can be validated with the same library a job-dispatch framework
// would use.
package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// AlarmSchedule is the persisted row shape of spec.md §6.3.
type AlarmSchedule struct {
	ID             uuid.UUID
	Name           string
	Enabled        bool
	CronExpression string
	TimeZoneID     string
	RampProfileID  uuid.UUID
	CreatedAtUTC   time.Time
	UpdatedAtUTC   time.Time
}

// RampProfileMode distinguishes how a ramp profile should be interpreted.
// Only linear ramps are in scope (spec.md §1 Non-goals excludes non-linear
// curves); the field is carried because the persisted shape names it.
type RampProfileMode string

const RampProfileModeLinear RampProfileMode = "linear"

// RampProfile is the persisted row shape of spec.md §6.3.
type RampProfile struct {
	ID                      uuid.UUID
	Mode                    RampProfileMode
	StartBrightnessPercent  int
	TargetBrightnessPercent int
	RampDurationSeconds     int
	CreatedAtUTC            time.Time
	UpdatedAtUTC            time.Time
}

// Validate checks the invariants spec.md §6.3 states for a RampProfile row.
func (p RampProfile) Validate() error {
	if p.StartBrightnessPercent < 0 || p.StartBrightnessPercent > 100 {
		return fmt.Errorf("rampProfile %s: startBrightnessPercent out of range: %d", p.ID, p.StartBrightnessPercent)
	}
	if p.TargetBrightnessPercent < 0 || p.TargetBrightnessPercent > 100 {
		return fmt.Errorf("rampProfile %s: targetBrightnessPercent out of range: %d", p.ID, p.TargetBrightnessPercent)
	}
	if p.RampDurationSeconds < 1 {
		return fmt.Errorf("rampProfile %s: rampDurationSeconds must be >= 1, got %d", p.ID, p.RampDurationSeconds)
	}
	return nil
}

// cronParser validates the 5-field "minute hour dom month dow" expressions
// spec.md §6.3 specifies, without seconds.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronExpression reports whether expr parses as a valid 5-field
// cron expression.
func ValidateCronExpression(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

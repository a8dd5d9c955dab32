// Package interruption compares the dimmer's observed state against the
// executor's last commanded state and emits categorized events when a human
// has overridden the device, per spec.md §4.4.
package interruption

import (
	"sync"
	"time"

	"github.com/lumirise/lumirise/internal/broadcast"
	"github.com/lumirise/lumirise/internal/dimmer"
)

// Reason categorizes why an InterruptionEvent fired.
type Reason int

const (
	ReasonManualPowerOn Reason = iota
	ReasonManualPowerOff
	ReasonManualBrightnessAdjustment
	ReasonDeviceDisconnected
	ReasonStatusConfirmationTimeout
	ReasonUnknown
)

func (r Reason) String() string {
	switch r {
	case ReasonManualPowerOn:
		return "ManualPowerOn"
	case ReasonManualPowerOff:
		return "ManualPowerOff"
	case ReasonManualBrightnessAdjustment:
		return "ManualBrightnessAdjustment"
	case ReasonDeviceDisconnected:
		return "DeviceDisconnected"
	case ReasonStatusConfirmationTimeout:
		return "StatusConfirmationTimeout"
	default:
		return "Unknown"
	}
}

// Event is one detected interruption.
type Event struct {
	Reason      Reason
	Expected    *dimmer.State
	Actual      *dimmer.State
	Message     string
	DetectedAt  time.Time
}

// brightnessToleranceBand absorbs rounding artefacts from device telemetry,
// per spec.md §4.4 rule 2.
const brightnessToleranceBand = 2

// Detector watches a dimmer.Monitor's state-change stream and compares each
// observed state to an expected baseline the executor sets.
type Detector struct {
	mu       sync.Mutex
	expected *dimmer.State
	enabled  bool

	events *broadcast.Hub[Event]
}

// New constructs a Detector. Call Watch to begin observing a state stream.
func New() *Detector {
	return &Detector{events: broadcast.New[Event](16)}
}

// Watch subscribes to changes and begins classifying them. It should be
// called once, at process startup, against the process-wide monitor.
func (d *Detector) Watch(changes <-chan dimmer.State) {
	go func() {
		for actual := range changes {
			d.evaluate(actual)
		}
	}()
}

// SetExpectedState updates the comparison baseline.
func (d *Detector) SetExpectedState(s dimmer.State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := s
	d.expected = &cp
}

// ClearExpectedState removes the comparison baseline.
func (d *Detector) ClearExpectedState() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expected = nil
}

// EnableDetection gates the detector on; detection only fires when enabled
// and an expected state is set.
func (d *Detector) EnableDetection() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = true
}

// DisableDetection gates the detector off.
func (d *Detector) DisableDetection() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = false
}

// Interruptions returns a lazy stream of InterruptionEvents.
func (d *Detector) Interruptions() (<-chan Event, func()) {
	return d.events.Subscribe()
}

// evaluate applies the classification rules of spec.md §4.4, in order,
// under a single fresh read of the expected state.
func (d *Detector) evaluate(actual dimmer.State) {
	d.mu.Lock()
	enabled := d.enabled
	expected := d.expected
	d.mu.Unlock()

	if !enabled || expected == nil {
		return
	}

	expectedCopy := *expected
	actualCopy := actual

	switch {
	case expectedCopy.IsOn && !actualCopy.IsOn:
		d.emit(ReasonManualPowerOff, &expectedCopy, &actualCopy, "dimmer powered off while a ramp was expected on")
	case expectedCopy.IsOn && actualCopy.IsOn && abs(expectedCopy.BrightnessPercent-actualCopy.BrightnessPercent) > brightnessToleranceBand:
		d.emit(ReasonManualBrightnessAdjustment, &expectedCopy, &actualCopy, "observed brightness diverged from commanded brightness")
	case !expectedCopy.IsOn && actualCopy.IsOn:
		d.emit(ReasonManualPowerOn, &expectedCopy, &actualCopy, "dimmer powered on while expected off")
	}
}

func (d *Detector) emit(reason Reason, expected, actual *dimmer.State, message string) {
	d.events.Publish(Event{
		Reason:     reason,
		Expected:   expected,
		Actual:     actual,
		Message:    message,
		DetectedAt: time.Now(),
	})
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

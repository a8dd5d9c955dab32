package interruption

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumirise/lumirise/internal/dimmer"
)

func waitForEvent(t *testing.T, ch <-chan Event) (Event, bool) {
	t.Helper()
	select {
	case ev := <-ch:
		return ev, true
	case <-time.After(200 * time.Millisecond):
		return Event{}, false
	}
}

func TestDetector_IgnoresChangesWhenDisabled(t *testing.T) {
	d := New()
	changes := make(chan dimmer.State, 1)
	d.Watch(changes)

	events, unsubscribe := d.Interruptions()
	defer unsubscribe()

	d.SetExpectedState(dimmer.State{IsOn: true, BrightnessPercent: 20})
	changes <- dimmer.State{IsOn: false, BrightnessPercent: 0}

	_, ok := waitForEvent(t, events)
	assert.False(t, ok, "detector must not fire while disabled")
}

func TestDetector_IgnoresChangesWithNoExpectedState(t *testing.T) {
	d := New()
	changes := make(chan dimmer.State, 1)
	d.Watch(changes)
	d.EnableDetection()

	events, unsubscribe := d.Interruptions()
	defer unsubscribe()

	changes <- dimmer.State{IsOn: false, BrightnessPercent: 0}

	_, ok := waitForEvent(t, events)
	assert.False(t, ok)
}

func TestDetector_ManualPowerOff(t *testing.T) {
	d := New()
	changes := make(chan dimmer.State, 1)
	d.Watch(changes)
	d.SetExpectedState(dimmer.State{IsOn: true, BrightnessPercent: 40})
	d.EnableDetection()

	events, unsubscribe := d.Interruptions()
	defer unsubscribe()

	changes <- dimmer.State{IsOn: false, BrightnessPercent: 0}

	ev, ok := waitForEvent(t, events)
	require.True(t, ok)
	assert.Equal(t, ReasonManualPowerOff, ev.Reason)
}

func TestDetector_ManualPowerOn(t *testing.T) {
	d := New()
	changes := make(chan dimmer.State, 1)
	d.Watch(changes)
	d.SetExpectedState(dimmer.State{IsOn: false, BrightnessPercent: 0})
	d.EnableDetection()

	events, unsubscribe := d.Interruptions()
	defer unsubscribe()

	changes <- dimmer.State{IsOn: true, BrightnessPercent: 30}

	ev, ok := waitForEvent(t, events)
	require.True(t, ok)
	assert.Equal(t, ReasonManualPowerOn, ev.Reason)
}

func TestDetector_ManualBrightnessAdjustment_OutsideTolerance(t *testing.T) {
	d := New()
	changes := make(chan dimmer.State, 1)
	d.Watch(changes)
	d.SetExpectedState(dimmer.State{IsOn: true, BrightnessPercent: 50})
	d.EnableDetection()

	events, unsubscribe := d.Interruptions()
	defer unsubscribe()

	changes <- dimmer.State{IsOn: true, BrightnessPercent: 54}

	ev, ok := waitForEvent(t, events)
	require.True(t, ok)
	assert.Equal(t, ReasonManualBrightnessAdjustment, ev.Reason)
}

func TestDetector_BrightnessWithinTolerance_NoEvent(t *testing.T) {
	d := New()
	changes := make(chan dimmer.State, 1)
	d.Watch(changes)
	d.SetExpectedState(dimmer.State{IsOn: true, BrightnessPercent: 50})
	d.EnableDetection()

	events, unsubscribe := d.Interruptions()
	defer unsubscribe()

	changes <- dimmer.State{IsOn: true, BrightnessPercent: 52}

	_, ok := waitForEvent(t, events)
	assert.False(t, ok, "a 2-point drift is within the tolerance band")
}

func TestDetector_DisableStopsFurtherEvents(t *testing.T) {
	d := New()
	changes := make(chan dimmer.State, 1)
	d.Watch(changes)
	d.SetExpectedState(dimmer.State{IsOn: true, BrightnessPercent: 50})
	d.EnableDetection()
	d.DisableDetection()

	events, unsubscribe := d.Interruptions()
	defer unsubscribe()

	changes <- dimmer.State{IsOn: false, BrightnessPercent: 0}

	_, ok := waitForEvent(t, events)
	assert.False(t, ok)
}

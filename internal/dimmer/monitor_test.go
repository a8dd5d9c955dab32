package dimmer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMonitor(broker Broker) *Monitor {
	return NewMonitor(broker, "stat/power", "stat/result", zap.NewNop().Sugar())
}

func waitForState(t *testing.T, ch <-chan State) State {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state change")
		return State{}
	}
}

func TestMonitor_PowerOn_NoPriorState_SynthesizesBrightness50(t *testing.T) {
	broker := newFakeBroker()
	m := newTestMonitor(broker)
	require.NoError(t, m.Start(context.Background()))

	changes, unsubscribe := m.StateChanges()
	defer unsubscribe()

	broker.deliver("stat/power", "ON")

	got := waitForState(t, changes)
	assert.True(t, got.IsOn)
	assert.Equal(t, 50, got.BrightnessPercent)
}

func TestMonitor_PowerOff_ForcesBrightnessZero(t *testing.T) {
	broker := newFakeBroker()
	m := newTestMonitor(broker)
	require.NoError(t, m.Start(context.Background()))

	changes, unsubscribe := m.StateChanges()
	defer unsubscribe()

	broker.deliver("stat/result", `{"POWER":"ON","Dimmer":80}`)
	waitForState(t, changes)

	broker.deliver("stat/power", "OFF")
	got := waitForState(t, changes)
	assert.False(t, got.IsOn)
	assert.Equal(t, 0, got.BrightnessPercent)
}

func TestMonitor_ResultTopic_ParsesValidJSON(t *testing.T) {
	broker := newFakeBroker()
	m := newTestMonitor(broker)
	require.NoError(t, m.Start(context.Background()))

	changes, unsubscribe := m.StateChanges()
	defer unsubscribe()

	broker.deliver("stat/result", `{"POWER":"ON","Dimmer":63}`)

	got := waitForState(t, changes)
	assert.True(t, got.IsOn)
	assert.Equal(t, 63, got.BrightnessPercent)

	cached, ok := m.CurrentState()
	require.True(t, ok)
	assert.Equal(t, got.IsOn, cached.IsOn)
	assert.Equal(t, got.BrightnessPercent, cached.BrightnessPercent)
}

func TestMonitor_ResultTopic_DiscardsMalformedPayload(t *testing.T) {
	broker := newFakeBroker()
	m := newTestMonitor(broker)
	require.NoError(t, m.Start(context.Background()))

	changes, unsubscribe := m.StateChanges()
	defer unsubscribe()

	broker.deliver("stat/result", `{"POWER":"ON","Dimmer":40}`)
	waitForState(t, changes)

	broker.deliver("stat/result", `not json at all`)
	broker.deliver("stat/result", `{"POWER":"ON"}`)
	broker.deliver("stat/result", `{"POWER":"ON","Dimmer":150}`)

	select {
	case s := <-changes:
		t.Fatalf("expected no further state change, got %+v", s)
	case <-time.After(100 * time.Millisecond):
	}

	cached, ok := m.CurrentState()
	require.True(t, ok)
	assert.Equal(t, 40, cached.BrightnessPercent)
}

func TestMonitor_NoChangeEmittedWhenStateIsUnchanged(t *testing.T) {
	broker := newFakeBroker()
	m := newTestMonitor(broker)
	require.NoError(t, m.Start(context.Background()))

	changes, unsubscribe := m.StateChanges()
	defer unsubscribe()

	broker.deliver("stat/result", `{"POWER":"ON","Dimmer":70}`)
	waitForState(t, changes)

	broker.deliver("stat/result", `{"POWER":"ON","Dimmer":70}`)

	select {
	case s := <-changes:
		t.Fatalf("expected no duplicate state change, got %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

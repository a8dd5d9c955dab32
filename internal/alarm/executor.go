package alarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumirise/lumirise/internal/dimmer"
	"github.com/lumirise/lumirise/internal/interruption"
	"github.com/lumirise/lumirise/internal/lumierr"
)

// Executor is the critical composition of spec.md §4.6: for a given
// Definition, Execute wires the state machine, command publisher, and
// interruption detector into one end-to-end alarm run.
type Executor struct {
	publisher *dimmer.Publisher
	detector  *interruption.Detector
	logger    *zap.SugaredLogger
}

// NewExecutor constructs an Executor around a process-wide publisher and
// detector.
func NewExecutor(publisher *dimmer.Publisher, detector *interruption.Detector, logger *zap.SugaredLogger) *Executor {
	return &Executor{publisher: publisher, detector: detector, logger: logger}
}

// Execute runs one alarm end to end. machine must already be in Running
// (callers fire SchedulerTrigger then Start before calling Execute, per
// spec.md §6.2/§4.6 step 1).
func (e *Executor) Execute(ctx context.Context, def Definition, machine *Machine) error {
	if machine.CurrentState() != StateRunning {
		return fmt.Errorf("execute alarm %s: %w", def.ID, lumierr.ErrIllegalTransition)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// Step 2: hook the interruption stream, scoped to this execution. The
	// ramp is cancelled as soon as an event arrives so no brightness
	// publish races the transition into Interrupted.
	events, unsubscribe := e.detector.Interruptions()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			machine.TryFire(TriggerManualOverride, fmt.Sprintf("%s: %s", ev.Reason, ev.Message))
			cancelRun()
		}
	}()

	// Step 8: teardown always runs, and the subscription is disposed before
	// the detector is gated off — closing the race where a queued event
	// could leak into a later alarm.
	defer func() {
		unsubscribe()
		<-done
		e.detector.DisableDetection()
		e.detector.ClearExpectedState()
	}()

	start := def.StartBrightnessPercent
	target := def.EffectiveTarget()
	duration := def.ClampedRampDuration()

	// Step 3: arm detection before any command is sent.
	e.detector.SetExpectedState(dimmer.State{IsOn: true, BrightnessPercent: start})
	e.detector.EnableDetection()

	runErr := e.run(runCtx, start, target, duration)

	// Step 7: terminal transition.
	switch {
	case runErr == nil:
		machine.TryFire(TriggerComplete, "")
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		machine.TryFire(TriggerError, "Execution cancelled")
	default:
		machine.TryFire(TriggerError, runErr.Error())
	}

	return runErr
}

// run performs steps 4-6: power on, seed brightness, then ramp. The ramp's
// progress callback keeps the detector's expected state calibrated to the
// most recently commanded brightness. Every calibration uses what the
// publisher actually sent the device, not the value requested of it — the
// minimum-brightness floor can silently redirect a low SetBrightness into a
// TurnOff, and an expectation left at the requested value would make the
// detector mistake that redirect for a manual power-off.
func (e *Executor) run(ctx context.Context, start, target int, duration time.Duration) error {
	if err := e.publisher.TurnOn(ctx); err != nil {
		return err
	}
	sentStart, err := e.publisher.SetBrightness(ctx, start)
	if err != nil {
		return err
	}
	e.detector.SetExpectedState(commandedState(sentStart))

	progress := func(commanded int) {
		e.detector.SetExpectedState(commandedState(commanded))
	}

	return e.publisher.RampBrightness(ctx, start, target, duration, progress)
}

// commandedState translates a brightness actually commanded to the device
// into the dimmer state it implies: 0 always means off, per the
// minimum-brightness floor's off-redirect.
func commandedState(brightness int) dimmer.State {
	if brightness <= 0 {
		return dimmer.State{IsOn: false, BrightnessPercent: 0}
	}
	return dimmer.State{IsOn: true, BrightnessPercent: brightness}
}

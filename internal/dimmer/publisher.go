package dimmer

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumirise/lumirise/internal/lumierr"
)

// Publisher translates semantic dimmer operations into broker publications,
// per spec.md §4.3. All public operations serialize through a single mutex
// so concurrent callers see FIFO wire order.
type Publisher struct {
	broker            Broker
	powerTopic        string
	brightnessTopic   string
	minimumBrightness int
	rampStepDelay     time.Duration
	logger            *zap.SugaredLogger

	mu sync.Mutex
}

// NewPublisher constructs a Publisher. minimumBrightness is the
// device-safety floor below which SetBrightness turns the dimmer off
// instead of commanding a flickering brightness.
func NewPublisher(broker Broker, powerTopic, brightnessTopic string, minimumBrightness int, rampStepDelay time.Duration, logger *zap.SugaredLogger) *Publisher {
	return &Publisher{
		broker:            broker,
		powerTopic:        powerTopic,
		brightnessTopic:   brightnessTopic,
		minimumBrightness: minimumBrightness,
		rampStepDelay:     rampStepDelay,
		logger:            logger,
	}
}

// TurnOn publishes {"POWER":"ON"} on the power command topic.
func (p *Publisher) TurnOn(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.publishPowerLocked(ctx, true)
}

// TurnOff publishes {"POWER":"OFF"} on the power command topic.
func (p *Publisher) TurnOff(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.publishPowerLocked(ctx, false)
}

// SetBrightness applies the minimum-brightness threshold: percentages below
// the device floor turn the dimmer off instead of publishing a brightness
// value. percent must be in [0,100]. It returns the brightness actually
// commanded to the device, which is 0 (not percent) when the floor routed
// the call to TurnOff — callers tracking expected device state must use
// this return value, not the requested percent, per spec.md §4.6 step 6.
func (p *Publisher) SetBrightness(ctx context.Context, percent int) (int, error) {
	if percent < 0 || percent > 100 {
		return 0, lumierr.ErrInvalidArgument
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setBrightnessLocked(ctx, percent)
}

// RampBrightness executes a linear ramp from start to target over duration,
// in N = max(1, ceil(duration/stepDelay)) steps. A step whose value equals
// the previous one sends nothing. progress is called after each command sent
// (including the final correction) with the brightness actually commanded
// to the device (0, not
// the ramp value, when the minimum-brightness floor redirected that step to
// TurnOff) so a caller tracking expected device state never drifts from
// reality. Cancelling ctx interrupts the ramp promptly between steps;
// the last commanded brightness stands and ctx.Err() propagates. The final
// SetBrightness(target) only runs when the ramp was not cancelled and the
// last commanded value did not already equal target.
func (p *Publisher) RampBrightness(ctx context.Context, start, target int, duration time.Duration, progress func(int)) error {
	if start < 0 || start > 100 || target < 0 || target > 100 {
		return lumierr.ErrInvalidArgument
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	steps := int(math.Ceil(float64(duration) / float64(p.rampStepDelay)))
	if steps < 1 {
		steps = 1
	}

	var lastRequested int
	sentAny := false

	for k := 0; k < steps; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var value int
		if steps == 1 {
			value = target
		} else {
			value = start + int(math.Round(float64(target-start)*float64(k)/float64(steps-1)))
		}
		if value < 0 {
			value = 0
		} else if value > 100 {
			value = 100
		}

		if !sentAny || value != lastRequested {
			sent, err := p.setBrightnessLocked(ctx, value)
			if err != nil {
				return err
			}
			lastRequested = value
			sentAny = true
			if progress != nil {
				progress(sent)
			}
		}

		if k < steps-1 {
			timer := time.NewTimer(p.rampStepDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	if sentAny && lastRequested != target {
		sent, err := p.setBrightnessLocked(ctx, target)
		if err != nil {
			return err
		}
		if progress != nil {
			progress(sent)
		}
	}
	return nil
}

// publishPowerLocked must be called with mu held.
func (p *Publisher) publishPowerLocked(ctx context.Context, on bool) error {
	payload := []byte(`{"POWER":"OFF"}`)
	if on {
		payload = []byte(`{"POWER":"ON"}`)
	}
	return p.broker.Publish(ctx, p.powerTopic, payload)
}

// setBrightnessLocked must be called with mu held. It returns the
// brightness actually commanded to the device (0 when the minimum
// threshold routed the call to TurnOff).
func (p *Publisher) setBrightnessLocked(ctx context.Context, percent int) (int, error) {
	if percent < p.minimumBrightness {
		if err := p.publishPowerLocked(ctx, false); err != nil {
			return 0, err
		}
		return 0, nil
	}
	payload := []byte(strconv.Itoa(percent))
	if err := p.broker.Publish(ctx, p.brightnessTopic, payload); err != nil {
		return 0, err
	}
	return percent, nil
}

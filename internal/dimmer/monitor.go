package dimmer

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumirise/lumirise/internal/broadcast"
	"github.com/lumirise/lumirise/internal/mqttsup"
)

// Broker is the narrow slice of the connection supervisor the monitor and
// publisher depend on.
type Broker interface {
	Subscribe(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic string, payload []byte) error
	MessageReceived() (<-chan mqttsup.IncomingMessage, func())
}

// resultPayload is the JSON dialect on the brightness status topic.
type resultPayload struct {
	Power  string `json:"POWER"`
	Dimmer *int   `json:"Dimmer"`
}

// Monitor translates raw MQTT messages into a State stream and keeps the
// latest cached state, per spec.md §4.2.
type Monitor struct {
	broker       Broker
	powerTopic   string
	resultTopic  string
	logger       *zap.SugaredLogger

	mu      sync.Mutex
	current *State

	changes    *broadcast.Hub[State]
	unsubscribe func()
	started    bool
}

// NewMonitor constructs a Monitor bound to the two status topics.
func NewMonitor(broker Broker, powerTopic, resultTopic string, logger *zap.SugaredLogger) *Monitor {
	return &Monitor{
		broker:      broker,
		powerTopic:  powerTopic,
		resultTopic: resultTopic,
		logger:      logger,
		changes:     broadcast.New[State](16),
	}
}

// Start subscribes to both status topics and begins translating incoming
// messages.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	if err := m.broker.Subscribe(ctx, m.powerTopic); err != nil {
		return err
	}
	if err := m.broker.Subscribe(ctx, m.resultTopic); err != nil {
		return err
	}

	msgs, unsubscribe := m.broker.MessageReceived()
	m.unsubscribe = unsubscribe

	go m.consume(msgs)
	return nil
}

// Stop unsubscribes from the message stream. It does not unsubscribe from
// the broker's topics; the monitor is a process-wide singleton and its
// topics remain of interest for the life of the process.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	m.started = false
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// CurrentState returns the latest cached state, or ok=false if none has
// been observed yet.
func (m *Monitor) CurrentState() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return State{}, false
	}
	return *m.current, true
}

// StateChanges returns a lazy stream that emits only on actual changes to
// (IsOn, BrightnessPercent).
func (m *Monitor) StateChanges() (<-chan State, func()) {
	return m.changes.Subscribe()
}

func (m *Monitor) consume(msgs <-chan mqttsup.IncomingMessage) {
	for msg := range msgs {
		switch msg.Topic {
		case m.powerTopic:
			m.handlePower(msg.Payload)
		case m.resultTopic:
			m.handleResult(msg.Payload)
		}
	}
}

// handlePower parses the plain-text power dialect. A power-topic "ON" with
// no prior cached state synthesizes brightness 50.
func (m *Monitor) handlePower(payload []byte) {
	isOn := strings.EqualFold(strings.TrimSpace(string(payload)), "ON")

	m.mu.Lock()
	var brightness int
	switch {
	case isOn && m.current != nil:
		brightness = m.current.BrightnessPercent
	case isOn:
		brightness = 50
	default:
		brightness = 0
	}
	m.applyLocked(State{IsOn: isOn, BrightnessPercent: brightness, UpdatedAt: time.Now()})
	m.mu.Unlock()
}

// handleResult parses the JSON result dialect. Malformed or incomplete
// payloads are discarded without altering cached state, per spec.md §4.2
// and invariant 4 in §8.
func (m *Monitor) handleResult(payload []byte) {
	var parsed resultPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		m.logger.Warnw("discarding malformed dimmer result payload", "error", err, "payload", string(payload))
		return
	}
	if parsed.Power == "" || parsed.Dimmer == nil {
		m.logger.Warnw("discarding dimmer result payload missing required fields", "payload", string(payload))
		return
	}
	brightness := *parsed.Dimmer
	if brightness < 0 || brightness > 100 {
		m.logger.Warnw("discarding dimmer result payload with out-of-range brightness", "brightness", brightness)
		return
	}

	m.mu.Lock()
	m.applyLocked(State{
		IsOn:              strings.EqualFold(parsed.Power, "ON"),
		BrightnessPercent: brightness,
		UpdatedAt:         time.Now(),
	})
	m.mu.Unlock()
}

// applyLocked updates current state and emits a change event, iff the
// comparable fields actually differ. Must be called with mu held.
func (m *Monitor) applyLocked(next State) {
	if m.current != nil && m.current.Equal(next) {
		return
	}
	m.current = &next
	m.changes.Publish(next)
}

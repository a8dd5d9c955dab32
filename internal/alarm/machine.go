package alarm

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumirise/lumirise/internal/broadcast"
	"github.com/lumirise/lumirise/internal/lumierr"
)

// transitionTable enumerates every legal (from, trigger) -> to mapping, per
// spec.md §4.5. Omitted pairs are illegal. Read-only after init, so it is
// safe to share across every Machine instance.
var transitionTable = map[State]map[Trigger]State{
	StateIdle: {
		TriggerSchedulerTrigger: StateTriggered,
		TriggerPause:            StatePaused,
	},
	StateTriggered: {
		TriggerStart:  StateRunning,
		TriggerCancel: StateIdle,
	},
	StateRunning: {
		TriggerManualOverride: StateInterrupted,
		TriggerComplete:       StateCompleted,
		TriggerError:          StateFailed,
	},
	StateInterrupted: {
		TriggerReset: StateIdle,
	},
	StateCompleted: {
		TriggerReset: StateIdle,
	},
	StateFailed: {
		TriggerReset: StateIdle,
	},
	StatePaused: {
		TriggerResume: StateIdle,
	},
}

// Machine enforces legality of lifecycle transitions for one alarm and
// publishes every transition. Safe for concurrent use: one mutex protects
// both the current state and the transition-table lookup so Fire holds it
// across check-and-write, per spec.md §4.5.
type Machine struct {
	alarmID string
	logger  *zap.SugaredLogger

	mu       sync.Mutex
	current  State
	disposed bool

	transitions *broadcast.Hub[Transition]
}

// NewMachine constructs a Machine in the initial Idle state.
func NewMachine(alarmID string, logger *zap.SugaredLogger) *Machine {
	return &Machine{
		alarmID:     alarmID,
		logger:      logger,
		current:     StateIdle,
		transitions: broadcast.New[Transition](8),
	}
}

// CurrentState returns the current state.
func (m *Machine) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CanFire reports whether trigger is legal from the current state.
func (m *Machine) CanFire(trigger Trigger) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := transitionTable[m.current][trigger]
	return ok
}

// PermittedTriggers returns the row of triggers legal from the current
// state.
func (m *Machine) PermittedTriggers() []Trigger {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := transitionTable[m.current]
	out := make([]Trigger, 0, len(row))
	for t := range row {
		out = append(out, t)
	}
	return out
}

// Fire transitions atomically if (current, trigger) is legal, emitting a
// Transition event and returning the new state. Otherwise it leaves state
// unchanged and returns ErrIllegalTransition.
func (m *Machine) Fire(trigger Trigger, message string) (State, error) {
	m.mu.Lock()
	if m.disposed {
		current := m.current
		m.mu.Unlock()
		return current, lumierr.ErrDisposed
	}

	next, ok := transitionTable[m.current][trigger]
	if !ok {
		current := m.current
		m.mu.Unlock()
		return current, lumierr.ErrIllegalTransition
	}

	previous := m.current
	m.current = next
	m.mu.Unlock()

	m.publish(previous, next, trigger, message)
	return next, nil
}

// TryFire is Fire without the error: illegal transitions are logged at
// warning and the call returns the (unchanged) current state. The executor
// uses this so a late Complete racing an already-applied Interrupted does
// not surface as an error, per spec.md §4.6.
func (m *Machine) TryFire(trigger Trigger, message string) State {
	next, err := m.Fire(trigger, message)
	if err != nil {
		m.logger.Warnw("ignoring illegal alarm transition",
			"alarmID", m.alarmID, "from", next, "trigger", trigger, "message", message)
		return next
	}
	return next
}

// StateTransitions returns a lazy stream of Transition events.
func (m *Machine) StateTransitions() (<-chan Transition, func()) {
	return m.transitions.Subscribe()
}

// Dispose closes the transition stream; further Fire calls fail with
// ErrDisposed.
func (m *Machine) Dispose() {
	m.mu.Lock()
	m.disposed = true
	m.mu.Unlock()
	m.transitions.Dispose()
}

func (m *Machine) publish(previous, next State, trigger Trigger, message string) {
	m.transitions.Publish(Transition{
		AlarmID:      m.alarmID,
		Previous:     previous,
		New:          next,
		Trigger:      trigger,
		TimestampUTC: time.Now().UTC(),
		Message:      message,
	})
}
